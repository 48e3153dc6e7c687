package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pair-quiz-service/internal/domain"
)

// GameStore is an in-memory implementation of app.GameRepository.
// A single mutex serializes every write, which makes each conditional transition atomic.
type GameStore struct {
	mu      sync.RWMutex
	games   map[string]domain.Game
	order   []string
	active  map[string]string
	answers map[string][]domain.Answer
}

func NewGameStore() *GameStore {
	return &GameStore{
		games:   make(map[string]domain.Game),
		active:  make(map[string]string),
		answers: make(map[string][]domain.Answer),
	}
}

func (s *GameStore) CreateGame(_ context.Context, game domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[game.FirstPlayer.ID]; ok {
		return domain.ErrAlreadyInGame
	}
	s.games[game.ID] = cloneGame(game)
	s.order = append(s.order, game.ID)
	s.active[game.FirstPlayer.ID] = game.ID
	return nil
}

func (s *GameStore) FindPendingGame(_ context.Context, excludeUserID string) (domain.Game, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		game := s.games[id]
		if game.Status == domain.StatusPendingSecondPlayer && game.FirstPlayer.ID != excludeUserID {
			return cloneGame(game), true, nil
		}
	}
	return domain.Game{}, false, nil
}

func (s *GameStore) ActivateGame(_ context.Context, gameID string, player domain.Player, questions []domain.Question, startedAt time.Time) (domain.Game, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok || game.Status != domain.StatusPendingSecondPlayer || game.FirstPlayer.ID == player.ID {
		return domain.Game{}, false, nil
	}
	if _, busy := s.active[player.ID]; busy {
		return domain.Game{}, false, domain.ErrAlreadyInGame
	}

	second := player
	started := startedAt
	game.SecondPlayer = &second
	game.Questions = cloneQuestions(questions)
	game.StartGameDate = &started
	game.Status = domain.StatusActive
	s.games[gameID] = game
	s.active[player.ID] = gameID
	return cloneGame(game), true, nil
}

func (s *GameStore) AppendAnswer(_ context.Context, answer domain.Answer, position int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[answer.GameID]
	if !ok {
		return false, domain.ErrGameNotFound
	}
	if game.Status != domain.StatusActive || !game.HasPlayer(answer.UserID) {
		return false, nil
	}
	existing := s.answers[answer.GameID]
	if domain.CountAnswers(existing, answer.UserID) != position {
		return false, nil
	}
	for _, a := range existing {
		if a.UserID == answer.UserID && a.QuestionID == answer.QuestionID {
			return false, nil
		}
	}
	s.answers[answer.GameID] = append(existing, answer)
	return true, nil
}

func (s *GameStore) FinishGame(_ context.Context, gameID string, finishedAt time.Time) (domain.Game, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, false, domain.ErrGameNotFound
	}
	if game.Status != domain.StatusActive {
		return domain.Game{}, false, nil
	}
	finished := finishedAt
	game.Status = domain.StatusFinished
	game.FinishGameDate = &finished
	s.games[gameID] = game
	s.release(game.FirstPlayer.ID, gameID)
	s.release(game.SecondPlayerID(), gameID)
	return cloneGame(game), true, nil
}

func (s *GameStore) release(userID, gameID string) {
	if s.active[userID] == gameID {
		delete(s.active, userID)
	}
}

func (s *GameStore) GetGame(_ context.Context, gameID string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return cloneGame(game), nil
}

func (s *GameStore) FindUnfinishedGame(_ context.Context, userID string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[userID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return cloneGame(s.games[id]), nil
}

func (s *GameStore) GamesForUser(_ context.Context, userID string) ([]domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Game
	for _, id := range s.order {
		if game := s.games[id]; game.HasPlayer(userID) {
			out = append(out, cloneGame(game))
		}
	}
	return out, nil
}

func (s *GameStore) ActiveGames(_ context.Context) ([]domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Game
	for _, id := range s.order {
		if game := s.games[id]; game.Status == domain.StatusActive {
			out = append(out, cloneGame(game))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PairCreatedDate.Before(out[j].PairCreatedDate)
	})
	return out, nil
}

func (s *GameStore) Answers(_ context.Context, gameID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Answer(nil), s.answers[gameID]...), nil
}

func cloneGame(game domain.Game) domain.Game {
	if game.SecondPlayer != nil {
		second := *game.SecondPlayer
		game.SecondPlayer = &second
	}
	game.Questions = cloneQuestions(game.Questions)
	return game
}

func cloneQuestions(questions []domain.Question) []domain.Question {
	if questions == nil {
		return nil
	}
	out := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.CorrectAnswers = append([]string(nil), q.CorrectAnswers...)
		out[i] = q
	}
	return out
}

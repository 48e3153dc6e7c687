package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pair-quiz-service/internal/domain"
	"pair-quiz-service/internal/logging"
)

// maxAppendAttempts bounds retries when the same user submits answers concurrently.
const maxAppendAttempts = domain.QuestionsPerGame

// PairGameService contains the pair quiz use cases.
type PairGameService struct {
	games     GameRepository
	questions QuestionBank
	hub       *Hub
	bus       UpdateBus
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option customizes a PairGameService.
type Option func(*PairGameService)

// WithClock overrides the time source; used for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(s *PairGameService) { s.now = now }
}

// timestamp is the current time at the microsecond precision every store keeps.
func (s *PairGameService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *PairGameService) { s.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(s *PairGameService) { s.metrics = m }
}

// WithUpdateBus shares game updates with other replicas.
func WithUpdateBus(bus UpdateBus) Option {
	return func(s *PairGameService) { s.bus = bus }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *PairGameService) { s.newID = newID }
}

func NewPairGameService(games GameRepository, questions QuestionBank, opts ...Option) *PairGameService {
	s := &PairGameService{
		games:     games,
		questions: questions,
		hub:       NewHub(),
		metrics:   noopMetrics{},
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	return s
}

// Connect joins the oldest pending game of another user or opens a new pending game.
func (s *PairGameService) Connect(ctx context.Context, player domain.Player) (domain.GameView, error) {
	if _, err := s.games.FindUnfinishedGame(ctx, player.ID); err == nil {
		return domain.GameView{}, domain.ErrAlreadyInGame
	} else if !errors.Is(err, domain.ErrGameNotFound) {
		return domain.GameView{}, err
	}

	pending, found, err := s.games.FindPendingGame(ctx, player.ID)
	if err != nil {
		return domain.GameView{}, err
	}
	if found {
		game, joined, err := s.join(ctx, pending, player)
		if err != nil {
			return domain.GameView{}, err
		}
		if joined {
			return s.publish(ctx, game)
		}
	}

	game := domain.Game{
		ID:              s.newID(),
		FirstPlayer:     player,
		Status:          domain.StatusPendingSecondPlayer,
		PairCreatedDate: s.timestamp(),
	}
	if err := s.games.CreateGame(ctx, game); err != nil {
		return domain.GameView{}, err
	}
	s.metrics.GameCreated()
	logging.Info(s.logger, "pending game created", logging.FieldGameID, game.ID, logging.FieldUserID, player.ID)
	return domain.BuildGameView(game, nil), nil
}

func (s *PairGameService) join(ctx context.Context, pending domain.Game, player domain.Player) (domain.Game, bool, error) {
	if pending.FirstPlayer.ID == player.ID {
		return domain.Game{}, false, nil
	}
	questions, err := s.questions.SelectQuestions(ctx)
	if err != nil {
		return domain.Game{}, false, err
	}
	game, ok, err := s.games.ActivateGame(ctx, pending.ID, player, questions, s.timestamp())
	if err != nil {
		return domain.Game{}, false, err
	}
	if !ok {
		s.metrics.MatchRaceLost()
		logging.Debug(s.logger, "pending game claimed by another player", logging.FieldGameID, pending.ID, logging.FieldUserID, player.ID)
		return domain.Game{}, false, nil
	}
	s.metrics.GameStarted()
	logging.Info(s.logger, "game started", logging.FieldGameID, game.ID,
		"first_player", game.FirstPlayer.ID, "second_player", player.ID)
	return game, true, nil
}

// SubmitAnswer records the caller's answer to their next unanswered question.
func (s *PairGameService) SubmitAnswer(ctx context.Context, userID, text string) (domain.AnswerView, error) {
	game, err := s.games.FindUnfinishedGame(ctx, userID)
	if errors.Is(err, domain.ErrGameNotFound) {
		return domain.AnswerView{}, domain.ErrNoActiveGame
	}
	if err != nil {
		return domain.AnswerView{}, err
	}
	if game.Status != domain.StatusActive {
		return domain.AnswerView{}, domain.ErrNoActiveGame
	}

	var recorded domain.Answer
	appended := false
	for attempt := 0; attempt < maxAppendAttempts && !appended; attempt++ {
		answers, err := s.games.Answers(ctx, game.ID)
		if err != nil {
			return domain.AnswerView{}, err
		}
		position := domain.CountAnswers(answers, userID)
		if position >= len(game.Questions) {
			return domain.AnswerView{}, domain.ErrAllQuestionsAnswered
		}

		question := game.Questions[position]
		status := domain.AnswerIncorrect
		if s.questions.CheckAnswer(question, text) {
			status = domain.AnswerCorrect
		}
		recorded = domain.Answer{
			GameID:       game.ID,
			UserID:       userID,
			QuestionID:   question.ID,
			AnswerStatus: status,
			AddedAt:      s.timestamp(),
		}
		appended, err = s.games.AppendAnswer(ctx, recorded, position)
		if err != nil {
			return domain.AnswerView{}, err
		}
		if !appended {
			// Either a concurrent submission took this position or the game finished.
			current, err := s.games.GetGame(ctx, game.ID)
			if err != nil {
				return domain.AnswerView{}, err
			}
			if current.Status != domain.StatusActive {
				return domain.AnswerView{}, domain.ErrNoActiveGame
			}
		}
	}
	if !appended {
		answers, err := s.games.Answers(ctx, game.ID)
		if err != nil {
			return domain.AnswerView{}, err
		}
		if domain.CountAnswers(answers, userID) >= len(game.Questions) {
			return domain.AnswerView{}, domain.ErrAllQuestionsAnswered
		}
		return domain.AnswerView{}, domain.ErrAnswerConflict
	}
	s.metrics.AnswerRecorded(recorded.AnswerStatus)

	answers, err := s.games.Answers(ctx, game.ID)
	if err != nil {
		return domain.AnswerView{}, err
	}
	if bothFinished(game, answers) {
		if finished, ok, err := s.games.FinishGame(ctx, game.ID, s.timestamp()); err != nil {
			return domain.AnswerView{}, err
		} else if ok {
			s.metrics.GameFinished(false)
			logging.Info(s.logger, "game finished", logging.FieldGameID, game.ID)
			game = finished
		} else if current, err := s.games.GetGame(ctx, game.ID); err == nil {
			game = current
		}
	}
	if _, err := s.publish(ctx, game); err != nil {
		logging.Error(s.logger, "publish game update", err, logging.FieldGameID, game.ID)
	}
	return domain.ViewOf(recorded), nil
}

func bothFinished(game domain.Game, answers []domain.Answer) bool {
	if game.SecondPlayer == nil {
		return false
	}
	return domain.CountAnswers(answers, game.FirstPlayer.ID) == domain.QuestionsPerGame &&
		domain.CountAnswers(answers, game.SecondPlayer.ID) == domain.QuestionsPerGame
}

// CurrentGame returns the caller's pending or active game.
func (s *PairGameService) CurrentGame(ctx context.Context, userID string) (domain.GameView, error) {
	game, err := s.games.FindUnfinishedGame(ctx, userID)
	if errors.Is(err, domain.ErrGameNotFound) {
		return domain.GameView{}, domain.ErrNoCurrentGame
	}
	if err != nil {
		return domain.GameView{}, err
	}
	return s.view(ctx, game)
}

// GameByID returns any game the caller takes part in.
func (s *PairGameService) GameByID(ctx context.Context, gameID, userID string) (domain.GameView, error) {
	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return domain.GameView{}, err
	}
	if !game.HasPlayer(userID) {
		return domain.GameView{}, domain.ErrNotParticipant
	}
	return s.view(ctx, game)
}

// Statistics folds every game of userID into cumulative counters.
func (s *PairGameService) Statistics(ctx context.Context, userID string) (domain.Statistic, error) {
	games, err := s.games.GamesForUser(ctx, userID)
	if err != nil {
		return domain.Statistic{}, err
	}
	results := make([]domain.GameResult, 0, len(games))
	for _, game := range games {
		if game.Status == domain.StatusPendingSecondPlayer {
			continue
		}
		answers, err := s.games.Answers(ctx, game.ID)
		if err != nil {
			return domain.Statistic{}, err
		}
		results = append(results, domain.GameResult{Game: game, Answers: answers})
	}
	return domain.FoldStatistics(userID, results), nil
}

// Subscribe streams views of the caller's current game. The first value is the current view.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *PairGameService) Subscribe(ctx context.Context, userID string) (<-chan domain.GameView, func(), error) {
	view, err := s.CurrentGame(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(view.ID, view)
	return ch, cancel, nil
}

func (s *PairGameService) view(ctx context.Context, game domain.Game) (domain.GameView, error) {
	answers, err := s.games.Answers(ctx, game.ID)
	if err != nil {
		return domain.GameView{}, err
	}
	return domain.BuildGameView(game, answers), nil
}

func (s *PairGameService) publish(ctx context.Context, game domain.Game) (domain.GameView, error) {
	view, err := s.view(ctx, game)
	if err != nil {
		return domain.GameView{}, err
	}
	s.hub.publish(view)
	if s.bus != nil {
		if err := s.bus.Announce(ctx, game.ID); err != nil {
			logging.Error(s.logger, "announce game update", err, logging.FieldGameID, game.ID)
		}
	}
	return view, nil
}

// RelayUpdates delivers updates announced by other replicas to local subscribers.
// It blocks until ctx is done and returns nil when no UpdateBus is configured.
func (s *PairGameService) RelayUpdates(ctx context.Context) error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Listen(ctx, func(gameID string) {
		if s.hub.subscriberCount(gameID) == 0 {
			return
		}
		game, err := s.games.GetGame(ctx, gameID)
		if err != nil {
			logging.Error(s.logger, "load relayed game", err, logging.FieldGameID, gameID)
			return
		}
		view, err := s.view(ctx, game)
		if err != nil {
			logging.Error(s.logger, "build relayed game view", err, logging.FieldGameID, gameID)
			return
		}
		s.hub.publish(view)
	})
}

type noopMetrics struct{}

func (noopMetrics) GameCreated()                       {}
func (noopMetrics) GameStarted()                       {}
func (noopMetrics) GameFinished(bool)                  {}
func (noopMetrics) AnswerRecorded(domain.AnswerStatus) {}
func (noopMetrics) MatchRaceLost()                     {}

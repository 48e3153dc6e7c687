package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"pair-quiz-service/internal/domain"
)

// maxTxRetries bounds optimistic transaction retries when a watched key changes under us.
const maxTxRetries = 8

// errNotApplied aborts a watched transaction whose precondition no longer holds.
var errNotApplied = errors.New("precondition not met")

// GameStore is a Redis implementation of app.GameRepository.
//
// Layout:
//
//	pairquiz:game:{id}           JSON encoded domain.Game
//	pairquiz:answers:{id}        list of JSON encoded domain.Answer in insertion order
//	pairquiz:active:{userID}     id of the user's pending or active game
//	pairquiz:pending             zset of pending game ids scored by creation time
//	pairquiz:games:active        set of active game ids
//	pairquiz:user:{userID}:games zset of every game id of the user scored by creation time
//
// Transitions run in WATCH/MULTI/EXEC transactions so concurrent writers cannot both apply.
type GameStore struct {
	client *redis.Client
}

func NewGameStore(client *redis.Client) *GameStore {
	return &GameStore{client: client}
}

func (s *GameStore) CreateGame(ctx context.Context, game domain.Game) error {
	userID := game.FirstPlayer.ID
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("encode game: %w", err)
	}
	score := float64(game.PairCreatedDate.UnixMicro())

	applied, err := s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, activeKey(userID)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrAlreadyInGame
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gameKey(game.ID), data, 0)
			pipe.Set(ctx, activeKey(userID), game.ID, 0)
			pipe.ZAdd(ctx, pendingKey, redis.Z{Score: score, Member: game.ID})
			pipe.ZAdd(ctx, userGamesKey(userID), redis.Z{Score: score, Member: game.ID})
			return nil
		})
		return err
	}, activeKey(userID))
	if err != nil {
		return err
	}
	if !applied {
		return domain.ErrAlreadyInGame
	}
	return nil
}

func (s *GameStore) FindPendingGame(ctx context.Context, excludeUserID string) (domain.Game, bool, error) {
	ids, err := s.client.ZRange(ctx, pendingKey, 0, -1).Result()
	if err != nil {
		return domain.Game{}, false, fmt.Errorf("list pending games: %w", err)
	}
	for _, id := range ids {
		game, err := readGame(ctx, s.client, id)
		if errors.Is(err, domain.ErrGameNotFound) {
			continue
		}
		if err != nil {
			return domain.Game{}, false, err
		}
		if game.Status == domain.StatusPendingSecondPlayer && game.FirstPlayer.ID != excludeUserID {
			return game, true, nil
		}
	}
	return domain.Game{}, false, nil
}

func (s *GameStore) ActivateGame(ctx context.Context, gameID string, player domain.Player, questions []domain.Question, startedAt time.Time) (domain.Game, bool, error) {
	var activated domain.Game
	applied, err := s.watch(ctx, func(tx *redis.Tx) error {
		game, err := readGame(ctx, tx, gameID)
		if errors.Is(err, domain.ErrGameNotFound) {
			return errNotApplied
		}
		if err != nil {
			return err
		}
		if game.Status != domain.StatusPendingSecondPlayer || game.FirstPlayer.ID == player.ID {
			return errNotApplied
		}
		n, err := tx.Exists(ctx, activeKey(player.ID)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrAlreadyInGame
		}

		second := player
		started := startedAt
		game.SecondPlayer = &second
		game.Questions = questions
		game.StartGameDate = &started
		game.Status = domain.StatusActive
		data, err := json.Marshal(game)
		if err != nil {
			return fmt.Errorf("encode game: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gameKey(gameID), data, 0)
			pipe.Set(ctx, activeKey(player.ID), gameID, 0)
			pipe.ZRem(ctx, pendingKey, gameID)
			pipe.SAdd(ctx, activeGamesKey, gameID)
			pipe.ZAdd(ctx, userGamesKey(player.ID), redis.Z{Score: float64(game.PairCreatedDate.UnixMicro()), Member: gameID})
			return nil
		})
		if err == nil {
			activated = game
		}
		return err
	}, gameKey(gameID), activeKey(player.ID))
	if err != nil || !applied {
		return domain.Game{}, false, err
	}
	return activated, true, nil
}

func (s *GameStore) AppendAnswer(ctx context.Context, answer domain.Answer, position int) (bool, error) {
	data, err := json.Marshal(answer)
	if err != nil {
		return false, fmt.Errorf("encode answer: %w", err)
	}
	return s.watch(ctx, func(tx *redis.Tx) error {
		game, err := readGame(ctx, tx, answer.GameID)
		if err != nil {
			return err
		}
		if game.Status != domain.StatusActive || !game.HasPlayer(answer.UserID) {
			return errNotApplied
		}
		existing, err := readAnswers(ctx, tx, answer.GameID)
		if err != nil {
			return err
		}
		if domain.CountAnswers(existing, answer.UserID) != position {
			return errNotApplied
		}
		for _, a := range existing {
			if a.UserID == answer.UserID && a.QuestionID == answer.QuestionID {
				return errNotApplied
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, answersKey(answer.GameID), data)
			return nil
		})
		return err
	}, gameKey(answer.GameID), answersKey(answer.GameID))
}

func (s *GameStore) FinishGame(ctx context.Context, gameID string, finishedAt time.Time) (domain.Game, bool, error) {
	var finished domain.Game
	applied, err := s.watch(ctx, func(tx *redis.Tx) error {
		game, err := readGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if game.Status != domain.StatusActive {
			return errNotApplied
		}
		at := finishedAt
		game.Status = domain.StatusFinished
		game.FinishGameDate = &at
		data, err := json.Marshal(game)
		if err != nil {
			return fmt.Errorf("encode game: %w", err)
		}

		release := make([]string, 0, 2)
		for _, userID := range []string{game.FirstPlayer.ID, game.SecondPlayerID()} {
			current, err := tx.Get(ctx, activeKey(userID)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if current == gameID {
				release = append(release, activeKey(userID))
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gameKey(gameID), data, 0)
			pipe.SRem(ctx, activeGamesKey, gameID)
			if len(release) > 0 {
				pipe.Del(ctx, release...)
			}
			return nil
		})
		if err == nil {
			finished = game
		}
		return err
	}, gameKey(gameID))
	if err != nil || !applied {
		return domain.Game{}, false, err
	}
	return finished, true, nil
}

func (s *GameStore) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	return readGame(ctx, s.client, gameID)
}

func (s *GameStore) FindUnfinishedGame(ctx context.Context, userID string) (domain.Game, error) {
	gameID, err := s.client.Get(ctx, activeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("lookup active game: %w", err)
	}
	return readGame(ctx, s.client, gameID)
}

func (s *GameStore) GamesForUser(ctx context.Context, userID string) ([]domain.Game, error) {
	ids, err := s.client.ZRange(ctx, userGamesKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list user games: %w", err)
	}
	return s.readGames(ctx, ids)
}

func (s *GameStore) ActiveGames(ctx context.Context) ([]domain.Game, error) {
	ids, err := s.client.SMembers(ctx, activeGamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	games, err := s.readGames(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(games, func(i, j int) bool {
		return games[i].PairCreatedDate.Before(games[j].PairCreatedDate)
	})
	return games, nil
}

func (s *GameStore) Answers(ctx context.Context, gameID string) ([]domain.Answer, error) {
	return readAnswers(ctx, s.client, gameID)
}

func (s *GameStore) readGames(ctx context.Context, ids []string) ([]domain.Game, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, gameKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read games: %w", err)
	}

	games := make([]domain.Game, 0, len(ids))
	for _, cmd := range cmds {
		raw, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var game domain.Game
		if err := json.Unmarshal(raw, &game); err != nil {
			return nil, fmt.Errorf("decode game: %w", err)
		}
		games = append(games, game)
	}
	return games, nil
}

// watch runs fn in an optimistic transaction over keys, retrying when a watched key
// changes concurrently. It reports false when fn returned errNotApplied or retries ran out.
func (s *GameStore) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) (bool, error) {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errNotApplied):
			return false, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return false, err
		}
	}
	return false, nil
}

// reader is satisfied by both *redis.Client and the *redis.Tx of a watched transaction.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

func readGame(ctx context.Context, c reader, gameID string) (domain.Game, error) {
	raw, err := c.Get(ctx, gameKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("read game: %w", err)
	}
	var game domain.Game
	if err := json.Unmarshal(raw, &game); err != nil {
		return domain.Game{}, fmt.Errorf("decode game: %w", err)
	}
	return game, nil
}

func readAnswers(ctx context.Context, c reader, gameID string) ([]domain.Answer, error) {
	raws, err := c.LRange(ctx, answersKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	answers := make([]domain.Answer, 0, len(raws))
	for _, raw := range raws {
		var a domain.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, nil
}

const (
	pendingKey     = "pairquiz:pending"
	activeGamesKey = "pairquiz:games:active"
)

func gameKey(id string) string          { return "pairquiz:game:" + id }
func answersKey(id string) string       { return "pairquiz:answers:" + id }
func activeKey(userID string) string    { return "pairquiz:active:" + userID }
func userGamesKey(userID string) string { return "pairquiz:user:" + userID + ":games" }

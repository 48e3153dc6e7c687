package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pair-quiz-service/internal/domain"
)

const gameColumns = `id, first_player_id, first_player_login, second_player_id, second_player_login, status, questions, pair_created_date, start_game_date, finish_game_date`

// qualifiedGameColumns prefixes gameColumns with the pair_games alias used in joins.
var qualifiedGameColumns = "g." + strings.ReplaceAll(gameColumns, ", ", ", g.")

// GameStore is a Postgres implementation of app.GameRepository.
// Transitions are single UPDATE ... WHERE status = expected statements inside a transaction
// together with the active_players index, so the row lock decides concurrent writers.
type GameStore struct {
	pool *pgxpool.Pool
}

func NewGameStore(pool *pgxpool.Pool) *GameStore {
	return &GameStore{pool: pool}
}

func (s *GameStore) CreateGame(ctx context.Context, game domain.Game) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO pair_games (id, first_player_id, first_player_login, status, pair_created_date)
			VALUES ($1, $2, $3, $4, $5)`,
			game.ID, game.FirstPlayer.ID, game.FirstPlayer.Login, string(game.Status), game.PairCreatedDate)
		if err != nil {
			return fmt.Errorf("insert game: %w", err)
		}
		return claimPlayer(ctx, tx, game.FirstPlayer.ID, game.ID)
	})
}

func (s *GameStore) FindPendingGame(ctx context.Context, excludeUserID string) (domain.Game, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM pair_games
		WHERE status = $1 AND first_player_id <> $2
		ORDER BY pair_created_date, id LIMIT 1`,
		string(domain.StatusPendingSecondPlayer), excludeUserID)
	game, err := scanGame(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, false, nil
	}
	if err != nil {
		return domain.Game{}, false, fmt.Errorf("find pending game: %w", err)
	}
	return game, true, nil
}

func (s *GameStore) ActivateGame(ctx context.Context, gameID string, player domain.Player, questions []domain.Question, startedAt time.Time) (domain.Game, bool, error) {
	data, err := json.Marshal(questions)
	if err != nil {
		return domain.Game{}, false, fmt.Errorf("encode questions: %w", err)
	}

	var (
		game    domain.Game
		applied bool
	)
	err = s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `UPDATE pair_games
			SET second_player_id = $2, second_player_login = $3, questions = $4, start_game_date = $5, status = $6
			WHERE id = $1 AND status = $7 AND first_player_id <> $2
			RETURNING `+gameColumns,
			gameID, player.ID, player.Login, string(data), startedAt,
			string(domain.StatusActive), string(domain.StatusPendingSecondPlayer))
		updated, err := scanGame(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("activate game: %w", err)
		}
		if err := claimPlayer(ctx, tx, player.ID, gameID); err != nil {
			return err
		}
		game, applied = updated, true
		return nil
	})
	if err != nil {
		return domain.Game{}, false, err
	}
	return game, applied, nil
}

func (s *GameStore) AppendAnswer(ctx context.Context, answer domain.Answer, position int) (bool, error) {
	applied := false
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var (
			status   string
			firstID  string
			secondID *string
		)
		// the row lock orders appends of both players against FinishGame
		err := tx.QueryRow(ctx, `SELECT status, first_player_id, second_player_id FROM pair_games WHERE id = $1 FOR UPDATE`,
			answer.GameID).Scan(&status, &firstID, &secondID)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrGameNotFound
		}
		if err != nil {
			return fmt.Errorf("lock game: %w", err)
		}
		isPlayer := firstID == answer.UserID || (secondID != nil && *secondID == answer.UserID)
		if domain.GameStatus(status) != domain.StatusActive || !isPlayer {
			return nil
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM pair_answers WHERE game_id = $1 AND user_id = $2`,
			answer.GameID, answer.UserID).Scan(&count); err != nil {
			return fmt.Errorf("count answers: %w", err)
		}
		if count != position {
			return nil
		}

		tag, err := tx.Exec(ctx, `INSERT INTO pair_answers (game_id, user_id, position, question_id, answer_status, added_at)
			VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`,
			answer.GameID, answer.UserID, position, answer.QuestionID, string(answer.AnswerStatus), answer.AddedAt)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		applied = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *GameStore) FinishGame(ctx context.Context, gameID string, finishedAt time.Time) (domain.Game, bool, error) {
	var (
		game    domain.Game
		applied bool
	)
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `UPDATE pair_games SET status = $2, finish_game_date = $3
			WHERE id = $1 AND status = $4
			RETURNING `+gameColumns,
			gameID, string(domain.StatusFinished), finishedAt, string(domain.StatusActive))
		updated, err := scanGame(row)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pair_games WHERE id = $1)`, gameID).Scan(&exists); err != nil {
				return fmt.Errorf("check game: %w", err)
			}
			if !exists {
				return domain.ErrGameNotFound
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("finish game: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM active_players WHERE game_id = $1`, gameID); err != nil {
			return fmt.Errorf("release players: %w", err)
		}
		game, applied = updated, true
		return nil
	})
	if err != nil {
		return domain.Game{}, false, err
	}
	return game, applied, nil
}

func (s *GameStore) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	game, err := scanGame(s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM pair_games WHERE id = $1`, gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("get game: %w", err)
	}
	return game, nil
}

func (s *GameStore) FindUnfinishedGame(ctx context.Context, userID string) (domain.Game, error) {
	game, err := scanGame(s.pool.QueryRow(ctx, `SELECT `+qualifiedGameColumns+`
		FROM active_players a JOIN pair_games g ON g.id = a.game_id
		WHERE a.user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("find unfinished game: %w", err)
	}
	return game, nil
}

func (s *GameStore) GamesForUser(ctx context.Context, userID string) ([]domain.Game, error) {
	return s.queryGames(ctx, `SELECT `+gameColumns+` FROM pair_games
		WHERE first_player_id = $1 OR second_player_id = $1
		ORDER BY pair_created_date, id`, userID)
}

func (s *GameStore) ActiveGames(ctx context.Context) ([]domain.Game, error) {
	return s.queryGames(ctx, `SELECT `+gameColumns+` FROM pair_games
		WHERE status = $1 ORDER BY pair_created_date, id`, string(domain.StatusActive))
}

func (s *GameStore) Answers(ctx context.Context, gameID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `SELECT game_id, user_id, question_id, answer_status, added_at
		FROM pair_answers WHERE game_id = $1 ORDER BY seq`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.Answer
	for rows.Next() {
		var (
			a      domain.Answer
			status string
		)
		if err := rows.Scan(&a.GameID, &a.UserID, &a.QuestionID, &status, &a.AddedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.AnswerStatus = domain.AnswerStatus(status)
		a.AddedAt = a.AddedAt.UTC()
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func (s *GameStore) queryGames(ctx context.Context, query string, args ...interface{}) ([]domain.Game, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

// claimPlayer records userID as busy with gameID, failing when the user already holds a game.
func claimPlayer(ctx context.Context, tx pgx.Tx, userID, gameID string) error {
	tag, err := tx.Exec(ctx, `INSERT INTO active_players (user_id, game_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, gameID)
	if err != nil {
		return fmt.Errorf("claim player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyInGame
	}
	return nil
}

func scanGame(row pgx.Row) (domain.Game, error) {
	var (
		game                        domain.Game
		status                      string
		secondID, secondLogin       *string
		rawQuestions                []byte
		startGameDate, finishedDate *time.Time
	)
	err := row.Scan(&game.ID, &game.FirstPlayer.ID, &game.FirstPlayer.Login, &secondID, &secondLogin,
		&status, &rawQuestions, &game.PairCreatedDate, &startGameDate, &finishedDate)
	if err != nil {
		return domain.Game{}, err
	}
	game.Status = domain.GameStatus(status)
	game.PairCreatedDate = game.PairCreatedDate.UTC()
	if secondID != nil {
		second := domain.Player{ID: *secondID}
		if secondLogin != nil {
			second.Login = *secondLogin
		}
		game.SecondPlayer = &second
	}
	if len(rawQuestions) > 0 {
		if err := json.Unmarshal(rawQuestions, &game.Questions); err != nil {
			return domain.Game{}, fmt.Errorf("decode questions: %w", err)
		}
	}
	if startGameDate != nil {
		t := startGameDate.UTC()
		game.StartGameDate = &t
	}
	if finishedDate != nil {
		t := finishedDate.UTC()
		game.FinishGameDate = &t
	}
	return game, nil
}

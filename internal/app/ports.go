package app

import (
	"context"
	"time"

	"pair-quiz-service/internal/domain"
)

// GameRepository abstracts how pair games and their answers are stored (in-memory, Redis, Postgres).
//
// Every state transition is a conditional write: it reports false instead of failing when the
// game is no longer in the expected state, so callers can take the alternate path.
// Implementations keep a per-user index of the unfinished game and update it in the same
// atomic unit as the transition.
type GameRepository interface {
	// CreateGame stores a new pending game. It returns domain.ErrAlreadyInGame if the first
	// player already has an unfinished game.
	CreateGame(ctx context.Context, game domain.Game) error
	// FindPendingGame returns the oldest pending game not created by excludeUserID.
	FindPendingGame(ctx context.Context, excludeUserID string) (domain.Game, bool, error)
	// ActivateGame binds player as second player if the game is still pending.
	ActivateGame(ctx context.Context, gameID string, player domain.Player, questions []domain.Question, startedAt time.Time) (domain.Game, bool, error)
	// AppendAnswer records answer if the game is active and the user has exactly position answers.
	AppendAnswer(ctx context.Context, answer domain.Answer, position int) (bool, error)
	// FinishGame moves an active game to finished and releases both players.
	FinishGame(ctx context.Context, gameID string, finishedAt time.Time) (domain.Game, bool, error)

	GetGame(ctx context.Context, gameID string) (domain.Game, error)
	// FindUnfinishedGame returns the pending or active game of userID or domain.ErrGameNotFound.
	FindUnfinishedGame(ctx context.Context, userID string) (domain.Game, error)
	GamesForUser(ctx context.Context, userID string) ([]domain.Game, error)
	ActiveGames(ctx context.Context) ([]domain.Game, error)
	// Answers returns the answers of a game in insertion order.
	Answers(ctx context.Context, gameID string) ([]domain.Answer, error)
}

// QuestionBank supplies questions for new games and judges answers.
type QuestionBank interface {
	SelectQuestions(ctx context.Context) ([]domain.Question, error)
	CheckAnswer(question domain.Question, answer string) bool
}

// UpdateBus relays game change notices between service replicas so websocket subscribers
// connected to any replica see every update.
type UpdateBus interface {
	// Announce tells other replicas that gameID changed.
	Announce(ctx context.Context, gameID string) error
	// Listen calls deliver for every game changed on another replica until ctx is done.
	Listen(ctx context.Context, deliver func(gameID string)) error
}

// Metrics receives game lifecycle events. A nil Metrics is allowed.
type Metrics interface {
	GameCreated()
	GameStarted()
	GameFinished(forfeit bool)
	AnswerRecorded(status domain.AnswerStatus)
	MatchRaceLost()
}

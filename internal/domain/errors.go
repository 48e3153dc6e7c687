package domain

import "errors"

var (
	// ErrGameNotFound is returned when no game exists for the requested id.
	ErrGameNotFound = errors.New("game not found")
	// ErrNoCurrentGame is returned when the user has no pending or active game.
	ErrNoCurrentGame = errors.New("no current game for user")
	// ErrNotParticipant is returned when a user reads a game they do not play in.
	ErrNotParticipant = errors.New("user is not a participant of the game")
	// ErrAlreadyInGame is returned when a user with an unfinished game tries to connect again.
	ErrAlreadyInGame = errors.New("user already participates in an unfinished game")
	// ErrNoActiveGame is returned when a user answers without an active game.
	ErrNoActiveGame = errors.New("no active game for user")
	// ErrAllQuestionsAnswered is returned once a user has answered every question.
	ErrAllQuestionsAnswered = errors.New("all questions already answered")
	// ErrAnswerConflict is returned when the user's own concurrent submissions keep taking the answer slot.
	// The caller may retry.
	ErrAnswerConflict = errors.New("answer conflicted with a concurrent submission, retry")
	// ErrNotEnoughQuestions indicates the question pool cannot fill a game.
	ErrNotEnoughQuestions = errors.New("not enough published questions")
)

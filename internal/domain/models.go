package domain

import (
	"strings"
	"time"
)

// QuestionsPerGame is the fixed number of questions assigned to every pair game.
const QuestionsPerGame = 5

// GameStatus is the lifecycle state of a pair game.
type GameStatus string

const (
	StatusPendingSecondPlayer GameStatus = "PendingSecondPlayer"
	StatusActive              GameStatus = "Active"
	StatusFinished            GameStatus = "Finished"
)

// AnswerStatus reports whether a recorded answer was accepted.
type AnswerStatus string

const (
	AnswerCorrect   AnswerStatus = "Correct"
	AnswerIncorrect AnswerStatus = "Incorrect"
)

// Player identifies an authenticated user taking part in a game.
type Player struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

// Question is a quiz question together with its accepted answers.
type Question struct {
	ID             string   `json:"id"`
	Body           string   `json:"body"`
	CorrectAnswers []string `json:"correctAnswers"`
}

// Accepts reports whether answer matches one of the accepted answers,
// ignoring surrounding whitespace and letter case.
func (q Question) Accepts(answer string) bool {
	answer = strings.TrimSpace(answer)
	for _, candidate := range q.CorrectAnswers {
		if strings.EqualFold(strings.TrimSpace(candidate), answer) {
			return true
		}
	}
	return false
}

// Game is a quiz match between two players.
// SecondPlayer, Questions and StartGameDate stay nil while the game is pending.
type Game struct {
	ID              string     `json:"id"`
	FirstPlayer     Player     `json:"firstPlayer"`
	SecondPlayer    *Player    `json:"secondPlayer"`
	Status          GameStatus `json:"status"`
	Questions       []Question `json:"questions"`
	PairCreatedDate time.Time  `json:"pairCreatedDate"`
	StartGameDate   *time.Time `json:"startGameDate"`
	FinishGameDate  *time.Time `json:"finishGameDate"`
}

// HasPlayer reports whether userID occupies either player slot.
func (g Game) HasPlayer(userID string) bool {
	if g.FirstPlayer.ID == userID {
		return true
	}
	return g.SecondPlayer != nil && g.SecondPlayer.ID == userID
}

// SecondPlayerID returns the second player's id or "" while pending.
func (g Game) SecondPlayerID() string {
	if g.SecondPlayer == nil {
		return ""
	}
	return g.SecondPlayer.ID
}

// Answer is one player's recorded response to one game question.
type Answer struct {
	GameID       string       `json:"gameId"`
	UserID       string       `json:"userId"`
	QuestionID   string       `json:"questionId"`
	AnswerStatus AnswerStatus `json:"answerStatus"`
	AddedAt      time.Time    `json:"addedAt"`
}

// CountAnswers returns how many answers userID has recorded.
func CountAnswers(answers []Answer, userID string) int {
	n := 0
	for _, a := range answers {
		if a.UserID == userID {
			n++
		}
	}
	return n
}

// Score holds both players' derived scores for a game.
type Score struct {
	FirstPlayerScore  int `json:"firstPlayerScore"`
	SecondPlayerScore int `json:"secondPlayerScore"`
}

// Statistic aggregates a user's results across all games.
type Statistic struct {
	SumScore    int     `json:"sumScore"`
	AvgScores   float64 `json:"avgScores"`
	GamesCount  int     `json:"gamesCount"`
	WinsCount   int     `json:"winsCount"`
	LossesCount int     `json:"lossesCount"`
	DrawsCount  int     `json:"drawsCount"`
}

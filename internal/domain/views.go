package domain

import "time"

// AnswerView is the public shape of a recorded answer.
type AnswerView struct {
	QuestionID   string       `json:"questionId"`
	AnswerStatus AnswerStatus `json:"answerStatus"`
	AddedAt      time.Time    `json:"addedAt"`
}

// QuestionView hides the accepted answers of a question.
type QuestionView struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// PlayerProgress is one player's side of a game view.
type PlayerProgress struct {
	Answers []AnswerView `json:"answers"`
	Player  Player       `json:"player"`
	Score   int          `json:"score"`
}

// GameView is the public shape of a game returned to its players.
type GameView struct {
	ID                   string          `json:"id"`
	FirstPlayerProgress  PlayerProgress  `json:"firstPlayerProgress"`
	SecondPlayerProgress *PlayerProgress `json:"secondPlayerProgress"`
	Questions            []QuestionView  `json:"questions"`
	Status               GameStatus      `json:"status"`
	PairCreatedDate      time.Time       `json:"pairCreatedDate"`
	StartGameDate        *time.Time      `json:"startGameDate"`
	FinishGameDate       *time.Time      `json:"finishGameDate"`
}

// ViewOf renders an answer for clients.
func ViewOf(a Answer) AnswerView {
	return AnswerView{QuestionID: a.QuestionID, AnswerStatus: a.AnswerStatus, AddedAt: a.AddedAt}
}

// BuildGameView renders game with scores derived from answers.
// Pending games never expose questions or a second player's progress.
func BuildGameView(game Game, answers []Answer) GameView {
	first, second := PartitionAnswers(game, answers)
	score := CalculateScore(game, answers)

	view := GameView{
		ID: game.ID,
		FirstPlayerProgress: PlayerProgress{
			Answers: answerViews(first),
			Player:  game.FirstPlayer,
			Score:   score.FirstPlayerScore,
		},
		Status:          game.Status,
		PairCreatedDate: game.PairCreatedDate,
		StartGameDate:   game.StartGameDate,
		FinishGameDate:  game.FinishGameDate,
	}
	if game.Status == StatusPendingSecondPlayer || game.SecondPlayer == nil {
		return view
	}

	view.SecondPlayerProgress = &PlayerProgress{
		Answers: answerViews(second),
		Player:  *game.SecondPlayer,
		Score:   score.SecondPlayerScore,
	}
	view.Questions = make([]QuestionView, 0, len(game.Questions))
	for _, q := range game.Questions {
		view.Questions = append(view.Questions, QuestionView{ID: q.ID, Body: q.Body})
	}
	return view
}

func answerViews(answers []Answer) []AnswerView {
	views := make([]AnswerView, 0, len(answers))
	for _, a := range answers {
		views = append(views, ViewOf(a))
	}
	return views
}

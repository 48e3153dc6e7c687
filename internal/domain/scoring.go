package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PartitionAnswers splits answers into the first and second player's answers,
// each ordered by AddedAt. Equal timestamps keep their input order.
func PartitionAnswers(game Game, answers []Answer) (first, second []Answer) {
	secondID := game.SecondPlayerID()
	for _, a := range answers {
		if a.GameID != "" && a.GameID != game.ID {
			continue
		}
		switch {
		case a.UserID == game.FirstPlayer.ID:
			first = append(first, a)
		case secondID != "" && a.UserID == secondID:
			second = append(second, a)
		}
	}
	sortByAddedAt(first)
	sortByAddedAt(second)
	return first, second
}

func sortByAddedAt(answers []Answer) {
	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].AddedAt.Before(answers[j].AddedAt)
	})
}

func countCorrect(answers []Answer) int {
	n := 0
	for _, a := range answers {
		if a.AnswerStatus == AnswerCorrect {
			n++
		}
	}
	return n
}

// CalculateScore derives both players' scores from the game's answer log.
//
// Each correct answer is worth one point. Once both players have answered every
// question, one bonus point goes to the first player if they finished strictly
// earlier with more than one correct answer; otherwise it goes to the second
// player provided the second player has at least one correct answer.
func CalculateScore(game Game, answers []Answer) Score {
	first, second := PartitionAnswers(game, answers)
	score := Score{
		FirstPlayerScore:  countCorrect(first),
		SecondPlayerScore: countCorrect(second),
	}

	if len(first) == QuestionsPerGame && len(second) == QuestionsPerGame {
		firstFinishedFirst := first[len(first)-1].AddedAt.Before(second[len(second)-1].AddedAt)
		if firstFinishedFirst && score.FirstPlayerScore > 1 {
			score.FirstPlayerScore++
		} else if score.SecondPlayerScore > 0 {
			score.SecondPlayerScore++
		}
	}
	return score
}

// GameResult pairs a game with its answer log for aggregation.
type GameResult struct {
	Game    Game
	Answers []Answer
}

// FoldStatistics aggregates userID's results. Games without a second player are skipped.
func FoldStatistics(userID string, results []GameResult) Statistic {
	var stat Statistic
	for _, r := range results {
		if r.Game.Status == StatusPendingSecondPlayer || r.Game.SecondPlayer == nil {
			continue
		}
		if !r.Game.HasPlayer(userID) {
			continue
		}

		score := CalculateScore(r.Game, r.Answers)
		own, opponent := score.FirstPlayerScore, score.SecondPlayerScore
		if r.Game.FirstPlayer.ID != userID {
			own, opponent = opponent, own
		}

		stat.SumScore += own
		switch {
		case own > opponent:
			stat.WinsCount++
		case own < opponent:
			stat.LossesCount++
		default:
			stat.DrawsCount++
		}
	}

	stat.GamesCount = stat.WinsCount + stat.LossesCount + stat.DrawsCount
	if stat.GamesCount > 0 {
		avg := decimal.NewFromInt(int64(stat.SumScore)).
			Div(decimal.NewFromInt(int64(stat.GamesCount))).
			Round(2)
		stat.AvgScores = avg.InexactFloat64()
	}
	return stat
}

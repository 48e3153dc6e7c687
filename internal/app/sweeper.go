package app

import (
	"context"
	"time"

	"pair-quiz-service/internal/domain"
	"pair-quiz-service/internal/logging"
)

// FinishAbandoned finishes active games in which one player answered every question
// more than forfeitAfter ago while the opponent is still answering. It returns how
// many games were finished. A non-positive forfeitAfter disables the sweep.
func (s *PairGameService) FinishAbandoned(ctx context.Context, forfeitAfter time.Duration) (int, error) {
	if forfeitAfter <= 0 {
		return 0, nil
	}
	games, err := s.games.ActiveGames(ctx)
	if err != nil {
		return 0, err
	}

	now := s.timestamp()
	finished := 0
	for _, game := range games {
		answers, err := s.games.Answers(ctx, game.ID)
		if err != nil {
			return finished, err
		}
		completedAt, ok := abandonedSince(game, answers)
		if !ok || now.Sub(completedAt) < forfeitAfter {
			continue
		}

		done, ok, err := s.games.FinishGame(ctx, game.ID, now)
		if err != nil {
			return finished, err
		}
		if !ok {
			continue
		}
		finished++
		s.metrics.GameFinished(true)
		logging.Info(s.logger, "abandoned game finished", logging.FieldGameID, game.ID)
		if _, err := s.publish(ctx, done); err != nil {
			logging.Error(s.logger, "publish game update", err, logging.FieldGameID, game.ID)
		}
	}
	return finished, nil
}

// abandonedSince reports when the only player who answered everything did so.
func abandonedSince(game domain.Game, answers []domain.Answer) (time.Time, bool) {
	first, second := domain.PartitionAnswers(game, answers)
	firstDone := len(first) == domain.QuestionsPerGame
	secondDone := len(second) == domain.QuestionsPerGame
	switch {
	case firstDone && !secondDone:
		return first[len(first)-1].AddedAt, true
	case secondDone && !firstDone:
		return second[len(second)-1].AddedAt, true
	default:
		return time.Time{}, false
	}
}

// RunSweeper calls FinishAbandoned every interval until ctx is done.
func (s *PairGameService) RunSweeper(ctx context.Context, interval, forfeitAfter time.Duration) {
	if interval <= 0 || forfeitAfter <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.FinishAbandoned(ctx, forfeitAfter); err != nil {
				logging.Error(s.logger, "sweep abandoned games", err)
			} else if n > 0 {
				logging.Info(s.logger, "swept abandoned games", logging.FieldCount, n)
			}
		}
	}
}

package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pair-quiz-service/internal/domain"
)

var base = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestGameStoreLifecycle(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewGameStore(client)
	ctx := context.Background()

	alice := domain.Player{ID: "u1", Login: "alice"}
	bob := domain.Player{ID: "u2", Login: "bob"}

	game := domain.Game{ID: "g1", FirstPlayer: alice, Status: domain.StatusPendingSecondPlayer, PairCreatedDate: base}
	if err := store.CreateGame(ctx, game); err != nil {
		t.Fatalf("create game: %v", err)
	}
	if err := store.CreateGame(ctx, domain.Game{ID: "g2", FirstPlayer: alice, Status: domain.StatusPendingSecondPlayer}); !errors.Is(err, domain.ErrAlreadyInGame) {
		t.Fatalf("expected ErrAlreadyInGame, got %v", err)
	}
	if !mr.Exists("pairquiz:active:u1") {
		t.Fatalf("expected active index key for creator")
	}

	if _, found, _ := store.FindPendingGame(ctx, alice.ID); found {
		t.Fatalf("creator must not find own pending game")
	}
	pending, found, err := store.FindPendingGame(ctx, bob.ID)
	if err != nil || !found || pending.ID != "g1" {
		t.Fatalf("expected pending g1, got %+v found=%v err=%v", pending, found, err)
	}

	activated, ok, err := store.ActivateGame(ctx, "g1", bob, questions(), base.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("activate: ok=%v err=%v", ok, err)
	}
	if activated.Status != domain.StatusActive || activated.SecondPlayerID() != bob.ID || len(activated.Questions) != domain.QuestionsPerGame {
		t.Fatalf("unexpected activated game: %+v", activated)
	}
	if _, ok, _ := store.ActivateGame(ctx, "g1", domain.Player{ID: "u3"}, questions(), base); ok {
		t.Fatalf("second activation must not apply")
	}
	if _, found, _ := store.FindPendingGame(ctx, "u3"); found {
		t.Fatalf("activated game must leave the pending queue")
	}

	ok, err = store.AppendAnswer(ctx, answer("g1", bob.ID, "q1"), 0)
	if err != nil || !ok {
		t.Fatalf("append: ok=%v err=%v", ok, err)
	}
	if ok, _ := store.AppendAnswer(ctx, answer("g1", bob.ID, "q2"), 0); ok {
		t.Fatalf("append at a taken position must not apply")
	}
	if ok, _ := store.AppendAnswer(ctx, answer("g1", "u3", "q1"), 0); ok {
		t.Fatalf("outsider append must not apply")
	}

	active, err := store.ActiveGames(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("expected one active game, got %d err=%v", len(active), err)
	}

	finished, ok, err := store.FinishGame(ctx, "g1", base.Add(time.Minute))
	if err != nil || !ok || finished.Status != domain.StatusFinished || finished.FinishGameDate == nil {
		t.Fatalf("finish: %+v ok=%v err=%v", finished, ok, err)
	}
	if _, ok, _ := store.FinishGame(ctx, "g1", base); ok {
		t.Fatalf("finishing twice must not apply")
	}
	if ok, _ := store.AppendAnswer(ctx, answer("g1", alice.ID, "q1"), 0); ok {
		t.Fatalf("append to finished game must not apply")
	}

	if _, err := store.FindUnfinishedGame(ctx, alice.ID); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected players released, got %v", err)
	}
	if mr.Exists("pairquiz:active:u2") {
		t.Fatalf("expected active index key removed")
	}

	games, err := store.GamesForUser(ctx, bob.ID)
	if err != nil || len(games) != 1 || games[0].ID != "g1" {
		t.Fatalf("expected bob history [g1], got %+v err=%v", games, err)
	}
	answers, err := store.Answers(ctx, "g1")
	if err != nil || len(answers) != 1 || answers[0].QuestionID != "q1" {
		t.Fatalf("unexpected answers: %+v err=%v", answers, err)
	}
	if _, err := store.GetGame(ctx, "missing"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestGameStoreActivateRace(t *testing.T) {
	_, client := newMiniredis(t)
	store := NewGameStore(client)
	ctx := context.Background()

	if err := store.CreateGame(ctx, domain.Game{ID: "g1", FirstPlayer: domain.Player{ID: "host"}, Status: domain.StatusPendingSecondPlayer, PairCreatedDate: base}); err != nil {
		t.Fatalf("create game: %v", err)
	}

	const joiners = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			player := domain.Player{ID: string(rune('a' + i))}
			_, ok, err := store.ActivateGame(ctx, "g1", player, questions(), base)
			if err != nil {
				t.Errorf("activate: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners = append(winners, player.ID)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	game, err := store.GetGame(ctx, "g1")
	if err != nil || game.SecondPlayerID() != winners[0] {
		t.Fatalf("stored second player %q does not match winner %v (err=%v)", game.SecondPlayerID(), winners, err)
	}
}

func TestGameStoreAppendRace(t *testing.T) {
	_, client := newMiniredis(t)
	store := NewGameStore(client)
	ctx := context.Background()

	if err := store.CreateGame(ctx, domain.Game{ID: "g1", FirstPlayer: domain.Player{ID: "u1"}, Status: domain.StatusPendingSecondPlayer, PairCreatedDate: base}); err != nil {
		t.Fatalf("create game: %v", err)
	}
	if _, ok, err := store.ActivateGame(ctx, "g1", domain.Player{ID: "u2"}, questions(), base); err != nil || !ok {
		t.Fatalf("activate: ok=%v err=%v", ok, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.AppendAnswer(ctx, answer("g1", "u1", "q1"), 0)
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("expected a single append at position 0, got %d", applied)
	}
}

func questions() []domain.Question {
	out := make([]domain.Question, domain.QuestionsPerGame)
	for i := range out {
		id := "q" + string(rune('1'+i))
		out[i] = domain.Question{ID: id, Body: "question " + id, CorrectAnswers: []string{"a" + string(rune('1'+i))}}
	}
	return out
}

func answer(gameID, userID, questionID string) domain.Answer {
	return domain.Answer{GameID: gameID, UserID: userID, QuestionID: questionID, AnswerStatus: domain.AnswerCorrect, AddedAt: base}
}

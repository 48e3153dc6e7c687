package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pair-quiz-service/internal/domain"
	"pair-quiz-service/internal/infra/memory"
)

func TestQuestionBankCachesInRedis(t *testing.T) {
	mr, client := newMiniredis(t)

	loader := &countingLoader{QuestionLoader: memory.NewStaticQuestionLoader(memory.SampleQuestions())}
	bank := NewQuestionBank(client, loader, time.Minute)

	picked, err := bank.SelectQuestions(context.Background())
	if err != nil {
		t.Fatalf("select questions: %v", err)
	}
	if len(picked) != domain.QuestionsPerGame {
		t.Fatalf("expected %d questions, got %d", domain.QuestionsPerGame, len(picked))
	}
	if loader.Calls() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.Calls())
	}
	if !mr.Exists(questionsKey) {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL(questionsKey); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with jitter, got %s", ttl)
	}

	// Second call should hit cache, loader not incremented.
	if _, err := bank.SelectQuestions(context.Background()); err != nil {
		t.Fatalf("select questions: %v", err)
	}
	if loader.Calls() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.Calls())
	}
}

func TestQuestionBankReloadsAfterExpiry(t *testing.T) {
	mr, client := newMiniredis(t)

	loader := &countingLoader{QuestionLoader: memory.NewStaticQuestionLoader(memory.SampleQuestions())}
	bank := NewQuestionBank(client, loader, time.Minute)

	if _, err := bank.SelectQuestions(context.Background()); err != nil {
		t.Fatalf("select questions: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := bank.SelectQuestions(context.Background()); err != nil {
		t.Fatalf("select questions: %v", err)
	}
	if loader.Calls() != 2 {
		t.Fatalf("expected reload after expiry, loader calls=%d", loader.Calls())
	}

	if err := InvalidateQuestionPool(context.Background(), client); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists(questionsKey) {
		t.Fatalf("expected cache to be dropped")
	}
}

func TestQuestionBankCachedPoolKeepsAnswers(t *testing.T) {
	_, client := newMiniredis(t)
	bank := NewQuestionBank(client, memory.NewStaticQuestionLoader(memory.SampleQuestions()), time.Minute)

	if _, err := bank.SelectQuestions(context.Background()); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	picked, err := bank.SelectQuestions(context.Background())
	if err != nil {
		t.Fatalf("select questions: %v", err)
	}
	seen := make(map[string]bool)
	for _, q := range picked {
		if seen[q.ID] {
			t.Fatalf("question %s picked twice", q.ID)
		}
		seen[q.ID] = true
		if q.Body == "" || len(q.CorrectAnswers) == 0 {
			t.Fatalf("cached question lost its content: %+v", q)
		}
		if !bank.CheckAnswer(q, " "+q.CorrectAnswers[0]+" ") {
			t.Fatalf("expected cached answer %q to be accepted", q.CorrectAnswers[0])
		}
	}
}

func TestQuestionBankSmallPool(t *testing.T) {
	_, client := newMiniredis(t)
	bank := NewQuestionBank(client, memory.NewStaticQuestionLoader(memory.SampleQuestions()[:3]), time.Minute)

	if _, err := bank.SelectQuestions(context.Background()); !errors.Is(err, domain.ErrNotEnoughQuestions) {
		t.Fatalf("expected ErrNotEnoughQuestions, got %v", err)
	}
}

type countingLoader struct {
	memory.QuestionLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.QuestionLoader.LoadQuestions(ctx)
}

func (l *countingLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

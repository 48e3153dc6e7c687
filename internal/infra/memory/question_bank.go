package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pair-quiz-service/internal/domain"
)

// QuestionLoader fetches the published question pool from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

const poolKey = "published"

// QuestionBank caches the question pool with TTL to avoid repeated DB hits
// and draws random questions for new games.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu        sync.RWMutex
	pool      []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) SelectQuestions(ctx context.Context) ([]domain.Question, error) {
	pool, err := b.questionPool(ctx)
	if err != nil {
		return nil, err
	}
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return domain.PickQuestions(pool, b.rnd.Perm)
}

func (b *QuestionBank) CheckAnswer(question domain.Question, answer string) bool {
	return question.Accepts(answer)
}

func (b *QuestionBank) questionPool(ctx context.Context) ([]domain.Question, error) {
	now := b.clock()

	b.mu.RLock()
	if b.pool != nil && b.expiresAt.After(now) {
		pool := b.pool
		b.mu.RUnlock()
		return pool, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do(poolKey, func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if b.pool != nil && b.expiresAt.After(now) {
			pool := b.pool
			b.mu.RUnlock()
			return pool, nil
		}
		b.mu.RUnlock()

		pool, err := b.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.pool = pool
		b.expiresAt = now.Add(b.ttlWithJitter())
		b.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by a fixed slice (useful for tests/demos).
type StaticQuestionLoader struct {
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	if len(l.questions) == 0 {
		return nil, domain.ErrNotEnoughQuestions
	}
	return l.questions, nil
}

// SampleQuestions provides a small published pool for local runs without Postgres.
func SampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "8f0c2a4e-0b6e-4d49-9a4b-8a7f0a1d0001", Body: "What is 2 + 2?", CorrectAnswers: []string{"4", "four"}},
		{ID: "8f0c2a4e-0b6e-4d49-9a4b-8a7f0a1d0002", Body: "What is the capital of France?", CorrectAnswers: []string{"Paris"}},
		{ID: "8f0c2a4e-0b6e-4d49-9a4b-8a7f0a1d0003", Body: "How many days are in a leap year?", CorrectAnswers: []string{"366"}},
		{ID: "8f0c2a4e-0b6e-4d49-9a4b-8a7f0a1d0004", Body: "Which planet is known as the Red Planet?", CorrectAnswers: []string{"Mars"}},
		{ID: "8f0c2a4e-0b6e-4d49-9a4b-8a7f0a1d0005", Body: "What is the chemical symbol for water?", CorrectAnswers: []string{"H2O"}},
		{ID: "8f0c2a4e-0b6e-4d49-9a4b-8a7f0a1d0006", Body: "How many continents are there?", CorrectAnswers: []string{"7", "seven"}},
		{ID: "8f0c2a4e-0b6e-4d49-9a4b-8a7f0a1d0007", Body: "Who wrote 'Romeo and Juliet'?", CorrectAnswers: []string{"Shakespeare", "William Shakespeare"}},
	}
}

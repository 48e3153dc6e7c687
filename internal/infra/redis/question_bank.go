package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"pair-quiz-service/internal/domain"
	"pair-quiz-service/internal/infra/memory"
)

const questionsKey = "pairquiz:questions"

// QuestionBank caches the published question pool in Redis and falls back to a loader on cache miss.
// Questions are stored as: HSET pairquiz:questions {questionID} {json}
// so every replica draws from the same pool until the hash expires.
type QuestionBank struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionBank(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
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
	cached, err := b.client.HGetAll(ctx, questionsKey).Result()
	if err == nil && len(cached) > 0 {
		return decodePool(cached)
	}

	result, err, _ := b.sf.Do(questionsKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := b.client.HGetAll(ctx, questionsKey).Result()
		if err == nil && len(cached) > 0 {
			return decodePool(cached)
		}

		pool, err := b.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		fields := make(map[string]interface{}, len(pool))
		for _, q := range pool {
			data, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("encode question: %w", err)
			}
			fields[q.ID] = data
		}
		pipe := b.client.Pipeline()
		pipe.Del(ctx, questionsKey)
		if len(fields) > 0 {
			pipe.HSet(ctx, questionsKey, fields)
		}
		if ttl := b.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, questionsKey, ttl)
		}
		// a failed cache write only costs another load
		_, _ = pipe.Exec(ctx)

		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// InvalidateQuestionPool drops the cached pool so the next selection on any replica reloads it.
func InvalidateQuestionPool(ctx context.Context, client *redis.Client) error {
	return client.Del(ctx, questionsKey).Err()
}

func decodePool(cached map[string]string) ([]domain.Question, error) {
	pool := make([]domain.Question, 0, len(cached))
	for _, raw := range cached {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		pool = append(pool, q)
	}
	// hash iteration order is random; keep draws reproducible for a given seed
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return pool, nil
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

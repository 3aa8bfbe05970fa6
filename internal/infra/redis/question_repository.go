package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/domain"
)

const loadTimeout = 10 * time.Second

// QuestionLoader fetches question content from the backing question bank.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// QuestionRepository caches questions in Redis and falls back to a loader on
// cache miss. Each question is stored as JSON under quizroom:question:{id}.
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration, logger *zap.Logger) *QuestionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetQuestions returns the questions in the order of ids, failing with
// domain.ErrQuestionNotFound if any id is unknown.
func (r *QuestionRepository) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	found, missing := r.cached(ctx, ids)
	if len(missing) > 0 {
		loaded, err := r.load(ctx, missing)
		if err != nil {
			return nil, err
		}
		for id, q := range loaded {
			found[id] = q
		}
	}

	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := found[id]
		if !ok {
			return nil, domain.ErrQuestionNotFound
		}
		out = append(out, q)
	}
	return out, nil
}

// cached reads what Redis has. A Redis failure is treated as a full miss so
// the bank keeps serving.
func (r *QuestionRepository) cached(ctx context.Context, ids []string) (map[string]domain.Question, []string) {
	found := make(map[string]domain.Question, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = questionKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Warn("question cache read failed", zap.Error(err))
		return found, append([]string(nil), ids...)
	}

	var missing []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		found[ids[i]] = q
	}
	return found, missing
}

func (r *QuestionRepository) load(ctx context.Context, ids []string) (map[string]domain.Question, error) {
	ch := r.sf.DoChan(flightKey(ids), func() (interface{}, error) {
		// Shared by every waiter, so no single caller may cancel it.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		// Re-check cache in case another goroutine filled it.
		loaded, missing := r.cached(flightCtx, ids)
		if len(missing) == 0 {
			return loaded, nil
		}

		questions, err := r.loader.LoadQuestions(flightCtx, missing)
		if err != nil {
			return nil, fmt.Errorf("load questions: %w", err)
		}

		pipe := r.client.Pipeline()
		for _, q := range questions {
			loaded[q.ID] = q
			raw, err := json.Marshal(q)
			if err != nil {
				continue
			}
			pipe.Set(flightCtx, questionKey(q.ID), raw, r.ttlWithJitter())
		}
		if _, err := pipe.Exec(flightCtx); err != nil {
			r.logger.Warn("question cache write failed", zap.Error(err))
		}
		return loaded, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]domain.Question), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func questionKey(id string) string {
	return "quizroom:question:" + id
}

func flightKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

package memory

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/domain"
)

// loadTimeout bounds one shared bank load.
const loadTimeout = 10 * time.Second

// QuestionLoader fetches question content from the backing question bank.
// Implementations return the questions they found; missing ids are simply absent.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// QuestionRepository caches questions with TTL to avoid repeated bank hits.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestion),
	}
}

// GetQuestions returns the questions in the order of ids. Any id the bank does
// not know fails the whole call with domain.ErrQuestionNotFound.
func (r *QuestionRepository) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	found, missing := r.cached(ids)
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
		out = append(out, cloneQuestion(q))
	}
	return out, nil
}

func (r *QuestionRepository) cached(ids []string) (map[string]domain.Question, []string) {
	now := r.clock()
	found := make(map[string]domain.Question, len(ids))
	var missing []string

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if entry, ok := r.cache[id]; ok && entry.expiresAt.After(now) {
			found[id] = entry.question
			continue
		}
		missing = append(missing, id)
	}
	return found, missing
}

// load collapses concurrent misses into one bank call. The call is detached
// from the first caller's cancellation; each caller still stops waiting when
// its own ctx ends.
func (r *QuestionRepository) load(ctx context.Context, ids []string) (map[string]domain.Question, error) {
	ch := r.sf.DoChan(flightKey(ids), func() (interface{}, error) {
		// Re-check cache in case another flight filled it.
		loaded, missing := r.cached(ids)
		if len(missing) == 0 {
			return loaded, nil
		}
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		questions, err := r.loader.LoadQuestions(flightCtx, missing)
		if err != nil {
			return nil, err
		}
		now := r.clock()

		r.mu.Lock()
		for _, q := range questions {
			loaded[q.ID] = q
			r.cache[q.ID] = cachedQuestion{
				question:  q,
				expiresAt: now.Add(r.ttlWithJitter()),
			}
		}
		r.mu.Unlock()
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
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	l := &StaticQuestionLoader{questions: make(map[string]domain.Question, len(questions))}
	for _, q := range questions {
		l.questions[q.ID] = q
	}
	return l
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, ids []string) ([]domain.Question, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := l.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// SaveQuestions adds or replaces questions in the bank.
func (l *StaticQuestionLoader) SaveQuestions(_ context.Context, questions []domain.Question) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, q := range questions {
		l.questions[q.ID] = q
	}
	return nil
}

func flightKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}

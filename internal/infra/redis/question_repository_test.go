package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{QuestionLoader: memory.NewStaticQuestionLoader(sampleQuestions())}
	repo := NewQuestionRepository(newClient(mr), loader, time.Minute, nil)

	qs, err := repo.GetQuestions(context.Background(), []string{"q2", "q1"})
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(qs) != 2 || qs[0].ID != "q2" || qs[1].Options[1] != "4" {
		t.Fatalf("unexpected questions %+v", qs)
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.count())
	}
	if !mr.Exists("quizroom:question:q1") || !mr.Exists("quizroom:question:q2") {
		t.Fatalf("expected cached question keys")
	}

	// Second call should hit cache, loader not incremented.
	qs, _ = repo.GetQuestions(context.Background(), []string{"q1"})
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.count())
	}
	if qs[0].CorrectIndex != 1 || qs[0].Kind != domain.KindObjective {
		t.Fatalf("cached question lost fields: %+v", qs[0])
	}
}

func TestQuestionRepositoryExpiresWithJitter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{QuestionLoader: memory.NewStaticQuestionLoader(sampleQuestions())}
	repo := NewQuestionRepository(newClient(mr), loader, time.Minute, nil)
	if _, err := repo.GetQuestions(context.Background(), []string{"q1"}); err != nil {
		t.Fatalf("get questions: %v", err)
	}

	ttl := mr.TTL("quizroom:question:q1")
	if ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("ttl outside jitter window: %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := repo.GetQuestions(context.Background(), []string{"q1"}); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if loader.count() != 2 {
		t.Fatalf("expected reload after expiry, got %d", loader.count())
	}
}

func TestQuestionRepositoryMissingQuestion(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewQuestionRepository(newClient(mr), memory.NewStaticQuestionLoader(sampleQuestions()), time.Minute, nil)
	_, err = repo.GetQuestions(context.Background(), []string{"q1", "missing"})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestQuestionRepositoryServesWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	loader := &countingLoader{QuestionLoader: memory.NewStaticQuestionLoader(sampleQuestions())}
	repo := NewQuestionRepository(client, loader, time.Minute, nil)
	qs, err := repo.GetQuestions(context.Background(), []string{"q1"})
	if err != nil {
		t.Fatalf("expected bank to serve without cache: %v", err)
	}
	if len(qs) != 1 {
		t.Fatalf("expected one question, got %d", len(qs))
	}
}

func TestQuestionRepositoryLoadSurvivesCallerCancel(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(sampleQuestions()),
		gate:           make(chan struct{}),
		entered:        make(chan struct{}, 1),
	}
	repo := NewQuestionRepository(newClient(mr), loader, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := repo.GetQuestions(ctx, []string{"q1"})
		firstErr <- err
	}()
	<-loader.entered
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(loader.gate)
	deadline := time.Now().Add(2 * time.Second)
	for !mr.Exists("quizroom:question:q1") {
		if time.Now().After(deadline) {
			t.Fatalf("detached load never filled the cache")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := repo.GetQuestions(context.Background(), []string{"q1"}); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected a single load, got %d", loader.count())
	}
}

type countingLoader struct {
	QuestionLoader
	gate    chan struct{}
	entered chan struct{}

	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.gate != nil {
		l.entered <- struct{}{}
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return l.QuestionLoader.LoadQuestions(ctx, ids)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "What is 2 + 2?", Kind: domain.KindObjective, Options: []string{"3", "4"}, CorrectIndex: 1},
		{ID: "q2", Text: "Capital of France?", Kind: domain.KindSubjective, ReferenceAnswer: "Paris", UseScorer: true},
	}
}

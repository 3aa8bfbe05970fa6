package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizroom-service/internal/domain"
)

type stubScorer struct {
	assessment Assessment
	err        error
	delay      time.Duration
	calls      int
}

func (s *stubScorer) Evaluate(ctx context.Context, _, _, _ string) (Assessment, error) {
	s.calls++
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.assessment, s.err
}

var (
	objective = domain.Question{
		ID: "q1", Text: "2 + 2?", Kind: domain.KindObjective,
		Options: []string{"3", "4", "5"}, CorrectIndex: 1,
	}
	subjective = domain.Question{
		ID: "q2", Text: "Capital of France?", Kind: domain.KindSubjective,
		ReferenceAnswer: "Paris", UseScorer: true,
	}
)

func TestObjectiveIsExactIndexMatch(t *testing.T) {
	ev := New(nil, 0, nil)

	out := ev.Evaluate(context.Background(), objective, "1")
	assert.True(t, out.IsCorrect)
	assert.Equal(t, 1.0, out.Points)
	assert.Equal(t, "4", out.CorrectAnswer)
	require.NotNil(t, out.Score)
	assert.Equal(t, 100, *out.Score)

	out = ev.Evaluate(context.Background(), objective, "2")
	assert.False(t, out.IsCorrect)
	assert.Zero(t, out.Points)
	assert.Equal(t, 0, *out.Score)

	out = ev.Evaluate(context.Background(), objective, "four")
	assert.False(t, out.IsCorrect)
}

func TestSubjectiveScoreThresholds(t *testing.T) {
	cases := []struct {
		score  int
		points float64
	}{
		{100, 1}, {80, 1}, {79, 0.5}, {65, 0.5}, {50, 0.5}, {49, 0}, {0, 0}, {140, 1}, {-3, 0},
	}
	for _, tc := range cases {
		scorer := &stubScorer{assessment: Assessment{IsCorrect: tc.score >= 80, Score: tc.score, Feedback: "ok"}}
		out := New(scorer, time.Second, nil).Evaluate(context.Background(), subjective, "paris-ish")
		assert.Equal(t, tc.points, out.Points, "score %d", tc.score)
		require.NotNil(t, out.Score)
		assert.GreaterOrEqual(t, *out.Score, 0)
		assert.LessOrEqual(t, *out.Score, 100)
		assert.Equal(t, "ok", out.Feedback)
		assert.False(t, out.Fallback)
	}
}

func TestScorerScore65AwardsHalfPoint(t *testing.T) {
	scorer := &stubScorer{assessment: Assessment{IsCorrect: false, Score: 65, Feedback: "partially right"}}
	out := New(scorer, time.Second, nil).Evaluate(context.Background(), subjective, "Paris, Texas")

	assert.Equal(t, 0.5, out.Points)
	assert.Equal(t, 65, *out.Score)
	assert.Equal(t, "partially right", out.Feedback)
	assert.Equal(t, "Paris", out.CorrectAnswer)
}

func TestScorerFailureFallsBackToExactMatch(t *testing.T) {
	scorer := &stubScorer{err: errors.New("503 from upstream")}
	out := New(scorer, time.Second, nil).Evaluate(context.Background(), subjective, "  pARIS \n")

	assert.True(t, out.IsCorrect)
	assert.Equal(t, 1.0, out.Points)
	assert.True(t, out.Fallback)
	assert.Nil(t, out.Score)
	assert.Empty(t, out.Feedback)
	assert.Equal(t, 1, scorer.calls)

	out = New(scorer, time.Second, nil).Evaluate(context.Background(), subjective, "Lyon")
	assert.False(t, out.IsCorrect)
	assert.Zero(t, out.Points)
}

func TestScorerTimeoutFallsBack(t *testing.T) {
	scorer := &stubScorer{assessment: Assessment{IsCorrect: true, Score: 100}, delay: 300 * time.Millisecond}
	start := time.Now()
	out := New(scorer, 20*time.Millisecond, nil).Evaluate(context.Background(), subjective, "paris")

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.True(t, out.Fallback)
	assert.True(t, out.IsCorrect)
	assert.Equal(t, 1.0, out.Points)
	assert.Nil(t, out.Score)
}

func TestScorerNotConsultedWhenDisabled(t *testing.T) {
	scorer := &stubScorer{assessment: Assessment{Score: 0}}
	q := subjective
	q.UseScorer = false

	out := New(scorer, time.Second, nil).Evaluate(context.Background(), q, "Paris")
	assert.True(t, out.IsCorrect)
	assert.Equal(t, 1.0, out.Points)
	assert.Zero(t, scorer.calls)
	assert.False(t, out.Fallback)
}

func TestHTTPScorer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Paris", req.ReferenceAnswer)
		_ = json.NewEncoder(w).Encode(map[string]any{"isCorrect": true, "score": 92, "feedback": "spot on"})
	}))
	defer server.Close()

	scorer := NewHTTPScorer(HTTPScorerConfig{URL: server.URL, APIKey: "secret"})
	a, err := scorer.Evaluate(context.Background(), "Capital of France?", "Paris", "paris")
	require.NoError(t, err)
	assert.Equal(t, Assessment{IsCorrect: true, Score: 92, Feedback: "spot on"}, a)
}

func TestHTTPScorerRoundsFractionalScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isCorrect":false,"score":72.5}`))
	}))
	defer server.Close()

	a, err := NewHTTPScorer(HTTPScorerConfig{URL: server.URL}).Evaluate(context.Background(), "q", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 73, a.Score)
	assert.Equal(t, 0.5, Credit(a.Score))
}

func TestHTTPScorerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewHTTPScorer(HTTPScorerConfig{URL: server.URL}).Evaluate(context.Background(), "q", "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

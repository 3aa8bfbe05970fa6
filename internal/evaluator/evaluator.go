// Package evaluator decides whether a submitted answer is correct and how many
// points it earns. Free-text answers may be graded by an external scorer; when
// the scorer fails or times out a deterministic string comparison applies.
package evaluator

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quizroom-service/internal/domain"
)

const (
	// DefaultTimeout bounds a single scorer call.
	DefaultTimeout = 8 * time.Second

	fullCreditScore = 80
	halfCreditScore = 50
)

// Assessment is the external scorer's verdict for a free-text answer.
type Assessment struct {
	IsCorrect bool
	Score     int
	Feedback  string
}

// Scorer grades a candidate answer against a reference answer.
type Scorer interface {
	Evaluate(ctx context.Context, questionText, referenceAnswer, candidateAnswer string) (Assessment, error)
}

// Outcome is the evaluated result of one submission.
type Outcome struct {
	IsCorrect     bool
	Points        float64
	Score         *int
	Feedback      string
	CorrectAnswer string
	// Fallback is set when the scorer was consulted but could not answer.
	Fallback bool
}

// Evaluator maps (question, answer) to an Outcome.
type Evaluator struct {
	scorer  Scorer
	timeout time.Duration
	logger  *zap.Logger
}

// New builds an evaluator. A nil scorer means every subjective answer uses the
// fallback comparison.
func New(scorer Scorer, timeout time.Duration, logger *zap.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{scorer: scorer, timeout: timeout, logger: logger}
}

// Evaluate grades answer against q.
func (e *Evaluator) Evaluate(ctx context.Context, q domain.Question, answer string) Outcome {
	switch q.Kind {
	case domain.KindObjective:
		return evaluateObjective(q, answer)
	default:
		if q.UseScorer && e.scorer != nil {
			assessment, err := e.score(ctx, q, answer)
			if err == nil {
				return creditFromAssessment(q, assessment)
			}
			e.logger.Warn("scorer failed, falling back to exact match",
				zap.String("question_id", q.ID), zap.Error(err))
			out := evaluateExact(q, answer)
			out.Fallback = true
			return out
		}
		return evaluateExact(q, answer)
	}
}

// score calls the scorer under the configured timeout. The call runs in its
// own goroutine so a scorer that ignores ctx cannot hold the caller; its late
// reply lands in the buffered channel and is dropped.
func (e *Evaluator) score(ctx context.Context, q domain.Question, answer string) (Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		assessment Assessment
		err        error
	}
	done := make(chan result, 1)
	go func() {
		a, err := e.scorer.Evaluate(ctx, q.Text, q.ReferenceAnswer, answer)
		done <- result{assessment: a, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Assessment{}, &domain.Error{Kind: domain.KindDependency, Message: domain.ErrScorerUnavailable.Message, Err: r.err}
		}
		return r.assessment, nil
	case <-ctx.Done():
		return Assessment{}, &domain.Error{Kind: domain.KindDependency, Message: domain.ErrScorerUnavailable.Message, Err: ctx.Err()}
	}
}

func evaluateObjective(q domain.Question, answer string) Outcome {
	selected, err := strconv.Atoi(strings.TrimSpace(answer))
	correct := err == nil && selected == q.CorrectIndex
	score := 0
	out := Outcome{IsCorrect: correct, CorrectAnswer: q.CorrectAnswer()}
	if correct {
		out.Points = 1
		score = 100
	}
	out.Score = &score
	return out
}

func evaluateExact(q domain.Question, answer string) Outcome {
	correct := normalize(q.ReferenceAnswer) == normalize(answer)
	out := Outcome{IsCorrect: correct, CorrectAnswer: q.CorrectAnswer()}
	if correct {
		out.Points = 1
	}
	return out
}

func creditFromAssessment(q domain.Question, a Assessment) Outcome {
	score := clamp(a.Score)
	return Outcome{
		IsCorrect:     a.IsCorrect,
		Points:        Credit(score),
		Score:         &score,
		Feedback:      a.Feedback,
		CorrectAnswer: q.CorrectAnswer(),
	}
}

// Credit converts a 0-100 scorer score into points.
func Credit(score int) float64 {
	switch {
	case score >= fullCreditScore:
		return 1
	case score >= halfCreditScore:
		return 0.5
	default:
		return 0
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
)

// HTTPScorerConfig configures the remote grading endpoint.
type HTTPScorerConfig struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPScorer grades answers by POSTing them to a JSON endpoint.
type HTTPScorer struct {
	cfg HTTPScorerConfig
}

func NewHTTPScorer(cfg HTTPScorerConfig) *HTTPScorer {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &HTTPScorer{cfg: cfg}
}

type scoreRequest struct {
	Question        string `json:"question"`
	ReferenceAnswer string `json:"referenceAnswer"`
	CandidateAnswer string `json:"candidateAnswer"`
}

type scoreResponse struct {
	IsCorrect bool     `json:"isCorrect"`
	Score     *float64 `json:"score"`
	Feedback  string   `json:"feedback"`
}

func (s *HTTPScorer) Evaluate(ctx context.Context, questionText, referenceAnswer, candidateAnswer string) (Assessment, error) {
	endpoint := strings.TrimSpace(s.cfg.URL)
	if endpoint == "" {
		return Assessment{}, fmt.Errorf("scorer url is required")
	}
	body, err := json.Marshal(scoreRequest{
		Question:        questionText,
		ReferenceAnswer: referenceAnswer,
		CandidateAnswer: candidateAnswer,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("marshal score request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Assessment{}, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(s.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	res, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return Assessment{}, fmt.Errorf("score request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Assessment{}, fmt.Errorf("score request status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload scoreResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Assessment{}, fmt.Errorf("decode score response: %w", err)
	}
	if payload.Score == nil {
		return Assessment{}, fmt.Errorf("score response missing score")
	}
	return Assessment{
		IsCorrect: payload.IsCorrect,
		Score:     int(math.Round(*payload.Score)),
		Feedback:  payload.Feedback,
	}, nil
}

package memory

import (
	"context"
	"sort"
	"sync"

	"quizroom-service/internal/domain"
)

// StatsStore aggregates per-identity results in process memory.
type StatsStore struct {
	mu    sync.Mutex
	stats map[string]domain.PlayerStats
}

func NewStatsStore() *StatsStore {
	return &StatsStore{stats: make(map[string]domain.PlayerStats)}
}

func (s *StatsStore) Increment(_ context.Context, userID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[userID]
	st.UserID = userID
	st.TotalScore += score
	st.GamesPlayed++
	s.stats[userID] = st
	return nil
}

// Get returns the aggregate for one identity; the zero value if it never played.
func (s *StatsStore) Get(_ context.Context, userID string) (domain.PlayerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[userID]
	if !ok {
		return domain.PlayerStats{UserID: userID}, nil
	}
	return st, nil
}

// Top ranks identities by total score; ties are broken by user id.
func (s *StatsStore) Top(_ context.Context, limit int) ([]domain.PlayerStats, error) {
	s.mu.Lock()
	out := make([]domain.PlayerStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"quizroom-service/internal/domain"
)

const leaderboardKey = "quizroom:leaderboard"

// StatsStore keeps per-identity aggregates in a hash per user
// (quizroom:stats:{userID} -> totalScore, gamesPlayed) and mirrors the totals
// into a sorted set for the leaderboard.
type StatsStore struct {
	client *redis.Client
}

func NewStatsStore(client *redis.Client) *StatsStore {
	return &StatsStore{client: client}
}

// Increment applies both counters and the leaderboard score in one MULTI/EXEC.
func (s *StatsStore) Increment(ctx context.Context, userID string, score float64) error {
	key := statsKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrByFloat(ctx, key, "totalScore", score)
		pipe.HIncrBy(ctx, key, "gamesPlayed", 1)
		pipe.ZIncrBy(ctx, leaderboardKey, score, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("increment stats %s: %w", userID, err)
	}
	return nil
}

func (s *StatsStore) Get(ctx context.Context, userID string) (domain.PlayerStats, error) {
	fields, err := s.client.HGetAll(ctx, statsKey(userID)).Result()
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("get stats %s: %w", userID, err)
	}
	return parseStats(userID, fields), nil
}

func (s *StatsStore) Top(ctx context.Context, limit int) ([]domain.PlayerStats, error) {
	if limit <= 0 {
		return []domain.PlayerStats{}, nil
	}
	members, err := s.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if len(members) == 0 {
		return []domain.PlayerStats{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, statsKey(fmt.Sprint(m.Member)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read leaderboard stats: %w", err)
	}

	out := make([]domain.PlayerStats, 0, len(members))
	for i, m := range members {
		userID := fmt.Sprint(m.Member)
		st := parseStats(userID, cmds[i].Val())
		st.TotalScore = m.Score
		out = append(out, st)
	}
	return out, nil
}

func parseStats(userID string, fields map[string]string) domain.PlayerStats {
	st := domain.PlayerStats{UserID: userID}
	if v, err := strconv.ParseFloat(fields["totalScore"], 64); err == nil {
		st.TotalScore = v
	}
	if v, err := strconv.Atoi(fields["gamesPlayed"]); err == nil {
		st.GamesPlayed = v
	}
	return st
}

func statsKey(userID string) string {
	return "quizroom:stats:" + userID
}

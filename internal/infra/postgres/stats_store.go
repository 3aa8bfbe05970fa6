package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom-service/internal/domain"
)

// StatsStore keeps per-identity aggregates in the player_stats table.
type StatsStore struct {
	pool *pgxpool.Pool
}

func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// Increment is a single upsert so concurrent completions never lose updates.
func (s *StatsStore) Increment(ctx context.Context, userID string, score float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO player_stats (user_id, total_score, games_played)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			total_score = player_stats.total_score + EXCLUDED.total_score,
			games_played = player_stats.games_played + 1,
			updated_at = now()`, userID, score)
	if err != nil {
		return fmt.Errorf("increment stats: %w", err)
	}
	return nil
}

func (s *StatsStore) Get(ctx context.Context, userID string) (domain.PlayerStats, error) {
	st := domain.PlayerStats{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT total_score, games_played FROM player_stats WHERE user_id=$1`, userID,
	).Scan(&st.TotalScore, &st.GamesPlayed)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("load stats: %w", err)
	}
	return st, nil
}

func (s *StatsStore) Top(ctx context.Context, limit int) ([]domain.PlayerStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, total_score, games_played FROM player_stats
		ORDER BY total_score DESC, user_id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PlayerStats, 0, limit)
	for rows.Next() {
		var st domain.PlayerStats
		if err := rows.Scan(&st.UserID, &st.TotalScore, &st.GamesPlayed); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

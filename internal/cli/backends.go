package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
	pgstore "quizroom-service/internal/infra/postgres"
	redisstore "quizroom-service/internal/infra/redis"
)

// questionBank is the source of truth behind the question cache.
type questionBank interface {
	LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
	SaveQuestions(ctx context.Context, questions []domain.Question) error
}

// backends picks storage per concern: rooms prefer Redis, stats prefer
// Postgres, questions load from Postgres behind a Redis or in-process cache.
// Anything unconfigured falls back to process memory.
type backends struct {
	rooms     app.RoomStore
	questions app.QuestionRepository
	bank      questionBank
	stats     app.StatsStore
	sessions  app.SessionRepository

	closers []func()
}

func openBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
	}

	if pool != nil {
		b.bank = pgstore.NewQuestionBank(pool)
	} else {
		b.bank = memory.NewStaticQuestionLoader(nil)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	roomTTL := config.TTLDuration(cfg.Redis.RoomTTL, 0)

	switch {
	case redisClient != nil:
		b.rooms = redisstore.NewRoomStore(redisClient, roomTTL)
		b.questions = redisstore.NewQuestionRepository(redisClient, b.bank, questionTTL, logger)
		b.sessions = redisstore.NewSessionStore(redisClient, sessionTTL, logger)
	case pool != nil:
		b.rooms = pgstore.NewRoomStore(pool)
		b.questions = memory.NewQuestionRepository(b.bank, questionTTL)
		b.sessions = memory.NewSessionStore()
	default:
		b.rooms = memory.NewRoomStore()
		b.questions = memory.NewQuestionRepository(b.bank, questionTTL)
		b.sessions = memory.NewSessionStore()
	}

	switch {
	case pool != nil:
		b.stats = pgstore.NewStatsStore(pool)
	case redisClient != nil:
		b.stats = redisstore.NewStatsStore(redisClient)
	default:
		b.stats = memory.NewStatsStore()
	}

	logger.Info("backends ready",
		zap.Bool("redis", redisClient != nil),
		zap.Bool("postgres", pool != nil))
	return b, nil
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

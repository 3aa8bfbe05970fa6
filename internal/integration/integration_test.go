package integration

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/evaluator"
	pgstore "quizroom-service/internal/infra/postgres"
	pgmigrations "quizroom-service/internal/infra/postgres/migrations"
	infraredis "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/registry"
)

type recordingPeer struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPeer) Send(ev domain.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return true
}

func (p *recordingPeer) last(eventType string) (domain.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == eventType {
			return p.events[i], true
		}
	}
	return domain.Event{}, false
}

func TestGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	bank := pgstore.NewQuestionBank(pool)
	if err := bank.SaveQuestions(ctx, sampleQuestions()); err != nil {
		t.Fatalf("save questions: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	rooms := infraredis.NewRoomStore(redisClient, time.Hour)
	stats := pgstore.NewStatsStore(pool)
	room, err := domain.NewRoom("", "admin", 2, 2, []string{"q1", "q2"}, time.Now())
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	if err := rooms.Create(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	coord := app.NewCoordinator(app.Dependencies{
		Rooms:     rooms,
		Questions: infraredis.NewQuestionRepository(redisClient, bank, 5*time.Minute, nil),
		Stats:     stats,
		Sessions:  infraredis.NewSessionStore(redisClient, 5*time.Minute, nil),
		Registry:  registry.New(),
		Evaluator: evaluator.New(nil, 0, nil),
		Rand:      rand.New(rand.NewSource(3)),
	})

	alice, bob := &recordingPeer{}, &recordingPeer{}
	aliceConn, err := coord.Join(ctx, alice, app.JoinRequest{RoomCode: room.Code, Name: "Alice", UserID: "admin"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	bobConn, err := coord.Join(ctx, bob, app.JoinRequest{RoomCode: room.Code, Name: "Bob", UserID: "u2"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := coord.Start(ctx, alice, app.StartRequest{RoomCode: room.Code, UserID: "admin"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	started, err := rooms.FindByCode(ctx, room.Code)
	if err != nil {
		t.Fatalf("load room: %v", err)
	}
	for idx, qid := range started.Questions {
		if err := coord.SubmitAnswer(ctx, alice, app.SubmitRequest{
			RoomCode: room.Code, ConnectionID: aliceConn, QuestionIndex: idx, Answer: correctAnswers[qid],
		}); err != nil {
			t.Fatalf("submit alice: %v", err)
		}
		if err := coord.SubmitAnswer(ctx, bob, app.SubmitRequest{
			RoomCode: room.Code, ConnectionID: bobConn, QuestionIndex: idx, Answer: "wrong",
		}); err != nil {
			t.Fatalf("submit bob: %v", err)
		}
		if err := coord.Advance(ctx, alice, app.AdvanceRequest{RoomCode: room.Code, UserID: "admin"}); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	ev, ok := bob.last(domain.EventRoundFinished)
	if !ok {
		t.Fatalf("expected round-finished event")
	}
	ranking := ev.Payload.(domain.RoundFinishedPayload).Ranking
	if len(ranking) != 2 || ranking[0].Name != "Alice" || ranking[0].Score != 2 {
		t.Fatalf("unexpected ranking %+v", ranking)
	}

	aliceStats, err := stats.Get(ctx, "admin")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if aliceStats.TotalScore != 2 || aliceStats.GamesPlayed != 1 {
		t.Fatalf("unexpected stats %+v", aliceStats)
	}
	top, err := coord.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "admin" {
		t.Fatalf("unexpected leaderboard %+v", top)
	}
}

func TestPostgresRoomStore(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := pgstore.NewRoomStore(pool)
	room, _ := domain.NewRoom("PGROOM01", "admin", 1, 1, []string{"q1"}, time.Now().UTC())
	if err := store.Create(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, room); err != domain.ErrRoomExists {
		t.Fatalf("expected room exists, got %v", err)
	}
	room.Status = domain.StatusCompleted
	if err := store.Update(ctx, room); err != nil {
		t.Fatalf("update: %v", err)
	}
	loaded, err := store.FindByCode(ctx, "PGROOM01")
	if err != nil || loaded.Status != domain.StatusCompleted {
		t.Fatalf("expected completed room, got %+v err=%v", loaded, err)
	}
	if err := store.Delete(ctx, "PGROOM01"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.FindByCode(ctx, "PGROOM01"); err != domain.ErrRoomNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

var correctAnswers = map[string]string{
	"q1": "1",
	"q2": "Paris",
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "What is 2 + 2?", Kind: domain.KindObjective, Options: []string{"3", "4", "5"}, CorrectIndex: 1},
		{ID: "q2", Text: "Capital of France?", Kind: domain.KindSubjective, ReferenceAnswer: "Paris"},
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

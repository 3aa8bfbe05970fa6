package cli

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/evaluator"
	"quizroom-service/internal/registry"
	transport "quizroom-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var seedFile string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, seedFile)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed", "", "YAML file with questions and rooms to load on start")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag, seedFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	stores, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	if seedFile != "" {
		seed, err := loadSeedFile(seedFile)
		if err != nil {
			return err
		}
		codes, err := applySeed(ctx, seed, stores.bank, stores.rooms, time.Now())
		if err != nil {
			return err
		}
		logger.Info("seed loaded", zap.Int("questions", len(seed.Questions)), zap.Strings("rooms", codes))
	}

	var scorer evaluator.Scorer
	if cfg.Scorer.URL != "" {
		scorer = evaluator.NewHTTPScorer(evaluator.HTTPScorerConfig{
			URL:    cfg.Scorer.URL,
			APIKey: cfg.Scorer.APIKey,
		})
	} else {
		logger.Warn("no scorer configured, free-text answers use exact match")
	}

	reg := registry.New()
	coordinator := app.NewCoordinator(app.Dependencies{
		Rooms:     stores.rooms,
		Questions: stores.questions,
		Stats:     stores.stats,
		Sessions:  stores.sessions,
		Registry:  reg,
		Evaluator: evaluator.New(scorer, config.TTLDuration(cfg.Scorer.Timeout, evaluator.DefaultTimeout), logger.Named("evaluator")),
		Logger:    logger.Named("coordinator"),
		Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	})
	wsHandler := transport.NewWSHandler(coordinator, logger.Named("ws"), transport.WSOptions{
		SendBuffer: cfg.Session.SendBuffer,
		OpTimeout:  config.TTLDuration(cfg.Session.OpTimeout, 0),
	})

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(wsHandler, coordinator, reg, cfg.Server.AllowedOrigins, logger.Named("http")),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quizroom service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

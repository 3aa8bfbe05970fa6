package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/registry"
)

const maxLeaderboardLimit = 500

// Leaderboard serves the global identity ranking.
type Leaderboard interface {
	Leaderboard(ctx context.Context, limit int) ([]domain.PlayerStats, error)
}

// LiveStats reports what the connection registry currently holds.
type LiveStats interface {
	Stats() registry.Stats
}

// NewRouter wires the socket endpoint and the read-only HTTP surface. An empty
// origins list allows every origin.
func NewRouter(ws *WSHandler, board Leaderboard, live LiveStats, origins []string, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(cors.New(corsConfig(origins)))

	r.GET("/healthz", func(c *gin.Context) {
		stats := live.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": stats.Connections,
			"rooms":       stats.Rooms,
		})
	})
	r.GET("/leaderboard", func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxLeaderboardLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
				return
			}
			limit = n
		}
		top, err := board.Leaderboard(c.Request.Context(), limit)
		if err != nil {
			logger.Error("leaderboard", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "leaderboard unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"leaderboard": top})
	})
	r.GET("/ws", gin.WrapF(ws.ServeWS))
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("request",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

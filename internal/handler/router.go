package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/logging"
)

// BuildInfo identifies the running binary
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// RouterDeps are the services behind the HTTP API
type RouterDeps struct {
	Turns        TurnService
	Reservations ReservationService
	Ping         func(ctx context.Context) error // optional store health check
	MemoryPing   func(ctx context.Context) error // optional conversation memory health check
	Build        BuildInfo
}

// NewRouter builds the gin engine with CORS, rate limiting and all routes
func NewRouter(cfg *config.Config, deps RouterDeps, logger *zap.Logger) *gin.Engine {
	logger = logging.OrNop(logger)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if origins := splitList(cfg.Server.AllowedOrigins); len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = splitList(cfg.Server.AllowedMethods)
	corsConfig.AllowHeaders = splitList(cfg.Server.AllowedHeaders)
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for _, check := range []struct {
			component string
			ping      func(ctx context.Context) error
		}{
			{"database", deps.Ping},
			{"memory", deps.MemoryPing},
		} {
			if check.ping == nil {
				continue
			}
			if err := check.ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":    "unhealthy",
					"component": check.component,
					"error":     err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "blue-horizon-concierge",
			"version": deps.Build.Version,
		})
	})

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    deps.Build.Version,
			"build_time": deps.Build.BuildTime,
			"git_commit": deps.Build.GitCommit,
		})
	})

	turns := NewTurnHandler(deps.Turns, logger)
	reservations := NewReservationHandler(deps.Reservations)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(NewRateLimiter(cfg.RateLimit, logger).Middleware())
	{
		apiV1.POST("/turns", turns.Handle)
		apiV1.GET("/reservations/:id", reservations.Get)
		apiV1.POST("/reservations/:id/cancel", reservations.Cancel)
	}

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

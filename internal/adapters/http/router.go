package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/practicerooms/internal/adapters/memory"
	"github.com/dkeye/practicerooms/internal/app/orch"
	"github.com/dkeye/practicerooms/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Deps are the services the router exposes.
type Deps struct {
	Orch *orch.Orchestrator
	// Sim is set when the in-memory platform is running; it enables /api/sim.
	Sim *memory.Platform
	// Restart asks the process to run the restart procedure and exit.
	Restart func()
}

const (
	adminBurst  = 30
	adminWindow = time.Minute
)

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{orch: d.Orch, sim: d.Sim, restart: d.Restart}
	feed := &feedController{orch: d.Orch, readLimit: cfg.HTTP.ReadLimit, pingPeriod: cfg.HTTP.PingPeriod}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/rooms", h.rooms)
	api.GET("/permitted", h.permitted)
	api.GET("/users/:id/stats", h.userStats)
	api.GET("/ws/rooms", func(c *gin.Context) { feed.serve(ctx, c) })

	limiter := NewRateLimiter(adminBurst, adminWindow)
	admin := api.Group("", RateLimit(limiter), AdminAuth(cfg.HTTP.AdminToken))
	admin.POST("/rooms/:id/lock/:user", h.lock)
	admin.POST("/rooms/:id/unlock", h.unlock)
	admin.PUT("/rooms/:id/permit", h.permit)
	admin.DELETE("/rooms/:id/permit", h.forbid)
	admin.POST("/stats/reset-period", h.resetPeriod)
	admin.POST("/admin/restart", h.restartNow)

	if d.Sim != nil {
		sim := admin.Group("/sim")
		sim.POST("/rooms", h.simRoom)
		sim.POST("/join", h.simJoin)
		sim.POST("/leave", h.simLeave)
		sim.POST("/mute", h.simMute)
	}

	log.Info().Str("module", "adapters.http").Bool("sim", d.Sim != nil).Bool("admin", cfg.HTTP.AdminToken != "").Msg("router setup")
	return r
}

// AdminAuth requires "Authorization: Bearer <token>". An empty token turns
// the admin API off.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin api disabled"})
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// RateLimit caps requests per client IP.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orch.ErrUnmanaged), errors.Is(err, orch.ErrUnknownRoom):
		return http.StatusNotFound
	case errors.Is(err, orch.ErrNotInRoom), errors.Is(err, orch.ErrNotLocked):
		return http.StatusConflict
	case errors.Is(err, orch.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

package api

import (
	"github.com/gin-gonic/gin"
	"github.com/use-agent/promptopt/api/handler"
	"github.com/use-agent/promptopt/api/middleware"
	"github.com/use-agent/promptopt/config"
	"github.com/use-agent/promptopt/ratelimit"
)

// Limiters are the per-endpoint-class rate limiters.
type Limiters struct {
	Single ratelimit.Limiter
	Batch  ratelimit.Limiter
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → Metrics (if enabled)
//	API:     Auth (if enabled) → RateLimit (per route class)
//
// Health and docs are intentionally outside auth so monitoring probes always work.
func NewRouter(d *handler.Deps, cfg *config.Config, limits Limiters) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")

	// Public.
	v1.GET("/health", handler.Health(d))
	v1.GET("/docs", handler.Docs())

	// Protected group.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}

	single := middleware.RateLimit(limits.Single)
	protected.POST("/optimize", single, handler.Optimize(d))
	protected.POST("/optimize-enterprise", single, handler.Enterprise(d))
	protected.POST("/optimize/batch", middleware.RateLimit(limits.Batch), handler.OptimizeBatch(d))

	protected.GET("/optimize/:id", handler.GetOptimization(d))
	protected.GET("/analytics/usage", handler.Usage(d))

	return r
}

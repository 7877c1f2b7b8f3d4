package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/popharvest/api/handler"
	"github.com/use-agent/popharvest/api/middleware"
	"github.com/use-agent/popharvest/cache"
	"github.com/use-agent/popharvest/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(f handler.Fetcher, jobs *handler.JobStore, cc *cache.Cache, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(jobs, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Synchronous fetch
	protected.POST("/population", handler.Population(f, jobs, cc))

	// Background jobs
	protected.POST("/population/jobs", jobs.Post())
	protected.GET("/population/jobs/:id", jobs.Get())

	return r
}

// Package api wires the HTTP surface: routes, auth, and rate limiting.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/storesleuth/api/handler"
	"github.com/use-agent/storesleuth/api/middleware"
	"github.com/use-agent/storesleuth/cache"
	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/orchestrator"
	"github.com/use-agent/storesleuth/session"
)

// Deps carries everything the routes need.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Pool         *session.Pool
	Cache        *cache.Cache
	StartedAt    time.Time
}

// NewRouter builds the gin engine with all routes mounted under /api/v1.
// Health stays outside auth so load balancers can probe it.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(deps.Pool, deps.StartedAt))

	authed := v1.Group("")
	if cfg.Auth.Enabled {
		authed.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	authed.Use(middleware.RateLimit(cfg.RateLimit))

	authed.POST("/extract", handler.Extract(deps.Orchestrator))
	authed.POST("/jobs", handler.SubmitJob(deps.Orchestrator))
	authed.GET("/jobs/:id", handler.JobStatus(deps.Orchestrator))
	authed.DELETE("/jobs/:id", handler.CancelJob(deps.Orchestrator))
	authed.DELETE("/cache", handler.InvalidateCache(deps.Cache))

	return r
}

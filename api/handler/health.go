package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/storesleuth/models"
	"github.com/use-agent/storesleuth/session"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Health returns the handler for GET /api/v1/health. The service reports
// degraded when every session slot is leased out.
func Health(pool *session.Pool, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := pool.Stats()

		status := "healthy"
		if stats.ActiveSessions >= stats.MaxSessions {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startedAt).Round(time.Second).String(),
			PoolStats: stats,
			Version:   Version,
		})
	}
}

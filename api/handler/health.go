package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/liveprice/models"
	"github.com/use-agent/liveprice/scraper"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Health returns a handler for GET /healthz.
//
// Unavailable (503) when no session is alive; degraded when every
// session is lent out, so requests are queueing.
func Health(sc *scraper.Scraper, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sc.Stats()

		status, code := "healthy", http.StatusOK
		switch {
		case stats.LiveSessions == 0:
			status, code = "unavailable", http.StatusServiceUnavailable
		case stats.ActiveSessions >= stats.MaxSessions:
			status = "degraded"
		}

		c.JSON(code, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Driver:    sc.EngineName(),
			PoolStats: stats,
			Version:   Version,
		})
	}
}

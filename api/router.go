package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/liveprice/api/handler"
	"github.com/use-agent/liveprice/api/middleware"
	"github.com/use-agent/liveprice/config"
	"github.com/use-agent/liveprice/metrics"
	"github.com/use-agent/liveprice/scraper"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → RequestID → Logger
//	Price:   Auth (if enabled) → RateLimit (if rps > 0)
//
// Health and metrics are outside auth so probes and scrapers always work.
func NewRouter(sc *scraper.Scraper, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())

	r.GET("/healthz", handler.Health(sc, startTime))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.GET("/price/:ticker", handler.Price(sc))

	return r
}

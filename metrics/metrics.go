// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "liveprice"

var (
	scrapesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrapes_total",
		Help:      "Price lookups by outcome code (ok or an automation error code).",
	}, []string{"code"})

	scrapeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scrape_duration_seconds",
		Help:      "Time from session checkout to price text, including failures.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})

	poolSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_sessions",
		Help:      "Browser sessions in the pool by state (live, active).",
	}, []string{"state"})

	poolRetired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_sessions_retired_total",
		Help:      "Sessions closed because of errors, age or use count.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route template and status code.",
	}, []string{"route", "status"})
)

// ObserveScrape records one finished lookup.
func ObserveScrape(code string, elapsed time.Duration) {
	scrapesTotal.WithLabelValues(code).Inc()
	scrapeDuration.Observe(elapsed.Seconds())
}

// SetPoolSessions publishes the pool's current size and checkout count.
func SetPoolSessions(live, active int) {
	poolSessions.WithLabelValues("live").Set(float64(live))
	poolSessions.WithLabelValues("active").Set(float64(active))
}

// IncPoolRetired counts one session closed by the pool.
func IncPoolRetired() { poolRetired.Inc() }

// ObserveHTTPRequest counts one served request by route template and status.
func ObserveHTTPRequest(route, status string) {
	httpRequests.WithLabelValues(route, status).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

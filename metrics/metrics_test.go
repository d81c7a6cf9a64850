package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveScrape(t *testing.T) {
	before := testutil.ToFloat64(scrapesTotal.WithLabelValues("ELEMENT_NOT_FOUND"))
	ObserveScrape("ELEMENT_NOT_FOUND", 300*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(scrapesTotal.WithLabelValues("ELEMENT_NOT_FOUND")))
}

func TestSetPoolSessions(t *testing.T) {
	SetPoolSessions(3, 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(poolSessions.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(poolSessions.WithLabelValues("active")))
}

func TestHandler(t *testing.T) {
	IncPoolRetired()
	ObserveHTTPRequest("/price/:ticker", "200")

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "liveprice_pool_sessions_retired_total")
	assert.Contains(t, w.Body.String(), `liveprice_http_requests_total{route="/price/:ticker",status="200"}`)
}

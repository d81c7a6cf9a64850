package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/liveprice/config"
	"github.com/use-agent/liveprice/engine"
	"github.com/use-agent/liveprice/scraper"
)

func newTestRouter(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><fin-streamer class="livePrice"><span>150.25</span></fin-streamer></body></html>`))
	}))
	t.Cleanup(site.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "test"},
		Scraper: config.ScraperConfig{
			URLTemplate:    site.URL + "/quote/{ticker}",
			PriceClass:     "livePrice",
			PriceTag:       "span",
			Timeout:        5 * time.Second,
			ElementTimeout: time.Second,
		},
		Pool: config.PoolConfig{Size: 1},
	}
	if mutate != nil {
		mutate(cfg)
	}

	eng := engine.NewHTTPEngine(cfg.Browser)
	pool, err := engine.NewPool(context.Background(), eng, cfg.Pool)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Close()
		_ = eng.Close()
	})
	return NewRouter(scraper.New(pool, cfg.Scraper), cfg, time.Now())
}

func do(r http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Price(t *testing.T) {
	r := newTestRouter(t, nil)

	w := do(r, "/price/AAPL", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"150.25"`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_UnknownRoutes(t *testing.T) {
	r := newTestRouter(t, nil)

	assert.Equal(t, http.StatusNotFound, do(r, "/price/A/B", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, "/quote/AAPL", nil).Code)
}

func TestRouter_AuthGuardsPriceOnly(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"secret"}}
	})

	w := do(r, "/price/AAPL", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `"Unauthorized"`, w.Body.String())

	assert.Equal(t, http.StatusOK, do(r, "/price/AAPL", http.Header{"X-Api-Key": {"secret"}}).Code)
	assert.Equal(t, http.StatusOK, do(r, "/healthz", nil).Code)
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t, nil)
	require.Equal(t, http.StatusOK, do(r, "/price/AAPL", nil).Code)

	w := do(r, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "liveprice_scrapes_total"), "scrape counter exported")
	assert.True(t, strings.Contains(body, "liveprice_pool_sessions"), "pool gauge exported")
	assert.True(t, strings.Contains(body, `route="/price/:ticker"`), "requests labelled by route template")
}

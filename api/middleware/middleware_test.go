package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/use-agent/liveprice/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/price/:ticker", func(c *gin.Context) {
		c.JSON(http.StatusOK, c.GetString(ctxKeyAPIKey))
	})
	return r
}

func serve(r http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/price/AAPL", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth([]string{"k1", "k2"}))

	tests := []struct {
		name   string
		header http.Header
		code   int
		body   string
	}{
		{"no key", nil, http.StatusUnauthorized, `"Unauthorized"`},
		{"wrong key", http.Header{"X-Api-Key": {"nope"}}, http.StatusUnauthorized, `"Unauthorized"`},
		{"basic scheme", http.Header{"Authorization": {"Basic k1"}}, http.StatusUnauthorized, `"Unauthorized"`},
		{"x-api-key", http.Header{"X-Api-Key": {"k1"}}, http.StatusOK, `"k1"`},
		{"bearer", http.Header{"Authorization": {"Bearer k2"}}, http.StatusOK, `"k2"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, tt.header)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
		})
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	r := newEngine(Auth([]string{""}))
	assert.Equal(t, http.StatusOK, serve(r, nil).Code)
}

func TestRateLimit(t *testing.T) {
	r := newEngine(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}))

	assert.Equal(t, http.StatusOK, serve(r, nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, nil).Code)

	w := serve(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, `"Too Many Requests"`, w.Body.String())
}

func TestRateLimit_PerAPIKey(t *testing.T) {
	r := newEngine(
		Auth([]string{"k1", "k2"}),
		RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}),
	)

	assert.Equal(t, http.StatusOK, serve(r, http.Header{"X-Api-Key": {"k1"}}).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.Header{"X-Api-Key": {"k1"}}).Code)
	// Same client address, different key: separate bucket.
	assert.Equal(t, http.StatusOK, serve(r, http.Header{"X-Api-Key": {"k2"}}).Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	r := newEngine(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0, Burst: 1}))
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, serve(r, nil).Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/price/:ticker", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusNoContent)
	})

	t.Run("propagated", func(t *testing.T) {
		w := serve(r, http.Header{"X-Request-Id": {"req-42"}})
		assert.Equal(t, "req-42", w.Header().Get(headerRequestID))
		assert.Equal(t, "req-42", seen)
	})

	t.Run("generated", func(t *testing.T) {
		w := serve(r, nil)
		id := w.Header().Get(headerRequestID)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, id, seen)
	})

	t.Run("oversized replaced", func(t *testing.T) {
		long := make([]byte, 200)
		for i := range long {
			long[i] = 'a'
		}
		w := serve(r, http.Header{"X-Request-Id": {string(long)}})
		assert.NotEqual(t, string(long), w.Header().Get(headerRequestID))
		assert.Len(t, w.Header().Get(headerRequestID), 36)
	})
}

package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/liveprice/config"
	"github.com/use-agent/liveprice/models"
)

const quoteFixture = `<!DOCTYPE html>
<html><head><title>AAPL</title></head>
<body>
  <section class="container">
    <fin-streamer class="livePrice yf-1tejb6" data-symbol="AAPL">
      <span>150.25</span><span>+1.10</span>
    </fin-streamer>
  </section>
</body></html>`

func newQuoteServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote/AAPL":
			assert.Equal(t, "en-US", r.Header.Get("Accept-Language"))
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(quoteFixture))
		case "/quote/EMPTY":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><div class="price">1</div></body></html>`))
		case "/quote/LATIN1":
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			_, _ = w.Write([]byte("<div class=\"livePrice\"><span>\xa3 12.50</span></div>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPEngine_FindsPrice(t *testing.T) {
	srv := newQuoteServer(t)
	eng := NewHTTPEngine(config.BrowserConfig{AcceptLanguage: "en-US"})
	defer eng.Close()

	ctx := context.Background()
	s, err := eng.NewSession(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Navigate(ctx, srv.URL+"/quote/AAPL"))
	container, err := s.FindByClass(ctx, "livePrice")
	require.NoError(t, err)
	span, err := container.FindByTag(ctx, "span")
	require.NoError(t, err)
	text, err := span.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "150.25", text)
}

func TestHTTPEngine_DecodesCharset(t *testing.T) {
	srv := newQuoteServer(t)
	eng := NewHTTPEngine(config.BrowserConfig{})

	ctx := context.Background()
	s, _ := eng.NewSession(ctx)
	require.NoError(t, s.Navigate(ctx, srv.URL+"/quote/LATIN1"))
	container, err := s.FindByClass(ctx, "livePrice")
	require.NoError(t, err)
	span, err := container.FindByTag(ctx, "span")
	require.NoError(t, err)
	text, _ := span.Text(ctx)
	assert.Equal(t, "£ 12.50", text)
}

func TestHTTPEngine_Errors(t *testing.T) {
	srv := newQuoteServer(t)
	eng := NewHTTPEngine(config.BrowserConfig{})
	ctx := context.Background()

	t.Run("missing class", func(t *testing.T) {
		s, _ := eng.NewSession(ctx)
		require.NoError(t, s.Navigate(ctx, srv.URL+"/quote/EMPTY"))
		_, err := s.FindByClass(ctx, "livePrice")
		assert.Equal(t, models.ErrCodeElementNotFound, models.CodeOf(err))
	})

	t.Run("missing child", func(t *testing.T) {
		s, _ := eng.NewSession(ctx)
		require.NoError(t, s.Navigate(ctx, srv.URL+"/quote/EMPTY"))
		el, err := s.FindByClass(ctx, "price")
		require.NoError(t, err)
		_, err = el.FindByTag(ctx, "span")
		assert.Equal(t, models.ErrCodeElementNotFound, models.CodeOf(err))
	})

	t.Run("http error status", func(t *testing.T) {
		s, _ := eng.NewSession(ctx)
		err := s.Navigate(ctx, srv.URL+"/quote/NOPE")
		assert.Equal(t, models.ErrCodeNavigationFailed, models.CodeOf(err))
	})

	t.Run("unreachable host", func(t *testing.T) {
		s, _ := eng.NewSession(ctx)
		err := s.Navigate(ctx, "http://127.0.0.1:1/quote/AAPL")
		assert.Equal(t, models.ErrCodeNavigationFailed, models.CodeOf(err))
	})

	t.Run("lookup before navigation", func(t *testing.T) {
		s, _ := eng.NewSession(ctx)
		_, err := s.FindByClass(ctx, "livePrice")
		assert.Equal(t, models.ErrCodeProtocolError, models.CodeOf(err))
	})

	t.Run("reset drops document", func(t *testing.T) {
		s, _ := eng.NewSession(ctx)
		require.NoError(t, s.Navigate(ctx, srv.URL+"/quote/EMPTY"))
		require.NoError(t, s.Reset(ctx))
		_, err := s.FindByClass(ctx, "price")
		assert.Equal(t, models.ErrCodeProtocolError, models.CodeOf(err))
	})
}

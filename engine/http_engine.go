package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/liveprice/config"
	"github.com/use-agent/liveprice/models"
	"golang.org/x/net/html/charset"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// HTTPEngine answers the same lookups as a browser against the server-rendered
// HTML only. No JavaScript runs, so it fits quote pages that render the price
// on the server, and tests.
type HTTPEngine struct {
	client         *http.Client
	acceptLanguage string
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
func NewHTTPEngine(browserCfg config.BrowserConfig) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	return &HTTPEngine{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		acceptLanguage: browserCfg.AcceptLanguage,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) NewSession(ctx context.Context) (Session, error) {
	return &httpSession{engine: e}, nil
}

func (e *HTTPEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

type httpSession struct {
	engine *HTTPEngine
	doc    *goquery.Document
}

func (s *httpSession) Navigate(ctx context.Context, url string) error {
	s.doc = nil

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.NewAutomationError(models.ErrCodeNavigationFailed, "invalid quote page URL", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "identity")
	if s.engine.acceptLanguage != "" {
		req.Header.Set("Accept-Language", s.engine.acceptLanguage)
	}

	resp, err := s.engine.client.Do(req)
	if err != nil {
		return models.NewAutomationError(models.ErrCodeNavigationFailed, "quote page request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return models.NewAutomationError(models.ErrCodeNavigationFailed,
			fmt.Sprintf("quote page returned HTTP %d", resp.StatusCode), nil)
	}

	const maxBody = 10 << 20
	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBody), resp.Header.Get("Content-Type"))
	if err != nil {
		return models.NewAutomationError(models.ErrCodeProtocolError, "unsupported page charset", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.NewAutomationError(models.ErrCodeNavigationFailed, "quote page read interrupted", err)
		}
		return models.NewAutomationError(models.ErrCodeProtocolError, "failed to parse quote page", err)
	}
	s.doc = doc
	return nil
}

func (s *httpSession) FindByClass(ctx context.Context, class string) (Element, error) {
	if s.doc == nil {
		return nil, models.NewAutomationError(models.ErrCodeProtocolError, "no document loaded", nil)
	}
	m, err := compileSelector("." + class)
	if err != nil {
		return nil, models.NewAutomationError(models.ErrCodeProtocolError, "invalid class selector", err)
	}
	sel := s.doc.FindMatcher(m).First()
	if sel.Length() == 0 {
		return nil, models.NewAutomationError(models.ErrCodeElementNotFound,
			fmt.Sprintf("no element with class %q", class), nil)
	}
	return &httpElement{sel: sel}, nil
}

func (s *httpSession) Reset(ctx context.Context) error {
	s.doc = nil
	return nil
}

func (s *httpSession) Close() error {
	s.doc = nil
	return nil
}

type httpElement struct {
	sel *goquery.Selection
}

func (e *httpElement) FindByTag(ctx context.Context, tag string) (Element, error) {
	m, err := compileSelector(tag)
	if err != nil {
		return nil, models.NewAutomationError(models.ErrCodeProtocolError, "invalid tag selector", err)
	}
	child := e.sel.FindMatcher(m).First()
	if child.Length() == 0 {
		return nil, models.NewAutomationError(models.ErrCodeElementNotFound,
			fmt.Sprintf("no <%s> inside price container", tag), nil)
	}
	return &httpElement{sel: child}, nil
}

func (e *httpElement) Text(ctx context.Context) (string, error) {
	return strings.Clone(e.sel.Text()), nil
}

// selectorCache holds compiled cascadia selectors; the same two selectors
// are used for every request.
var selectorCache sync.Map // string -> cascadia.Selector

func compileSelector(sel string) (cascadia.Selector, error) {
	if v, ok := selectorCache.Load(sel); ok {
		return v.(cascadia.Selector), nil
	}
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, err
	}
	selectorCache.Store(sel, compiled)
	return compiled, nil
}

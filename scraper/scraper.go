package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/use-agent/liveprice/config"
	"github.com/use-agent/liveprice/engine"
	"github.com/use-agent/liveprice/metrics"
	"github.com/use-agent/liveprice/models"
)

// tickerPattern accepts plain symbols (AAPL), share classes (BRK-B),
// indices (^GSPC), currency pairs (EURUSD=X) and exchange suffixes (7203.T).
var tickerPattern = regexp.MustCompile(`^[A-Za-z0-9.^=\-]{1,20}$`)

// codeCanceled labels lookups abandoned by the caller in metrics.
const codeCanceled = "canceled"

// ValidTicker reports whether ticker may be put into a quote URL.
func ValidTicker(ticker string) bool {
	return tickerPattern.MatchString(ticker)
}

// BuildURL substitutes the path-escaped ticker into template.
func BuildURL(template, ticker string) string {
	return strings.ReplaceAll(template, config.TickerPlaceholder, url.PathEscape(ticker))
}

// Scraper reads live prices through sessions borrowed from a Pool.
// It is safe for concurrent use.
type Scraper struct {
	pool      *engine.Pool
	cfg       config.ScraperConfig
	startTime time.Time
}

// New creates a Scraper. The pool must already be initialised.
func New(pool *engine.Pool, cfg config.ScraperConfig) *Scraper {
	return &Scraper{
		pool:      pool,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// FetchPrice returns the text of the price node on the ticker's quote page.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Validate ticker        – reject before any session is touched
//  2. Timeout guard          – hard deadline on the whole lookup
//  3. Acquire session        – blocks until the pool has a free session
//  4. DEFER: release         – outcome recorded unless the caller left,
//                               session reset and returned
//  5. Navigate               – quote page load
//  6. Container lookup       – first element carrying the price class
//  7. Child lookup           – first price tag inside the container
//  8. Extract                – inner text, returned verbatim
//
// Errors are *models.AutomationError.
func (s *Scraper) FetchPrice(ctx context.Context, ticker string) (price string, err error) {
	start := time.Now()
	callerCtx := ctx
	defer func() {
		code := "ok"
		switch {
		case err != nil && callerCtx.Err() != nil:
			code = codeCanceled
		case err != nil:
			code = string(models.CodeOf(err))
		}
		metrics.ObserveScrape(code, time.Since(start))
	}()

	// ── 1. Validate ticker ───────────────────────────────────────────
	if !ValidTicker(ticker) {
		return "", models.NewAutomationError(models.ErrCodeInvalidTicker,
			"ticker must match "+tickerPattern.String(), nil)
	}
	target := BuildURL(s.cfg.URLTemplate, ticker)

	// ── 2. Timeout guard ─────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	// ── 3. Acquire session ───────────────────────────────────────────
	h, err := s.pool.Get(ctx)
	if err != nil {
		return "", err
	}

	// ── 4. DEFER: release with outcome ───────────────────────────────
	defer func() {
		// A caller that went away says nothing about the session.
		if err != nil && callerCtx.Err() != nil {
			s.pool.Release(h)
			return
		}
		s.pool.Put(h, err)
	}()

	// ── 5. Navigate ──────────────────────────────────────────────────
	if err = h.Session.Navigate(ctx, target); err != nil {
		return "", err
	}

	// ── 6. Container lookup ──────────────────────────────────────────
	container, err := h.Session.FindByClass(ctx, s.cfg.PriceClass)
	if err != nil {
		return "", err
	}

	// ── 7. Child lookup ──────────────────────────────────────────────
	node, err := container.FindByTag(ctx, s.cfg.PriceTag)
	if err != nil {
		return "", err
	}

	// ── 8. Extract ───────────────────────────────────────────────────
	price, err = node.Text(ctx)
	if err != nil {
		return "", err
	}

	slog.Debug("price fetched",
		"ticker", ticker,
		"session", h.ID,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return price, nil
}

// Stats returns a snapshot of the session pool.
func (s *Scraper) Stats() models.PoolStats {
	return s.pool.Stats()
}

// EngineName names the session backend.
func (s *Scraper) EngineName() string {
	return s.pool.EngineName()
}

// Uptime is the time since the Scraper was created.
func (s *Scraper) Uptime() time.Duration {
	return time.Since(s.startTime)
}

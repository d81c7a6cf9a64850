package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/liveprice/config"
	"github.com/use-agent/liveprice/models"
	"github.com/ysmood/gson"
)

// RodEngine opens browser tabs over the DevTools protocol. One RodEngine
// owns one browser connection; every Session is a tab in that browser.
type RodEngine struct {
	name           string
	browser        *rod.Browser
	launcher       *launcher.Launcher // only set in launch mode
	browserCfg     config.BrowserConfig
	elementTimeout time.Duration
}

// NewRodEngine connects to (or launches) a browser according to driverCfg.Mode.
//
//   - managed: driverCfg.Endpoint is a rod launcher manager; the capability
//     flags travel with the connection and the manager starts the browser.
//   - remote:  driverCfg.Endpoint is a running DevTools endpoint.
//   - launch:  a local browser is started and owned by this engine.
//
// Any failure here is fatal for the caller; nothing is retried.
func NewRodEngine(driverCfg config.DriverConfig, browserCfg config.BrowserConfig, elementTimeout time.Duration) (*RodEngine, error) {
	e := &RodEngine{
		name:           "rod-" + driverCfg.Mode,
		browserCfg:     browserCfg,
		elementTimeout: elementTimeout,
	}

	browser := rod.New()
	switch driverCfg.Mode {
	case config.ModeManaged:
		l, err := launcher.NewManaged(driverCfg.Endpoint)
		if err != nil {
			return nil, models.NewAutomationError(models.ErrCodeConnectionFailed,
				"failed to reach launcher manager at "+driverCfg.Endpoint, err)
		}
		// A manager that returns no defaults leaves Flags nil.
		if l.Flags == nil {
			l.Flags = map[flags.Flag][]string{}
		}
		applyCapabilities(l, browserCfg)
		client, err := l.Client()
		if err != nil {
			return nil, models.NewAutomationError(models.ErrCodeConnectionFailed,
				"capability negotiation with launcher manager failed", err)
		}
		browser = browser.Client(client)

	case config.ModeRemote:
		u, err := launcher.ResolveURL(driverCfg.Endpoint)
		if err != nil {
			return nil, models.NewAutomationError(models.ErrCodeConnectionFailed,
				"failed to resolve devtools endpoint "+driverCfg.Endpoint, err)
		}
		browser = browser.ControlURL(u)

	case config.ModeLaunch:
		l := launcher.New()
		if browserCfg.BrowserBin != "" {
			l = l.Bin(browserCfg.BrowserBin)
		}
		applyCapabilities(l, browserCfg)
		u, err := l.Launch()
		if err != nil {
			return nil, models.NewAutomationError(models.ErrCodeConnectionFailed,
				"failed to launch browser", err)
		}
		slog.Info("browser launched", "controlURL", u, "pid", l.PID())
		e.launcher = l
		browser = browser.ControlURL(u)

	default:
		return nil, fmt.Errorf("rod engine: unsupported driver mode %q", driverCfg.Mode)
	}

	if err := browser.Connect(); err != nil {
		if e.launcher != nil {
			e.launcher.Kill()
		}
		return nil, models.NewAutomationError(models.ErrCodeConnectionFailed,
			"failed to connect to browser", err)
	}
	e.browser = browser

	if v, err := browser.Version(); err == nil {
		slog.Info("browser connected", "engine", e.name, "product", v.Product)
	}
	return e, nil
}

// applyCapabilities sets the flags needed to run inside a container.
func applyCapabilities(l *launcher.Launcher, cfg config.BrowserConfig) {
	l.Headless(cfg.Headless).NoSandbox(cfg.NoSandbox)
	if cfg.DisableDevShm {
		l.Set(flags.Flag("disable-dev-shm-usage"))
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Set(flags.Flag("no-first-run"))
}

func (e *RodEngine) Name() string { return e.name }

// NewSession opens a blank tab, installing stealth, extra headers and
// request blocking before any navigation happens.
func (e *RodEngine) NewSession(ctx context.Context) (Session, error) {
	page, err := e.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, classifyRodError(err, models.ErrCodeConnectionFailed, "failed to open browser tab")
	}
	// Detach the tab from the creation context; later calls bind their own.
	page = page.Context(context.Background())

	if e.browserCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	if e.browserCfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{
				"Accept-Language": e.browserCfg.AcceptLanguage,
			}),
		}.Call(page)
	}

	router := installHijack(page, e.browserCfg.BlockedResourceTypes, e.browserCfg.BlockTrackers)

	return &rodSession{page: page, router: router, elementTimeout: e.elementTimeout}, nil
}

// Close closes the browser connection, and kills the browser if this
// engine launched it.
func (e *RodEngine) Close() error {
	err := e.browser.Close()
	if e.launcher != nil {
		e.launcher.Kill()
		e.launcher.Cleanup()
	}
	return err
}

type rodSession struct {
	page           *rod.Page
	router         *rod.HijackRouter // nil when nothing is blocked
	elementTimeout time.Duration
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return classifyRodError(err, models.ErrCodeNavigationFailed, "navigation to quote page failed")
	}
	if err := p.WaitLoad(); err != nil {
		return classifyRodError(err, models.ErrCodeNavigationFailed, "quote page did not finish loading")
	}
	return nil
}

// FindByClass waits up to elementTimeout for client-side rendering to
// produce the element.
func (s *rodSession) FindByClass(ctx context.Context, class string) (Element, error) {
	el, err := s.page.Context(ctx).Timeout(s.elementTimeout).Element("." + class)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewAutomationError(models.ErrCodeElementNotFound,
				fmt.Sprintf("no element with class %q", class), err)
		}
		return nil, classifyRodError(err, models.ErrCodeElementNotFound, "class lookup failed")
	}
	return &rodElement{el: el}, nil
}

// Reset unloads the quote page so its DOM and timers stop consuming memory.
// The pool calls it with its own context, never the request's.
func (s *rodSession) Reset(ctx context.Context) error {
	if err := s.page.Context(ctx).Navigate("about:blank"); err != nil {
		return classifyRodError(err, models.ErrCodeProtocolError, "failed to reset tab")
	}
	return nil
}

func (s *rodSession) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
	}
	return s.page.Close()
}

type rodElement struct {
	el *rod.Element
}

// FindByTag does not wait: once the container rendered, its children are there.
func (e *rodElement) FindByTag(ctx context.Context, tag string) (Element, error) {
	child, err := e.el.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(tag)
	if err != nil {
		return nil, classifyRodError(err, models.ErrCodeElementNotFound,
			fmt.Sprintf("no <%s> inside price container", tag))
	}
	return &rodElement{el: child}, nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", classifyRodError(err, models.ErrCodeProtocolError, "failed to read element text")
	}
	return text, nil
}

// classifyRodError wraps raw rod/cdp errors into typed AutomationErrors.
// fallback is used when the error carries no stronger signal.
func classifyRodError(err error, fallback models.ErrorCode, msg string) *models.AutomationError {
	var (
		navErr      *rod.NavigationError
		notFoundErr *rod.ElementNotFoundError
		cdpErr      *cdp.Error
		opErr       *net.OpError
	)
	switch {
	case errors.As(err, &notFoundErr):
		return models.NewAutomationError(models.ErrCodeElementNotFound, msg, err)
	case errors.As(err, &navErr):
		return models.NewAutomationError(models.ErrCodeNavigationFailed, msg, err)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.As(err, &opErr):
		return models.NewAutomationError(models.ErrCodeConnectionFailed, msg, err)
	case errors.Is(err, cdp.ErrSessionNotFound), errors.Is(err, cdp.ErrNotAttachedToActivePage):
		return models.NewAutomationError(models.ErrCodeConnectionFailed, msg, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.NewAutomationError(fallback, msg, err)
	case errors.As(err, &cdpErr):
		return models.NewAutomationError(models.ErrCodeProtocolError, msg, err)
	default:
		return models.NewAutomationError(fallback, msg, err)
	}
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

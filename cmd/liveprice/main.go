package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/liveprice/api"
	"github.com/use-agent/liveprice/config"
	"github.com/use-agent/liveprice/engine"
	"github.com/use-agent/liveprice/logging"
	"github.com/use-agent/liveprice/scraper"
	"github.com/use-agent/liveprice/supervisor"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("liveprice exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// ── 2. Initialise structured logging ────────────────────────────
	logger, syncLogs, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer syncLogs()
	slog.SetDefault(logger)
	slog.Info("liveprice starting",
		"addr", cfg.Server.Addr(),
		"driver", cfg.Driver.Mode,
		"endpoint", cfg.Driver.Endpoint,
		"poolSize", cfg.Pool.Size,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Supervised driver (optional) ─────────────────────────────
	var sup *supervisor.Supervisor
	if len(cfg.Driver.Command) > 0 {
		sup, err = supervisor.Start(ctx, cfg.Driver)
		if err != nil {
			return err
		}
		defer sup.Stop()
	}

	// ── 4. Session backend ──────────────────────────────────────────
	eng, err := newEngine(cfg)
	if err != nil {
		return fmt.Errorf("driver initialisation failed: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Warn("engine close failed", "error", err)
		}
	}()

	// ── 5. Session pool: every session must open before we listen ──
	initCtx, cancelInit := context.WithTimeout(ctx, cfg.Driver.StartupTimeout)
	pool, err := engine.NewPool(initCtx, eng, cfg.Pool)
	cancelInit()
	if err != nil {
		return fmt.Errorf("session initialisation failed: %w", err)
	}
	defer pool.Close()

	// ── 6. Setup router ─────────────────────────────────────────────
	sc := scraper.New(pool, cfg.Scraper)
	router := api.NewRouter(sc, cfg, time.Now())

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── 7. Serve until a signal, a server error or the driver dies ──
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if sup != nil {
		g.Go(func() error {
			select {
			case <-sup.Done():
				return fmt.Errorf("driver process exited: %v", sup.Err())
			case <-gctx.Done():
				return nil
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		// Give in-flight requests time to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
			return nil
		}
		slog.Info("HTTP server drained gracefully")
		return nil
	})

	err = g.Wait()
	// pool, engine and driver close via defers, in that order.
	slog.Info("liveprice stopped")
	return err
}

func newEngine(cfg *config.Config) (engine.Engine, error) {
	if cfg.Driver.Mode == config.ModeHTTP {
		return engine.NewHTTPEngine(cfg.Browser), nil
	}
	return engine.NewRodEngine(cfg.Driver, cfg.Browser, cfg.Scraper.ElementTimeout)
}

// Package app provides the top-level application lifecycle management for the
// trading platform. It wires together all dependencies (bus, engine, ledgers,
// consolidators, stores, notifications) and starts the goroutines for the
// configured run mode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantfold/tradecore/internal/config"
	"github.com/quantfold/tradecore/internal/domain"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the run
// mode, starts the corresponding goroutines, and blocks until the context is
// cancelled or the run finishes. On return it runs all registered cleanup
// functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch deps.Mode {
	case domain.ModeBacktest:
		return a.BacktestMode(ctx, deps)
	case domain.ModeLive:
		return a.LiveMode(ctx, deps)
	case domain.ModeLivePaper:
		return a.LivePaperMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Package app provides the top-level application lifecycle for the
// liquidation bot. It wires together all dependencies (chain access, stores,
// caches, blob storage, notifications, and the operator API) and runs the
// scheduler in the configured operating mode.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/alanyoungcy/liquidbot/internal/config"
)

// Operating modes.
const (
	ModeLiquidate = "liquidate"
	ModeMonitor   = "monitor"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	stdout    io.Writer
	startedAt time.Time
	closers   []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "app")),
		stdout:    os.Stdout,
		startedAt: time.Now().UTC(),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, and blocks until the context is cancelled. The session
// summary is reported before Run returns.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case ModeLiquidate:
		return a.LiquidateMode(ctx, deps)
	case ModeMonitor:
		return a.MonitorMode(ctx, deps)
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

func bigChainID(id int64) *big.Int {
	return big.NewInt(id)
}

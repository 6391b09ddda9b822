package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/liquidbot/internal/blob/s3"
	"github.com/alanyoungcy/liquidbot/internal/domain"
	"github.com/alanyoungcy/liquidbot/internal/executor"
	"github.com/alanyoungcy/liquidbot/internal/ledger"
	"github.com/alanyoungcy/liquidbot/internal/notify"
	"github.com/alanyoungcy/liquidbot/internal/scheduler"
	"github.com/alanyoungcy/liquidbot/internal/server"
	"github.com/alanyoungcy/liquidbot/internal/server/handler"
	"github.com/alanyoungcy/liquidbot/internal/server/middleware"
	"github.com/alanyoungcy/liquidbot/internal/server/ws"
	"github.com/alanyoungcy/liquidbot/internal/service"
)

const shutdownTimeout = 10 * time.Second

// LiquidateMode scans borrowers and executes admissible liquidations.
func (a *App) LiquidateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting liquidate mode",
		slog.String("wallet", deps.Wallet.Address().Hex()),
		slog.Bool("dry_run", a.cfg.Execution.DryRun),
	)
	exec := executor.New(deps.Reader, deps.Prices, deps.Sender, deps.Ledger, executor.Config{
		MaxGasPriceGwei:   thresholds(a.cfg.Liquidation).MaxGasPriceGwei,
		DryRun:            a.cfg.Execution.DryRun,
		UnlimitedApproval: a.cfg.Execution.UnlimitedApproval,
	}, a.logger)
	return a.runEngine(ctx, deps, exec)
}

// MonitorMode scans and reports opportunities without signing anything.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runEngine(ctx, deps, nil)
}

// runEngine starts the scheduler and its supporting goroutines, waits for
// shutdown, and reports the session summary. exec is nil in monitor mode.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, exec scheduler.Executor) error {
	g, gctx := errgroup.WithContext(ctx)

	state := &scheduler.EngineState{
		Directory:  deps.Directory,
		Ledger:     deps.Ledger,
		Markets:    deps.Markets,
		Thresholds: thresholds(a.cfg.Liquidation),
	}
	schedCfg := scheduler.Config{
		PollInterval: a.cfg.Scheduler.PollInterval.Duration,
		Cooldown:     a.cfg.Scheduler.Cooldown.Duration,
		LockTTL:      a.cfg.Scheduler.LockTTL.Duration,
	}
	var locker domain.LockManager
	if a.cfg.Scheduler.ScanLock && deps.LockManager != nil && deps.Wallet != nil {
		locker = deps.LockManager
		schedCfg.LockKey = "scan:" + strings.ToLower(deps.Wallet.Address().Hex())
	}
	sched := scheduler.New(state, deps.Reader, deps.Params, deps.Pairing, exec, locker, schedCfg, a.logger)

	// WebSocket hub; it follows the bus when Redis is wired, otherwise the
	// event service feeds it directly.
	var hub *ws.Hub
	var local service.Broadcaster
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			Pairing:   deps.Pairing.Name(),
			StartedAt: a.startedAt,
		})
		if deps.SignalBus == nil {
			local = hub
		}
		g.Go(func() error {
			return hub.Run(gctx)
		})
	}

	sched.AddObserver(deps.Metrics)
	sched.AddObserver(service.NewEventService(deps.SignalBus, deps.AuditStore, local, a.logger))

	notifier := notify.NewObserver(deps.Notifier, a.logger)
	if deps.Notifier.Len() > 0 {
		sched.AddObserver(notifier)
		g.Go(func() error {
			return notifier.Run(gctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, sched, hub)
	}

	if deps.Archiver != nil && deps.LiquidationStore != nil {
		g.Go(func() error {
			return a.archiveLoop(gctx, deps)
		})
	}

	runDraining(gctx, g, sched.Run, deps.Ledger.Run)

	err := g.Wait()
	a.report(deps, notifier)
	return err
}

// runDraining runs producer on ctx and consumer on a context that is
// cancelled only once producer has returned, so anything the producer emits
// while finishing up still reaches the consumer.
func runDraining(ctx context.Context, g *errgroup.Group, producer, consumer func(context.Context) error) {
	cctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	g.Go(func() error {
		return consumer(cctx)
	})
	g.Go(func() error {
		defer stop()
		return producer(ctx)
	})
}

// startHTTPServer registers the operator API on g. The server shuts down when
// ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, sched *scheduler.Scheduler, hub *ws.Hub) {
	checks := map[string]handler.Check{
		"rpc": func(ctx context.Context) error {
			_, err := deps.Reader.BlockNumber(ctx)
			return err
		},
	}
	if deps.Postgres != nil {
		checks["postgres"] = func(ctx context.Context) error {
			return deps.Postgres.Pool().Ping(ctx)
		}
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis.Ping
	}
	if deps.Blobs != nil {
		checks["s3"] = deps.Blobs.Ping
	}

	var archives handler.ArchiveLister
	if deps.Archiver != nil {
		archives = deps.Archiver
	}

	handlers := server.Handlers{
		Health:       handler.NewHealthHandler(checks, a.logger),
		Status:       handler.NewStatusHandler(a.cfg.Mode, deps.Pairing.Name(), sched),
		Liquidations: handler.NewLiquidationHandler(deps.Ledger, deps.LiquidationStore, archives, a.logger),
		Borrowers:    handler.NewBorrowerHandler(deps.Directory, a.logger),
		Audit:        handler.NewAuditHandler(deps.AuditStore, a.logger),
		Metrics:      deps.Metrics.Handler(),
	}

	var limiter domain.RateLimiter = middleware.NewLocalLimiter()
	if deps.RateLimiter != nil {
		limiter = deps.RateLimiter
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, limiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// archiveLoop copies persisted records older than the current day to S3 on
// every archive interval. Each day is archived once.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.S3.ArchiveInterval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			cutoff := now.UTC().Truncate(24 * time.Hour)
			path, err := deps.Archiver.ArchiveBefore(ctx, deps.LiquidationStore, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "ledger archive failed", slog.String("error", err.Error()))
				continue
			}
			if path != "" {
				a.logger.InfoContext(ctx, "ledger archived", slog.String("path", path))
			}
		}
	}
}

// report logs and prints the session summary, archives the session ledger,
// and sends the shutdown notification.
func (a *App) report(deps *Dependencies, notifier *notify.Observer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stats := deps.Ledger.Stats()
	summary := ledger.Summary(stats)
	a.logger.Info("session summary",
		slog.Int("liquidations", stats.Count),
		slog.Float64("total_profit_usd", stats.TotalProfitUSD),
		slog.Float64("total_volume_usd", stats.TotalVolumeUSD),
		slog.Float64("average_profit_usd", stats.AverageProfitUSD),
		slog.Int("attempts", stats.Attempts),
		slog.Int("failures", stats.Failures),
	)
	fmt.Fprintln(a.stdout, summary)

	if deps.Archiver != nil {
		path, err := deps.Archiver.ArchiveRecords(ctx, deps.Ledger.Records(), s3blob.SessionLabel(a.startedAt))
		switch {
		case err != nil:
			a.logger.Error("session archive failed", slog.String("error", err.Error()))
		case path != "":
			a.logger.Info("session archived", slog.String("path", path))
		}
	}

	if deps.Notifier.Len() > 0 {
		if err := notifier.Shutdown(ctx, summary); err != nil {
			a.logger.Warn("shutdown notification failed", slog.String("error", err.Error()))
		}
	}
}

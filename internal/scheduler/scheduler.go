package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/liquidbot/internal/domain"
	"github.com/alanyoungcy/liquidbot/internal/strategy"
)

// Reader is the chain read surface used per borrower.
type Reader interface {
	AccountLiquidity(ctx context.Context, borrower common.Address) (domain.AccountLiquidity, error)
	BorrowPositions(ctx context.Context, borrower common.Address) ([]domain.BorrowPosition, error)
	CollateralPositions(ctx context.Context, borrower common.Address) ([]domain.CollateralPosition, error)
}

// Executor executes one opportunity.
type Executor interface {
	Execute(ctx context.Context, opp domain.LiquidationOpportunity) domain.ExecutionResult
}

// Config holds scheduling settings.
type Config struct {
	PollInterval time.Duration
	Cooldown     time.Duration
	// LockKey, when set with a LockManager, guards each scan across
	// processes sharing the same wallet.
	LockKey string
	LockTTL time.Duration
	// RecentLimit bounds the opportunity history kept for status APIs.
	RecentLimit int
}

// State names reported by Status.
const (
	StateIdle     = "idle"
	StateScanning = "scanning"
)

// Status is a point-in-time view of the scheduler.
type Status struct {
	State      string             `json:"state"`
	Scans      int64              `json:"scans"`
	Skipped    int64              `json:"skipped"`
	LastScan   *domain.ScanReport `json:"last_scan,omitempty"`
	Monitoring bool               `json:"monitoring"`
}

// Scheduler runs scans on a ticker. Scans never overlap.
type Scheduler struct {
	state     *EngineState
	reader    Reader
	params    strategy.ParamsProvider
	pairing   strategy.Pairing
	exec      Executor
	locker    domain.LockManager
	observers []domain.EngineObserver
	cfg       Config
	pacer     *pacer
	logger    *slog.Logger

	scanning atomic.Bool
	scans    atomic.Int64
	skipped  atomic.Int64

	mu       sync.Mutex
	lastScan *domain.ScanReport
	recent   []domain.LiquidationOpportunity
}

// New creates a Scheduler. exec may be nil, in which case opportunities are
// only reported (monitor mode). locker may be nil.
func New(
	state *EngineState,
	reader Reader,
	params strategy.ParamsProvider,
	pairing strategy.Pairing,
	exec Executor,
	locker domain.LockManager,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 100
	}
	if pairing == nil {
		pairing = strategy.LargestPairing{}
	}
	return &Scheduler{
		state:   state,
		reader:  reader,
		params:  params,
		pairing: pairing,
		exec:    exec,
		locker:  locker,
		cfg:     cfg,
		pacer:   newPacer(cfg.Cooldown),
		logger:  logger.With(slog.String("component", "scheduler")),
	}
}

// AddObserver registers an observer. Call before Run.
func (s *Scheduler) AddObserver(o domain.EngineObserver) {
	s.observers = append(s.observers, o)
}

// Run scans once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Duration("cooldown", s.cfg.Cooldown),
		slog.Bool("monitor_only", s.exec == nil),
	)
	defer s.logger.Info("scheduler stopped")

	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.Scan(ctx)
}

// Scan performs one full scan. It returns false without scanning when a
// scan is already in progress or another process holds the scan lock.
func (s *Scheduler) Scan(ctx context.Context) (domain.ScanReport, bool) {
	if !s.scanning.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("previous scan still running, scan skipped")
		return domain.ScanReport{}, false
	}
	defer s.scanning.Store(false)

	if s.locker != nil && s.cfg.LockKey != "" {
		unlock, err := s.locker.Acquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			s.skipped.Add(1)
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.Warn("scan lock held by another process", slog.String("key", s.cfg.LockKey))
			} else {
				s.logger.Error("scan lock failed", slog.String("error", err.Error()))
			}
			return domain.ScanReport{}, false
		}
		defer unlock()
	}

	report := domain.ScanReport{StartedAt: time.Now().UTC()}
	s.state.Directory.Refresh(ctx)

	opps := s.collect(ctx, &report)
	report.Opportunities = len(opps)

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].ExpectedProfitUSD > opps[j].ExpectedProfitUSD
	})
	s.remember(opps)
	for _, opp := range opps {
		for _, o := range s.observers {
			o.OnOpportunity(ctx, opp)
		}
	}

	if s.exec != nil {
		s.executeAll(ctx, opps, &report)
	}

	report.Duration = time.Since(report.StartedAt)
	s.scans.Add(1)
	s.mu.Lock()
	s.lastScan = &report
	s.mu.Unlock()

	for _, o := range s.observers {
		o.OnScan(ctx, report)
	}
	s.logger.Info("scan complete",
		slog.Int("borrowers", report.Borrowers),
		slog.Int("underwater", report.Underwater),
		slog.Int("read_errors", report.ReadErrors),
		slog.Int("opportunities", report.Opportunities),
		slog.Int("executed", report.Executed),
		slog.Int("succeeded", report.Succeeded),
		slog.Duration("duration", report.Duration),
	)
	return report, true
}

func (s *Scheduler) collect(ctx context.Context, report *domain.ScanReport) []domain.LiquidationOpportunity {
	params := s.params.Params(ctx)
	borrowers := s.state.Directory.List()
	report.Borrowers = len(borrowers)

	var opps []domain.LiquidationOpportunity
	for _, addr := range borrowers {
		if ctx.Err() != nil {
			break
		}
		opp, ok, err := s.evaluate(ctx, common.HexToAddress(addr), params, report)
		if err != nil {
			report.ReadErrors++
			s.logger.Warn("borrower read failed",
				slog.String("borrower", addr),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			opps = append(opps, opp)
		}
	}
	return opps
}

func (s *Scheduler) evaluate(
	ctx context.Context,
	borrower common.Address,
	params strategy.ProtocolParams,
	report *domain.ScanReport,
) (domain.LiquidationOpportunity, bool, error) {
	liq, err := s.reader.AccountLiquidity(ctx, borrower)
	if err != nil {
		return domain.LiquidationOpportunity{}, false, err
	}
	if !liq.IsUnderwater() {
		return domain.LiquidationOpportunity{}, false, nil
	}
	report.Underwater++

	borrows, err := s.reader.BorrowPositions(ctx, borrower)
	if err != nil {
		return domain.LiquidationOpportunity{}, false, err
	}
	collaterals, err := s.reader.CollateralPositions(ctx, borrower)
	if err != nil {
		return domain.LiquidationOpportunity{}, false, err
	}

	opp, rej := strategy.Explain(borrower, liq, borrows, collaterals, params, s.state.Thresholds, s.pairing)
	if rej != strategy.Accepted {
		s.logger.Debug("no opportunity",
			slog.String("borrower", borrower.Hex()),
			slog.Float64("shortfall_usd", liq.ShortfallUSD),
			slog.String("reason", string(rej)),
		)
		return domain.LiquidationOpportunity{}, false, nil
	}
	s.logger.Info("opportunity found",
		slog.String("borrower", borrower.Hex()),
		slog.String("repay_market", opp.Borrow.Market.Symbol),
		slog.String("seize_market", opp.Collateral.Market.Symbol),
		slog.Float64("repay_usd", opp.RepayUSD),
		slog.Float64("expected_profit_usd", opp.ExpectedProfitUSD),
	)
	return opp, true, nil
}

func (s *Scheduler) executeAll(ctx context.Context, opps []domain.LiquidationOpportunity, report *domain.ScanReport) {
	for _, opp := range opps {
		if ctx.Err() != nil {
			s.logger.Info("shutdown requested, remaining opportunities dropped",
				slog.Int("remaining", len(opps)-report.Executed))
			return
		}
		if err := s.pacer.Wait(ctx); err != nil {
			return
		}

		res := s.exec.Execute(ctx, opp)
		report.Executed++
		s.state.Ledger.RecordAttempt(res.Success)
		if res.Success {
			report.Succeeded++
			s.pacer.Succeeded()
		}
		for _, o := range s.observers {
			o.OnResult(ctx, opp, res)
		}
	}
}

func (s *Scheduler) remember(opps []domain.LiquidationOpportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, opps...)
	if over := len(s.recent) - s.cfg.RecentLimit; over > 0 {
		s.recent = append([]domain.LiquidationOpportunity(nil), s.recent[over:]...)
	}
}

// RecentOpportunities returns up to limit opportunities, newest first.
func (s *Scheduler) RecentOpportunities(limit int) []domain.LiquidationOpportunity {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.LiquidationOpportunity, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Status reports the scheduler state.
func (s *Scheduler) Status() Status {
	st := Status{
		State:      StateIdle,
		Scans:      s.scans.Load(),
		Skipped:    s.skipped.Load(),
		Monitoring: s.exec == nil,
	}
	if s.scanning.Load() {
		st.State = StateScanning
	}
	s.mu.Lock()
	if s.lastScan != nil {
		r := *s.lastScan
		st.LastScan = &r
	}
	s.mu.Unlock()
	return st
}

package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/liquidbot/internal/directory"
	"github.com/alanyoungcy/liquidbot/internal/domain"
	"github.com/alanyoungcy/liquidbot/internal/ledger"
	"github.com/alanyoungcy/liquidbot/internal/market"
	"github.com/alanyoungcy/liquidbot/internal/strategy"
)

var (
	usdtMkt = domain.MarketConfig{Symbol: "USDT", Market: common.HexToAddress("0x11"), Underlying: common.HexToAddress("0xa1"), Decimals: 8, UnderlyingDecimals: 6}
	ethMkt  = domain.MarketConfig{Symbol: "ETH", Market: common.HexToAddress("0x12"), Decimals: 8, UnderlyingDecimals: 18}

	small   = "0x1000000000000000000000000000000000000001"
	large   = "0x1000000000000000000000000000000000000002"
	healthy = "0x1000000000000000000000000000000000000003"
	broken  = "0x1000000000000000000000000000000000000004"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type account struct {
	shortfall float64
	borrowUSD float64
	collatUSD float64
	err       error
}

type fakeReader struct {
	accounts map[string]account
	block    chan struct{}
}

func (f *fakeReader) get(b common.Address) account {
	return f.accounts[strings.ToLower(b.Hex())]
}

func (f *fakeReader) AccountLiquidity(_ context.Context, b common.Address) (domain.AccountLiquidity, error) {
	if f.block != nil {
		<-f.block
	}
	a := f.get(b)
	if a.err != nil {
		return domain.AccountLiquidity{}, a.err
	}
	return domain.AccountLiquidity{Borrower: b, ShortfallUSD: a.shortfall}, nil
}

func (f *fakeReader) BorrowPositions(_ context.Context, b common.Address) ([]domain.BorrowPosition, error) {
	return []domain.BorrowPosition{{Market: usdtMkt, ValueUSD: f.get(b).borrowUSD}}, nil
}

func (f *fakeReader) CollateralPositions(_ context.Context, b common.Address) ([]domain.CollateralPosition, error) {
	return []domain.CollateralPosition{{Market: ethMkt, ValueUSD: f.get(b).collatUSD}}, nil
}

type fakeExecutor struct {
	mu     sync.Mutex
	calls  []string
	times  []time.Time
	result func(opp domain.LiquidationOpportunity) domain.ExecutionResult
}

func (f *fakeExecutor) Execute(_ context.Context, opp domain.LiquidationOpportunity) domain.ExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, strings.ToLower(opp.Borrower.Hex()))
	f.times = append(f.times, time.Now())
	if f.result != nil {
		return f.result(opp)
	}
	return domain.ExecutionResult{Success: true, Record: &domain.LiquidationRecord{}}
}

type recordingObserver struct {
	scans   []domain.ScanReport
	opps    int
	results []domain.ExecutionResult
}

func (r *recordingObserver) OnScan(_ context.Context, rep domain.ScanReport) {
	r.scans = append(r.scans, rep)
}
func (r *recordingObserver) OnOpportunity(context.Context, domain.LiquidationOpportunity) {
	r.opps++
}
func (r *recordingObserver) OnResult(_ context.Context, _ domain.LiquidationOpportunity, res domain.ExecutionResult) {
	r.results = append(r.results, res)
}

type fakeLocker struct{ held bool }

func (f *fakeLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

func newState(t *testing.T, borrowers ...string) *EngineState {
	t.Helper()
	reg, err := market.NewRegistry([]domain.MarketConfig{usdtMkt, ethMkt})
	require.NoError(t, err)
	return &EngineState{
		Directory:  directory.New(nil, borrowers, discardLogger()),
		Ledger:     ledger.New(nil, discardLogger()),
		Markets:    reg,
		Thresholds: strategy.Thresholds{MinProfitUSD: 1, MaxGasPriceGwei: 100, MaxLiquidationUSD: 10_000, MinCollateralUSD: 1},
	}
}

func defaultReader() *fakeReader {
	return &fakeReader{accounts: map[string]account{
		small:   {shortfall: 10, borrowUSD: 200, collatUSD: 300},
		large:   {shortfall: 10, borrowUSD: 2000, collatUSD: 3000},
		healthy: {},
		broken:  {err: errors.New("rpc timeout")},
	}}
}

func newScheduler(state *EngineState, r Reader, exec Executor, locker domain.LockManager, cfg Config) *Scheduler {
	return New(state, r, strategy.StaticParams{P: strategy.DefaultProtocolParams}, nil, exec, locker, cfg, discardLogger())
}

func TestScanExecutesInProfitOrder(t *testing.T) {
	state := newState(t, small, large, healthy, broken)
	exec := &fakeExecutor{}
	obs := &recordingObserver{}
	s := newScheduler(state, defaultReader(), exec, nil, Config{})
	s.AddObserver(obs)

	report, ok := s.Scan(context.Background())
	require.True(t, ok)

	assert.Equal(t, []string{large, small}, exec.calls)
	assert.Equal(t, 4, report.Borrowers)
	assert.Equal(t, 2, report.Underwater)
	assert.Equal(t, 1, report.ReadErrors)
	assert.Equal(t, 2, report.Opportunities)
	assert.Equal(t, 2, report.Executed)
	assert.Equal(t, 2, report.Succeeded)

	stats := state.Ledger.Stats()
	assert.Equal(t, 2, stats.Attempts)
	assert.Zero(t, stats.Failures)

	require.Len(t, obs.scans, 1)
	assert.Equal(t, 2, obs.opps)
	assert.Len(t, obs.results, 2)
	assert.Equal(t, int64(1), s.Status().Scans)
}

func TestScanRecordsFailures(t *testing.T) {
	state := newState(t, small, large)
	exec := &fakeExecutor{result: func(domain.LiquidationOpportunity) domain.ExecutionResult {
		return domain.Failed("gas price too high")
	}}
	s := newScheduler(state, defaultReader(), exec, nil, Config{Cooldown: time.Hour})

	report, ok := s.Scan(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, report.Executed)
	assert.Zero(t, report.Succeeded)
	assert.Equal(t, 2, state.Ledger.Stats().Failures)
}

func TestMonitorModeDoesNotExecute(t *testing.T) {
	state := newState(t, small, large)
	s := newScheduler(state, defaultReader(), nil, nil, Config{})

	report, ok := s.Scan(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, report.Opportunities)
	assert.Zero(t, report.Executed)

	recent := s.RecentOpportunities(10)
	require.Len(t, recent, 2)
	assert.True(t, s.Status().Monitoring)
}

func TestOverlappingScanIsSkipped(t *testing.T) {
	state := newState(t, small)
	r := defaultReader()
	r.block = make(chan struct{})
	s := newScheduler(state, r, &fakeExecutor{}, nil, Config{})

	done := make(chan struct{})
	go func() {
		s.Scan(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return s.Status().State == StateScanning }, time.Second, time.Millisecond)

	_, ok := s.Scan(context.Background())
	assert.False(t, ok)

	close(r.block)
	<-done
	assert.Equal(t, StateIdle, s.Status().State)
	assert.Equal(t, int64(1), s.Status().Skipped)
}

func TestScanSkippedWhenLockHeld(t *testing.T) {
	state := newState(t, small)
	exec := &fakeExecutor{}
	s := newScheduler(state, defaultReader(), exec, &fakeLocker{held: true}, Config{LockKey: "scan:wallet"})

	_, ok := s.Scan(context.Background())
	assert.False(t, ok)
	assert.Empty(t, exec.calls)
}

func TestSkipWarningsNameTheirCause(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := New(newState(t, small), defaultReader(), strategy.StaticParams{P: strategy.DefaultProtocolParams},
		nil, &fakeExecutor{}, &fakeLocker{held: true}, Config{LockKey: "scan:wallet"}, logger)

	s.tick(context.Background())
	assert.Contains(t, buf.String(), "scan lock held by another process")
	assert.NotContains(t, buf.String(), "previous scan still running")

	buf.Reset()
	s.scanning.Store(true)
	s.tick(context.Background())
	assert.Equal(t, 1, strings.Count(buf.String(), "previous scan still running"))
	assert.Equal(t, int64(2), s.Status().Skipped)
}

func TestCooldownBetweenSuccesses(t *testing.T) {
	state := newState(t, small, large)
	exec := &fakeExecutor{}
	s := newScheduler(state, defaultReader(), exec, nil, Config{Cooldown: 60 * time.Millisecond})

	_, ok := s.Scan(context.Background())
	require.True(t, ok)
	require.Len(t, exec.times, 2)
	assert.GreaterOrEqual(t, exec.times[1].Sub(exec.times[0]), 50*time.Millisecond)
}

func TestPacerIgnoresFailures(t *testing.T) {
	p := newPacer(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))

	p.Succeeded()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}

func TestRunStopsOnCancel(t *testing.T) {
	state := newState(t, small)
	s := newScheduler(state, defaultReader(), &fakeExecutor{}, nil, Config{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Status().Scans >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

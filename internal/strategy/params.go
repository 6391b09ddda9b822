package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ParamsMode selects where protocol parameters come from.
type ParamsMode string

const (
	ParamsStatic  ParamsMode = "static"
	ParamsOnchain ParamsMode = "onchain"
)

// StaticParams always returns the same parameters.
type StaticParams struct {
	P ProtocolParams
}

// Params implements ParamsProvider.
func (s StaticParams) Params(context.Context) ProtocolParams { return s.P }

// ProtocolReader reads the Comptroller's liquidation parameters.
type ProtocolReader interface {
	CloseFactor(ctx context.Context) (float64, error)
	LiquidationIncentive(ctx context.Context) (float64, error)
}

// CachedParams reads parameters on chain at most once per refresh interval.
// A failed read keeps the last good value (the fallback until the first
// success).
type CachedParams struct {
	reader   ProtocolReader
	refresh  time.Duration
	logger   *slog.Logger
	now      func() time.Time
	mu       sync.Mutex
	current  ProtocolParams
	loadedAt time.Time
}

// NewCachedParams creates a CachedParams seeded with fallback.
func NewCachedParams(reader ProtocolReader, refresh time.Duration, fallback ProtocolParams, logger *slog.Logger) *CachedParams {
	if refresh <= 0 {
		refresh = time.Hour
	}
	return &CachedParams{
		reader:  reader,
		refresh: refresh,
		logger:  logger.With(slog.String("component", "protocol_params")),
		now:     time.Now,
		current: fallback,
	}
}

// Params implements ParamsProvider.
func (c *CachedParams) Params(ctx context.Context) ProtocolParams {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loadedAt.IsZero() && c.now().Sub(c.loadedAt) < c.refresh {
		return c.current
	}

	cf, err := c.reader.CloseFactor(ctx)
	if err != nil {
		c.logger.Warn("close factor read failed, keeping last value",
			slog.Float64("close_factor", c.current.CloseFactor),
			slog.String("error", err.Error()),
		)
		return c.current
	}
	li, err := c.reader.LiquidationIncentive(ctx)
	if err != nil {
		c.logger.Warn("liquidation incentive read failed, keeping last value",
			slog.Float64("liquidation_incentive", c.current.LiquidationIncentive),
			slog.String("error", err.Error()),
		)
		return c.current
	}
	if cf <= 0 || cf > 1 {
		c.logger.Warn("ignoring out-of-range close factor", slog.Float64("close_factor", cf))
		return c.current
	}
	if li < 0 || li >= 1 {
		c.logger.Warn("ignoring out-of-range liquidation incentive", slog.Float64("liquidation_incentive", li))
		return c.current
	}

	if cf != c.current.CloseFactor || li != c.current.LiquidationIncentive {
		c.logger.Info("protocol params updated",
			slog.Float64("close_factor", cf),
			slog.Float64("liquidation_incentive", li),
		)
	}
	c.current = ProtocolParams{CloseFactor: cf, LiquidationIncentive: li}
	c.loadedAt = c.now()
	return c.current
}

package domain

import (
	"context"
	"time"
)

// PriceCache holds the latest oracle prices for display. It is write-through
// only; valuation never reads from it.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Event bus channels.
const (
	ChannelLiquidations  = "ch:liquidation"
	ChannelOpportunities = "ch:opportunity"
	ChannelStatus        = "ch:status"
	StreamLiquidations   = "stream:liquidations"
)

// RateLimiter limits request rates per key within a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

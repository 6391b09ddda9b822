package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter implements domain.RateLimiter with a sliding window kept in a
// Redis sorted set, so API limits hold across every bot replica.
type RateLimiter struct {
	c             *Client
	slidingWindow *redis.Script
	now           func() time.Time
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		c:             c,
		slidingWindow: redis.NewScript(slidingWindowLua),
		now:           time.Now,
	}
}

// Allow reports whether one more request for key fits within limit requests
// per window, counting it when it does.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := rl.slidingWindow.Run(
		ctx,
		rl.c.rdb,
		[]string{rl.c.key("ratelimit", key)},
		rl.now().UnixMicro(),
		window.Microseconds(),
		limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, nil
}

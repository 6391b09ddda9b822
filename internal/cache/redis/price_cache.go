package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// priceTTL bounds how long a cached oracle price is shown after the bot stops
// refreshing it.
const priceTTL = 15 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// price is stored at "{ns}:price:{symbol}" with fields "price" and "ts"
// (Unix nanoseconds).
type PriceCache struct {
	c *Client
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c}
}

// SetPrice stores the latest price and observation time for symbol.
func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	key := pc.c.key("price", symbol)
	pipe := pc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice returns the cached price for symbol, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.c.key("price", symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	price, ts, ok := parsePrice(vals)
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return price, ts, nil
}

// GetPrices returns cached prices for symbols using one pipeline. Symbols
// without a usable entry are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	result := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	pipe := pc.c.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, s := range symbols {
		cmds[s] = pipe.HGetAll(ctx, pc.c.key("price", s))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	for s, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, ok := parsePrice(vals); ok {
			result[s] = price
		}
	}
	return result, nil
}

func parsePrice(vals map[string]string) (float64, time.Time, bool) {
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, false
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return price, time.Unix(0, tsNano), true
}

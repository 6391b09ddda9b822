package valuation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

type stubPrices struct {
	prices map[string]float64
	calls  int
}

func (s *stubPrices) UnderlyingPrice(_ context.Context, m domain.MarketConfig) (float64, error) {
	s.calls++
	p, ok := s.prices[m.Symbol]
	if !ok {
		return 0, errors.New("oracle reverted")
	}
	return p, nil
}

type memCache struct {
	prices map[string]float64
}

func (c *memCache) SetPrice(_ context.Context, symbol string, price float64, _ time.Time) error {
	c.prices[symbol] = price
	return nil
}

func (c *memCache) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	p, ok := c.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Time{}, nil
}

func (c *memCache) GetPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, s := range symbols {
		if p, ok := c.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

var (
	usdt = domain.MarketConfig{Symbol: "USDT", Market: common.HexToAddress("0x11"), Underlying: common.HexToAddress("0xa1"), Decimals: 8, UnderlyingDecimals: 6}
	wbtc = domain.MarketConfig{Symbol: "WBTC", Market: common.HexToAddress("0x12"), Underlying: common.HexToAddress("0xa2"), Decimals: 8, UnderlyingDecimals: 8}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValueOf(t *testing.T) {
	cache := &memCache{prices: map[string]float64{}}
	svc := NewService(&stubPrices{prices: map[string]float64{"USDT": 1.001}}, cache, discardLogger())

	v := svc.ValueOf(context.Background(), usdt, big.NewInt(250_000_000))
	assert.InDelta(t, 250.0, v.TokenAmount, 1e-9)
	assert.InDelta(t, 1.001, v.UnitPriceUSD, 1e-12)
	assert.InDelta(t, 250.25, v.USDValue, 1e-9)

	p, _, err := cache.GetPrice(context.Background(), "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 1.001, p, 1e-12)
}

func TestValueOfOracleFailureIsZero(t *testing.T) {
	cache := &memCache{prices: map[string]float64{"WBTC": 60_000}}
	svc := NewService(&stubPrices{prices: map[string]float64{}}, cache, discardLogger())

	v := svc.ValueOf(context.Background(), wbtc, big.NewInt(100_000_000))
	assert.InDelta(t, 1.0, v.TokenAmount, 1e-12)
	assert.Zero(t, v.UnitPriceUSD)
	assert.Zero(t, v.USDValue)
}

func TestValueOfWithoutCache(t *testing.T) {
	prices := &stubPrices{prices: map[string]float64{"WBTC": 60_000}}
	svc := NewService(prices, nil, discardLogger())

	v := svc.ValueOf(context.Background(), wbtc, big.NewInt(50_000_000))
	assert.InDelta(t, 30_000.0, v.USDValue, 1e-6)
	assert.Equal(t, 1, prices.calls)
}

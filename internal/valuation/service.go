// Package valuation converts raw on-chain amounts into human units and USD.
package valuation

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/liquidbot/internal/domain"
	"github.com/alanyoungcy/liquidbot/internal/market"
)

// PriceSource returns the USD price of one whole underlying unit.
type PriceSource interface {
	UnderlyingPrice(ctx context.Context, m domain.MarketConfig) (float64, error)
}

// Service values positions using a PriceSource. Prices that were read
// successfully are written through to an optional PriceCache.
type Service struct {
	prices PriceSource
	cache  domain.PriceCache
	logger *slog.Logger
}

// NewService creates a Service. cache may be nil.
func NewService(prices PriceSource, cache domain.PriceCache, logger *slog.Logger) *Service {
	return &Service{
		prices: prices,
		cache:  cache,
		logger: logger.With(slog.String("component", "valuation")),
	}
}

// ValueOf converts raw (in underlying units) to a Valuation. On oracle
// failure the USD value is zero and the failure is logged; it never errors.
func (s *Service) ValueOf(ctx context.Context, m domain.MarketConfig, raw *big.Int) domain.Valuation {
	amount := market.ToHuman(raw, m.UnderlyingDecimals)

	price, err := s.Price(ctx, m)
	if err != nil {
		s.logger.Warn("price lookup failed, valuing at zero",
			slog.String("market", m.Symbol),
			slog.String("error", err.Error()),
		)
		return domain.Valuation{TokenAmount: amount}
	}
	return domain.Valuation{
		TokenAmount:  amount,
		UnitPriceUSD: price,
		USDValue:     amount * price,
	}
}

// Price reads a fresh oracle price for m.
func (s *Service) Price(ctx context.Context, m domain.MarketConfig) (float64, error) {
	price, err := s.prices.UnderlyingPrice(ctx, m)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, m.Symbol, price, time.Now().UTC()); err != nil {
			s.logger.Debug("price cache write failed",
				slog.String("market", m.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return price, nil
}

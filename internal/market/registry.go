// Package market holds the static table of monitored lending markets.
package market

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// Registry is an immutable, ordered set of market configurations. Order is
// the configuration order and is what downstream tie-breaking relies on.
type Registry struct {
	markets  []domain.MarketConfig
	bySymbol map[string]int
	byMarket map[common.Address]int
}

// NewRegistry validates markets and builds a Registry. Duplicate symbols or
// market addresses, zero market addresses and out-of-range decimals are
// rejected.
func NewRegistry(markets []domain.MarketConfig) (*Registry, error) {
	if len(markets) == 0 {
		return nil, fmt.Errorf("market: registry: no markets configured")
	}

	r := &Registry{
		markets:  make([]domain.MarketConfig, 0, len(markets)),
		bySymbol: make(map[string]int, len(markets)),
		byMarket: make(map[common.Address]int, len(markets)),
	}
	for _, m := range markets {
		sym := strings.ToUpper(strings.TrimSpace(m.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("market: registry: market %s has empty symbol", m.Market.Hex())
		}
		if (m.Market == common.Address{}) {
			return nil, fmt.Errorf("market: registry: %s has zero market address", sym)
		}
		if m.UnderlyingDecimals > 36 || m.Decimals > 36 {
			return nil, fmt.Errorf("market: registry: %s decimals out of range", sym)
		}
		if _, ok := r.bySymbol[sym]; ok {
			return nil, fmt.Errorf("market: registry: duplicate symbol %s", sym)
		}
		if _, ok := r.byMarket[m.Market]; ok {
			return nil, fmt.Errorf("market: registry: duplicate market %s", m.Market.Hex())
		}
		m.Symbol = sym
		r.bySymbol[sym] = len(r.markets)
		r.byMarket[m.Market] = len(r.markets)
		r.markets = append(r.markets, m)
	}
	return r, nil
}

// All returns a copy of the configured markets in configuration order.
func (r *Registry) All() []domain.MarketConfig {
	out := make([]domain.MarketConfig, len(r.markets))
	copy(out, r.markets)
	return out
}

// BySymbol looks a market up by display symbol (case-insensitive).
func (r *Registry) BySymbol(symbol string) (domain.MarketConfig, bool) {
	i, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return domain.MarketConfig{}, false
	}
	return r.markets[i], true
}

// ByMarket looks a market up by its contract address.
func (r *Registry) ByMarket(addr common.Address) (domain.MarketConfig, bool) {
	i, ok := r.byMarket[addr]
	if !ok {
		return domain.MarketConfig{}, false
	}
	return r.markets[i], true
}

// Len returns the number of markets.
func (r *Registry) Len() int {
	return len(r.markets)
}

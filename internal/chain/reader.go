package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/liquidbot/internal/domain"
	"github.com/alanyoungcy/liquidbot/internal/market"
)

// Valuer converts a raw underlying amount into human units and USD.
type Valuer interface {
	ValueOf(ctx context.Context, m domain.MarketConfig, raw *big.Int) domain.Valuation
}

// Reader performs read-only queries against the Comptroller and the
// configured cToken markets.
type Reader struct {
	backend     Backend
	comptroller common.Address
	markets     *market.Registry
	valuer      Valuer
	logger      *slog.Logger

	gasMu        sync.Mutex
	lastGasPrice *big.Int
}

// NewReader creates a Reader.
func NewReader(backend Backend, comptroller common.Address, markets *market.Registry, valuer Valuer, logger *slog.Logger) *Reader {
	return &Reader{
		backend:     backend,
		comptroller: comptroller,
		markets:     markets,
		valuer:      valuer,
		logger:      logger.With(slog.String("component", "chain_reader")),
	}
}

// AccountLiquidity reads getAccountLiquidity(borrower). A non-zero protocol
// error code is reported as domain.ErrOracleOrProtocol.
func (r *Reader) AccountLiquidity(ctx context.Context, borrower common.Address) (domain.AccountLiquidity, error) {
	vals, err := call(ctx, r.backend, comptrollerABI, r.comptroller, "getAccountLiquidity", borrower)
	if err != nil {
		return domain.AccountLiquidity{}, fmt.Errorf("chain: account liquidity: %w", err)
	}
	if len(vals) != 3 {
		return domain.AccountLiquidity{}, fmt.Errorf("chain: account liquidity: expected 3 outputs, got %d", len(vals))
	}
	code, _ := vals[0].(*big.Int)
	liquidity, _ := vals[1].(*big.Int)
	shortfall, _ := vals[2].(*big.Int)
	if code == nil || liquidity == nil || shortfall == nil {
		return domain.AccountLiquidity{}, fmt.Errorf("chain: account liquidity: malformed outputs")
	}
	if code.Sign() != 0 {
		return domain.AccountLiquidity{}, fmt.Errorf("chain: account liquidity for %s: code %s: %w",
			borrower.Hex(), code, domain.ErrOracleOrProtocol)
	}
	return domain.AccountLiquidity{
		Borrower:     borrower,
		LiquidityUSD: market.MantissaToFloat(liquidity),
		ShortfallUSD: market.MantissaToFloat(shortfall),
		ObservedAt:   time.Now().UTC(),
	}, nil
}

// BorrowPositions reads borrowBalanceStored in every market concurrently.
// Failed markets are logged and left out; zero balances are filtered. The
// result follows registry order.
func (r *Reader) BorrowPositions(ctx context.Context, borrower common.Address) ([]domain.BorrowPosition, error) {
	positions := r.scanMarkets(ctx, borrower, "borrow", func(ctx context.Context, m domain.MarketConfig) (*domain.Position, error) {
		raw, err := callUint256(ctx, r.backend, cTokenABI, m.Market, "borrowBalanceStored", borrower)
		if err != nil {
			return nil, err
		}
		if raw.Sign() == 0 {
			return nil, nil
		}
		v := r.valuer.ValueOf(ctx, m, raw)
		return &domain.Position{Market: m, Raw: raw, Amount: v.TokenAmount, PriceUSD: v.UnitPriceUSD, ValueUSD: v.USDValue}, nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.BorrowPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, domain.BorrowPosition(p))
	}
	return out, nil
}

// CollateralPositions reads cToken balances and converts them to underlying
// through exchangeRateStored. Same isolation rules as BorrowPositions.
func (r *Reader) CollateralPositions(ctx context.Context, borrower common.Address) ([]domain.CollateralPosition, error) {
	positions := r.scanMarkets(ctx, borrower, "collateral", func(ctx context.Context, m domain.MarketConfig) (*domain.Position, error) {
		bal, err := callUint256(ctx, r.backend, cTokenABI, m.Market, "balanceOf", borrower)
		if err != nil {
			return nil, err
		}
		if bal.Sign() == 0 {
			return nil, nil
		}
		rate, err := r.ExchangeRate(ctx, m.Market)
		if err != nil {
			return nil, err
		}
		underlying := UnderlyingFromCTokens(bal, rate)
		v := r.valuer.ValueOf(ctx, m, underlying)
		return &domain.Position{Market: m, Raw: bal, Amount: v.TokenAmount, PriceUSD: v.UnitPriceUSD, ValueUSD: v.USDValue}, nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.CollateralPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, domain.CollateralPosition(p))
	}
	return out, nil
}

// scanMarkets runs read once per market. Each goroutine writes only its
// own slot so no locking is needed and order is preserved.
func (r *Reader) scanMarkets(
	ctx context.Context,
	borrower common.Address,
	kind string,
	read func(ctx context.Context, m domain.MarketConfig) (*domain.Position, error),
) []domain.Position {
	all := r.markets.All()
	slots := make([]*domain.Position, len(all))

	var g errgroup.Group
	for i, m := range all {
		g.Go(func() error {
			p, err := read(ctx, m)
			if err != nil {
				r.logger.Warn("market read failed",
					slog.String("kind", kind),
					slog.String("market", m.Symbol),
					slog.String("borrower", borrower.Hex()),
					slog.String("error", err.Error()),
				)
				return nil
			}
			slots[i] = p
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.Position, 0, len(slots))
	for _, p := range slots {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// UnderlyingFromCTokens converts a cToken balance to underlying units:
// balance * exchangeRate / 1e18.
func UnderlyingFromCTokens(balance, exchangeRate *big.Int) *big.Int {
	out := new(big.Int).Mul(balance, exchangeRate)
	return out.Quo(out, wad)
}

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// GasPrice returns the suggested gas price. If the read fails the last
// successful value is returned instead; domain.ErrNoGasPrice is returned
// only when no value was ever observed.
func (r *Reader) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := r.backend.SuggestGasPrice(ctx)

	r.gasMu.Lock()
	defer r.gasMu.Unlock()
	if err == nil && price != nil {
		r.lastGasPrice = new(big.Int).Set(price)
		return price, nil
	}
	if r.lastGasPrice != nil {
		r.logger.Warn("gas price read failed, using last observed value",
			slog.String("gas_price", r.lastGasPrice.String()),
			slog.String("error", errString(err)),
		)
		return new(big.Int).Set(r.lastGasPrice), nil
	}
	return nil, fmt.Errorf("chain: gas price: %s: %w", errString(err), domain.ErrNoGasPrice)
}

// TokenBalance returns the ERC-20 balance of owner.
func (r *Reader) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	bal, err := callUint256(ctx, r.backend, erc20ABI, token, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("chain: token balance: %w", err)
	}
	return bal, nil
}

// Allowance returns the ERC-20 allowance from owner to spender.
func (r *Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	v, err := callUint256(ctx, r.backend, erc20ABI, token, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("chain: allowance: %w", err)
	}
	return v, nil
}

// NativeBalance returns the native coin balance of owner.
func (r *Reader) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := r.backend.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: native balance: %w", err)
	}
	return bal, nil
}

// ExchangeRate reads exchangeRateStored for a market.
func (r *Reader) ExchangeRate(ctx context.Context, marketAddr common.Address) (*big.Int, error) {
	v, err := callUint256(ctx, r.backend, cTokenABI, marketAddr, "exchangeRateStored")
	if err != nil {
		return nil, fmt.Errorf("chain: exchange rate: %w", err)
	}
	return v, nil
}

// CloseFactor reads closeFactorMantissa as a fraction.
func (r *Reader) CloseFactor(ctx context.Context) (float64, error) {
	v, err := callUint256(ctx, r.backend, comptrollerABI, r.comptroller, "closeFactorMantissa")
	if err != nil {
		return 0, fmt.Errorf("chain: close factor: %w", err)
	}
	return market.MantissaToFloat(v), nil
}

// LiquidationIncentive reads liquidationIncentiveMantissa and returns the
// bonus fraction. Compound stores 1.08e18 for an 8% bonus and 1e18 for none.
func (r *Reader) LiquidationIncentive(ctx context.Context) (float64, error) {
	v, err := callUint256(ctx, r.backend, comptrollerABI, r.comptroller, "liquidationIncentiveMantissa")
	if err != nil {
		return 0, fmt.Errorf("chain: liquidation incentive: %w", err)
	}
	f := market.MantissaToFloat(v)
	if f >= 1 {
		f -= 1
	}
	return f, nil
}

// BlockNumber returns the latest block number.
func (r *Reader) BlockNumber(ctx context.Context) (uint64, error) {
	h, err := r.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return h.Number.Uint64(), nil
}

// VerifyMarkets checks each configured market against the chain: that the
// Comptroller lists it and that its underlying and decimals match the
// configuration. Mismatches are returned as warnings; they never fail
// startup.
func (r *Reader) VerifyMarkets(ctx context.Context) []string {
	var warnings []string
	for _, m := range r.markets.All() {
		vals, err := call(ctx, r.backend, comptrollerABI, r.comptroller, "markets", m.Market)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: markets(): %v", m.Symbol, err))
			continue
		}
		if listed, _ := vals[0].(bool); !listed {
			warnings = append(warnings, fmt.Sprintf("%s: not listed in comptroller", m.Symbol))
		}

		if vals, err := call(ctx, r.backend, cTokenABI, m.Market, "symbol"); err == nil {
			r.logger.Debug("market verified",
				slog.String("market", m.Symbol),
				slog.String("onchain_symbol", fmt.Sprint(vals[0])),
			)
		}

		if vals, err := call(ctx, r.backend, cTokenABI, m.Market, "decimals"); err == nil {
			if d, ok := vals[0].(uint8); ok && d != m.Decimals {
				warnings = append(warnings, fmt.Sprintf("%s: decimals %d on chain, %d configured", m.Symbol, d, m.Decimals))
			}
		}

		if m.IsNative() {
			continue
		}
		vals, err = call(ctx, r.backend, cTokenABI, m.Market, "underlying")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: underlying(): %v", m.Symbol, err))
			continue
		}
		if u, ok := vals[0].(common.Address); ok && u != m.Underlying {
			warnings = append(warnings, fmt.Sprintf("%s: underlying %s on chain, %s configured",
				m.Symbol, strings.ToLower(u.Hex()), strings.ToLower(m.Underlying.Hex())))
		}
	}
	return warnings
}

func errString(err error) string {
	if err == nil {
		return "empty result"
	}
	return err.Error()
}

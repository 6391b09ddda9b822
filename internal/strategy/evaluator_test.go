package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

var (
	borrower = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	usdtMkt  = domain.MarketConfig{Symbol: "USDT", Market: common.HexToAddress("0x11"), Underlying: common.HexToAddress("0xa1"), Decimals: 8, UnderlyingDecimals: 6}
	ethMkt   = domain.MarketConfig{Symbol: "ETH", Market: common.HexToAddress("0x12"), Decimals: 8, UnderlyingDecimals: 18}
	daiMkt   = domain.MarketConfig{Symbol: "DAI", Market: common.HexToAddress("0x13"), Underlying: common.HexToAddress("0xa3"), Decimals: 8, UnderlyingDecimals: 18}
)

func underwater(shortfall float64) domain.AccountLiquidity {
	return domain.AccountLiquidity{Borrower: borrower, ShortfallUSD: shortfall, ObservedAt: time.Unix(1700000000, 0)}
}

func borrowOf(m domain.MarketConfig, usd float64) domain.BorrowPosition {
	return domain.BorrowPosition{Market: m, Amount: usd, PriceUSD: 1, ValueUSD: usd}
}

func collateralOf(m domain.MarketConfig, usd float64) domain.CollateralPosition {
	return domain.CollateralPosition{Market: m, Amount: usd, PriceUSD: 1, ValueUSD: usd}
}

func scenarioThresholds(minProfit float64) Thresholds {
	return Thresholds{MinProfitUSD: minProfit, MaxGasPriceGwei: 100, MaxLiquidationUSD: 1000, MinCollateralUSD: 10}
}

func TestEvaluateScenarioA(t *testing.T) {
	opp, ok := Evaluate(borrower, underwater(50),
		[]domain.BorrowPosition{borrowOf(usdtMkt, 200)},
		[]domain.CollateralPosition{collateralOf(ethMkt, 400)},
		DefaultProtocolParams, scenarioThresholds(5), LargestPairing{})

	require.True(t, ok)
	assert.InDelta(t, 100.0, opp.RepayUSD, 1e-9)
	assert.InDelta(t, 8.0, opp.ExpectedProfitUSD, 1e-9)
	assert.InDelta(t, 50.0, opp.ShortfallUSD, 1e-9)
	assert.Equal(t, "USDT", opp.Borrow.Market.Symbol)
	assert.Equal(t, "ETH", opp.Collateral.Market.Symbol)
	assert.Equal(t, borrower, opp.Borrower)
}

func TestEvaluateScenarioB(t *testing.T) {
	_, rej := Explain(borrower, underwater(50),
		[]domain.BorrowPosition{borrowOf(usdtMkt, 200)},
		[]domain.CollateralPosition{collateralOf(ethMkt, 400)},
		DefaultProtocolParams, scenarioThresholds(10), LargestPairing{})

	assert.Equal(t, RejectProfit, rej)
}

func TestEvaluateScenarioC(t *testing.T) {
	for _, shortfall := range []float64{0.01, 50, 1e9} {
		_, ok := Evaluate(borrower, underwater(shortfall),
			[]domain.BorrowPosition{borrowOf(usdtMkt, 200)},
			nil,
			DefaultProtocolParams, scenarioThresholds(0), LargestPairing{})
		assert.False(t, ok)
	}
}

func TestEvaluateRejections(t *testing.T) {
	borrows := []domain.BorrowPosition{borrowOf(usdtMkt, 200)}
	collaterals := []domain.CollateralPosition{collateralOf(ethMkt, 400)}

	cases := []struct {
		name        string
		liq         domain.AccountLiquidity
		borrows     []domain.BorrowPosition
		collaterals []domain.CollateralPosition
		th          Thresholds
		want        Rejection
	}{
		{"healthy", domain.AccountLiquidity{LiquidityUSD: 100}, borrows, collaterals, scenarioThresholds(0), RejectHealthy},
		{"no borrows", underwater(50), nil, collaterals, scenarioThresholds(0), RejectNoBorrows},
		{"unpriced borrow", underwater(50), []domain.BorrowPosition{borrowOf(usdtMkt, 0)}, collaterals, scenarioThresholds(0), RejectNothingToRepay},
		{"small collateral", underwater(50), borrows, []domain.CollateralPosition{collateralOf(ethMkt, 9.99)}, scenarioThresholds(0), RejectCollateral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, rej := Explain(borrower, tc.liq, tc.borrows, tc.collaterals, DefaultProtocolParams, tc.th, LargestPairing{})
			assert.Equal(t, tc.want, rej)
		})
	}
}

func TestEvaluateCapsRepayAtMaxLiquidation(t *testing.T) {
	th := scenarioThresholds(5)
	th.MaxLiquidationUSD = 300
	opp, ok := Evaluate(borrower, underwater(5000),
		[]domain.BorrowPosition{borrowOf(usdtMkt, 10_000)},
		[]domain.CollateralPosition{collateralOf(ethMkt, 12_000)},
		DefaultProtocolParams, th, nil)

	require.True(t, ok)
	assert.InDelta(t, 300.0, opp.RepayUSD, 1e-9)
	assert.InDelta(t, 24.0, opp.ExpectedProfitUSD, 1e-9)
}

func TestEvaluateInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	params := ProtocolParams{CloseFactor: 0.5, LiquidationIncentive: 0.08}

	for i := 0; i < 2000; i++ {
		th := Thresholds{
			MinProfitUSD:      rng.Float64() * 20,
			MaxLiquidationUSD: rng.Float64() * 2000,
			MinCollateralUSD:  rng.Float64() * 100,
		}
		liq := domain.AccountLiquidity{ShortfallUSD: rng.Float64()*100 - 20}
		var borrows []domain.BorrowPosition
		for n := rng.Intn(4); n > 0; n-- {
			borrows = append(borrows, borrowOf(usdtMkt, rng.Float64()*5000))
		}
		var collaterals []domain.CollateralPosition
		for n := rng.Intn(4); n > 0; n-- {
			collaterals = append(collaterals, collateralOf(ethMkt, rng.Float64()*5000))
		}

		opp, ok := Evaluate(borrower, liq, borrows, collaterals, params, th, LargestPairing{})
		again, okAgain := Evaluate(borrower, liq, borrows, collaterals, params, th, LargestPairing{})
		require.Equal(t, ok, okAgain)
		require.Equal(t, opp, again)

		if liq.ShortfallUSD <= 0 {
			require.False(t, ok)
		}
		if !ok {
			continue
		}
		assert.LessOrEqual(t, opp.RepayUSD, opp.Borrow.ValueUSD*params.CloseFactor+1e-9)
		assert.LessOrEqual(t, opp.RepayUSD, th.MaxLiquidationUSD+1e-9)
		assert.GreaterOrEqual(t, opp.ExpectedProfitUSD, th.MinProfitUSD)
		assert.GreaterOrEqual(t, opp.Collateral.ValueUSD, th.MinCollateralUSD)
	}
}

func TestLargestPairingTiesFirstWins(t *testing.T) {
	b, c := LargestPairing{}.Select(
		[]domain.BorrowPosition{borrowOf(usdtMkt, 100), borrowOf(daiMkt, 100)},
		[]domain.CollateralPosition{collateralOf(daiMkt, 50), collateralOf(ethMkt, 70), collateralOf(usdtMkt, 70)},
	)
	assert.Equal(t, "USDT", b.Market.Symbol)
	assert.Equal(t, "ETH", c.Market.Symbol)
}

func TestCrossAssetPairing(t *testing.T) {
	b, c := SameAssetAvoidingPairing{}.Select(
		[]domain.BorrowPosition{borrowOf(usdtMkt, 100)},
		[]domain.CollateralPosition{collateralOf(usdtMkt, 500), collateralOf(ethMkt, 70), collateralOf(daiMkt, 80)},
	)
	assert.Equal(t, "USDT", b.Market.Symbol)
	assert.Equal(t, "DAI", c.Market.Symbol)

	_, c = SameAssetAvoidingPairing{}.Select(
		[]domain.BorrowPosition{borrowOf(usdtMkt, 100)},
		[]domain.CollateralPosition{collateralOf(usdtMkt, 500)},
	)
	assert.Equal(t, "USDT", c.Market.Symbol)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"cross_asset", "largest"}, r.List())

	p, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "largest", p.Name())

	_, err = r.Get("optimal")
	assert.Error(t, err)
}

type stubProtocol struct {
	cf, li float64
	err    error
	calls  int
}

func (s *stubProtocol) CloseFactor(context.Context) (float64, error) {
	s.calls++
	return s.cf, s.err
}

func (s *stubProtocol) LiquidationIncentive(context.Context) (float64, error) {
	return s.li, s.err
}

func TestCachedParams(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stub := &stubProtocol{err: errors.New("rpc down")}
	now := time.Unix(1700000000, 0)
	cp := NewCachedParams(stub, time.Hour, DefaultProtocolParams, logger)
	cp.now = func() time.Time { return now }

	assert.Equal(t, DefaultProtocolParams, cp.Params(context.Background()))

	stub.err = nil
	stub.cf, stub.li = 0.4, 0.1
	assert.Equal(t, ProtocolParams{CloseFactor: 0.4, LiquidationIncentive: 0.1}, cp.Params(context.Background()))
	calls := stub.calls

	stub.cf = 0.3
	now = now.Add(30 * time.Minute)
	assert.Equal(t, 0.4, cp.Params(context.Background()).CloseFactor)
	assert.Equal(t, calls, stub.calls)

	stub.err = errors.New("rpc down")
	now = now.Add(time.Hour)
	assert.Equal(t, 0.4, cp.Params(context.Background()).CloseFactor)

	stub.err = nil
	assert.Equal(t, 0.3, cp.Params(context.Background()).CloseFactor)

	now = now.Add(2 * time.Hour)
	stub.cf, stub.li = 0.5, 1
	assert.Equal(t, ProtocolParams{CloseFactor: 0.3, LiquidationIncentive: 0.1}, cp.Params(context.Background()))
	stub.li = -0.01
	assert.Equal(t, 0.1, cp.Params(context.Background()).LiquidationIncentive)
	stub.li = 0
	assert.Equal(t, ProtocolParams{CloseFactor: 0.5, LiquidationIncentive: 0}, cp.Params(context.Background()))
}

func TestStaticParams(t *testing.T) {
	sp := StaticParams{P: DefaultProtocolParams}
	assert.Equal(t, DefaultProtocolParams, sp.Params(context.Background()))
}

package strategy

import (
	"math"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// Rejection explains why no opportunity was produced. It is for debug
// logging only; a rejection is not an error.
type Rejection string

const (
	Accepted             Rejection = ""
	RejectHealthy        Rejection = "account healthy"
	RejectNoBorrows      Rejection = "no borrow positions"
	RejectNoCollateral   Rejection = "no collateral positions"
	RejectNothingToRepay Rejection = "nothing to repay"
	RejectCollateral     Rejection = "collateral below minimum"
	RejectProfit         Rejection = "profit below minimum"
)

// Evaluate decides whether the borrower can be liquidated profitably. It is
// a pure function of its inputs.
func Evaluate(
	borrower common.Address,
	liquidity domain.AccountLiquidity,
	borrows []domain.BorrowPosition,
	collaterals []domain.CollateralPosition,
	params ProtocolParams,
	th Thresholds,
	pairing Pairing,
) (domain.LiquidationOpportunity, bool) {
	opp, rej := Explain(borrower, liquidity, borrows, collaterals, params, th, pairing)
	return opp, rej == Accepted
}

// Explain is Evaluate with the rejection reason.
func Explain(
	borrower common.Address,
	liquidity domain.AccountLiquidity,
	borrows []domain.BorrowPosition,
	collaterals []domain.CollateralPosition,
	params ProtocolParams,
	th Thresholds,
	pairing Pairing,
) (domain.LiquidationOpportunity, Rejection) {
	if !liquidity.IsUnderwater() {
		return domain.LiquidationOpportunity{}, RejectHealthy
	}
	if len(borrows) == 0 {
		return domain.LiquidationOpportunity{}, RejectNoBorrows
	}
	if len(collaterals) == 0 {
		return domain.LiquidationOpportunity{}, RejectNoCollateral
	}
	if pairing == nil {
		pairing = LargestPairing{}
	}

	borrow, collateral := pairing.Select(borrows, collaterals)

	maxRepayUSD := borrow.ValueUSD * params.CloseFactor
	repayUSD := math.Min(maxRepayUSD, th.MaxLiquidationUSD)
	if repayUSD <= 0 {
		return domain.LiquidationOpportunity{}, RejectNothingToRepay
	}
	if collateral.ValueUSD < th.MinCollateralUSD {
		return domain.LiquidationOpportunity{}, RejectCollateral
	}

	profitUSD := repayUSD * params.LiquidationIncentive
	if profitUSD < th.MinProfitUSD {
		return domain.LiquidationOpportunity{}, RejectProfit
	}

	return domain.LiquidationOpportunity{
		Borrower:             borrower,
		Borrow:               borrow,
		Collateral:           collateral,
		RepayUSD:             repayUSD,
		ExpectedProfitUSD:    profitUSD,
		ShortfallUSD:         liquidity.ShortfallUSD,
		CloseFactor:          params.CloseFactor,
		LiquidationIncentive: params.LiquidationIncentive,
		EvaluatedAt:          liquidity.ObservedAt,
	}, Accepted
}

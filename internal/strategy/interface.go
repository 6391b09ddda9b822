// Package strategy decides whether an underwater borrower is worth
// liquidating and computes the economics of doing so.
package strategy

import (
	"context"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// Pairing picks the borrow to repay and the collateral to seize from a
// borrower's positions. Both slices are non-empty when Select is called.
type Pairing interface {
	Name() string
	Select(borrows []domain.BorrowPosition, collaterals []domain.CollateralPosition) (domain.BorrowPosition, domain.CollateralPosition)
}

// Thresholds are the operator-supplied safety bounds.
type Thresholds struct {
	MinProfitUSD      float64
	MaxGasPriceGwei   float64
	MaxLiquidationUSD float64
	MinCollateralUSD  float64
}

// ProtocolParams are the protocol-wide liquidation parameters.
type ProtocolParams struct {
	// CloseFactor is the maximum fraction of one borrow repayable per call.
	CloseFactor float64
	// LiquidationIncentive is the liquidator's bonus fraction, e.g. 0.08.
	LiquidationIncentive float64
}

// DefaultProtocolParams are used in static mode and before the first
// successful on-chain read.
var DefaultProtocolParams = ProtocolParams{CloseFactor: 0.5, LiquidationIncentive: 0.08}

// ParamsProvider supplies the current protocol parameters.
type ParamsProvider interface {
	Params(ctx context.Context) ProtocolParams
}

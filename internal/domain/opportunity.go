package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidationOpportunity is an admissible liquidation computed by the
// evaluator. It lives only for the duration of one scan.
type LiquidationOpportunity struct {
	Borrower          common.Address
	Borrow            BorrowPosition
	Collateral        CollateralPosition
	RepayUSD          float64
	ExpectedProfitUSD float64
	ShortfallUSD      float64

	CloseFactor          float64
	LiquidationIncentive float64
	EvaluatedAt          time.Time
}

// ExecutionResult is the outcome of one execution attempt. Record is set
// only when Success is true; Reason only when it is false.
type ExecutionResult struct {
	Success bool
	Record  *LiquidationRecord
	Reason  string
	TxHash  string
}

// Failed builds a failed ExecutionResult with the given reason.
func Failed(reason string) ExecutionResult {
	return ExecutionResult{Success: false, Reason: reason}
}

// OpportunityView is the JSON shape of an opportunity for the API, event
// bus and audit log.
type OpportunityView struct {
	Borrower          string    `json:"borrower"`
	RepaySymbol       string    `json:"repay_symbol"`
	RepayMarket       string    `json:"repay_market"`
	BorrowUSD         float64   `json:"borrow_usd"`
	SeizeSymbol       string    `json:"seize_symbol"`
	SeizeMarket       string    `json:"seize_market"`
	CollateralUSD     float64   `json:"collateral_usd"`
	RepayUSD          float64   `json:"repay_usd"`
	ExpectedProfitUSD float64   `json:"expected_profit_usd"`
	ShortfallUSD      float64   `json:"shortfall_usd"`
	EvaluatedAt       time.Time `json:"evaluated_at"`
}

// View flattens the opportunity for serialization.
func (o LiquidationOpportunity) View() OpportunityView {
	return OpportunityView{
		Borrower:          o.Borrower.Hex(),
		RepaySymbol:       o.Borrow.Market.Symbol,
		RepayMarket:       o.Borrow.Market.Market.Hex(),
		BorrowUSD:         o.Borrow.ValueUSD,
		SeizeSymbol:       o.Collateral.Market.Symbol,
		SeizeMarket:       o.Collateral.Market.Market.Hex(),
		CollateralUSD:     o.Collateral.ValueUSD,
		RepayUSD:          o.RepayUSD,
		ExpectedProfitUSD: o.ExpectedProfitUSD,
		ShortfallUSD:      o.ShortfallUSD,
		EvaluatedAt:       o.EvaluatedAt,
	}
}

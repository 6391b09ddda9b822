package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AccountLiquidity is a borrower's liquidity snapshot as reported by the
// risk engine. It is recomputed on every evaluation and never cached.
type AccountLiquidity struct {
	Borrower     common.Address
	LiquidityUSD float64 // spare borrowing power
	ShortfallUSD float64 // amount by which collateral falls short
	ObservedAt   time.Time
}

// IsUnderwater reports whether the account has a positive shortfall.
func (a AccountLiquidity) IsUnderwater() bool {
	return a.ShortfallUSD > 0
}

// Valuation is the result of converting a raw on-chain amount to human units
// and USD.
type Valuation struct {
	TokenAmount  float64
	UnitPriceUSD float64
	USDValue     float64
}

// Position is one borrower's balance in one market at evaluation time.
type Position struct {
	Market MarketConfig
	// Raw is the on-chain balance: underlying units for borrows, cToken units
	// for collateral.
	Raw *big.Int
	// Amount is Raw converted to underlying human units.
	Amount   float64
	PriceUSD float64
	ValueUSD float64
}

// BorrowPosition is an outstanding debt in one market.
type BorrowPosition Position

// CollateralPosition is supplied collateral in one market.
type CollateralPosition Position

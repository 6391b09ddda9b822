package domain

import "time"

// LiquidationRecord is an immutable ledger entry written after an on-chain
// liquidation was confirmed with success status.
type LiquidationRecord struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Borrower       string    `json:"borrower"`
	RepaySymbol    string    `json:"repay_symbol"`
	RepayAmount    float64   `json:"repay_amount"`
	SeizeSymbol    string    `json:"seize_symbol"`
	LiquidationUSD float64   `json:"liquidation_usd"`
	ProfitUSD      float64   `json:"profit_usd"`
	TxHash         string    `json:"tx_hash"`
	GasUsed        uint64    `json:"gas_used"`
	BlockNumber    uint64    `json:"block_number"`
}

// LedgerStats aggregates the ledger for status reporting and the shutdown
// summary.
type LedgerStats struct {
	Count            int     `json:"count"`
	TotalProfitUSD   float64 `json:"total_profit_usd"`
	TotalVolumeUSD   float64 `json:"total_volume_usd"`
	AverageProfitUSD float64 `json:"average_profit_usd"`
	Attempts         int     `json:"attempts"`
	Failures         int     `json:"failures"`
}

// Package executor turns an admissible liquidation opportunity into a
// signed, confirmed transaction.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/liquidbot/internal/domain"
	"github.com/alanyoungcy/liquidbot/internal/market"
)

// Failure reasons reported in ExecutionResult.Reason. Preflight reasons are
// the messages of the matching domain sentinels.
var (
	ReasonPriceUnavailable    = domain.ErrPriceUnavailable.Error()
	ReasonGasPriceTooHigh     = domain.ErrGasPriceTooHigh.Error()
	ReasonInsufficientBalance = domain.ErrInsufficientBalance.Error()
	ReasonApprovalFailed      = domain.ErrApprovalFailed.Error()
	ReasonReverted            = domain.ErrReverted.Error()
)

const (
	ReasonGasPriceUnavailable = "gas price unavailable"
	ReasonNothingToRepay      = "nothing to repay"
	ReasonDryRun              = "dry run"
)

// ChainReader is the read side the executor needs for preflight.
type ChainReader interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}

// PriceReader returns a fresh oracle price for a market's underlying.
type PriceReader interface {
	Price(ctx context.Context, m domain.MarketConfig) (float64, error)
}

// Sender submits transactions from the liquidator wallet.
type Sender interface {
	From() common.Address
	Approve(ctx context.Context, token, spender common.Address, amount, gasPrice *big.Int) (*types.Transaction, error)
	LiquidateBorrow(ctx context.Context, marketAddr, borrower common.Address, repay *big.Int, collateralMarket common.Address, value, gasPrice *big.Int) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Recorder receives confirmed liquidation records.
type Recorder interface {
	Append(rec domain.LiquidationRecord)
}

// Config holds execution settings.
type Config struct {
	MaxGasPriceGwei float64
	DryRun          bool
	// UnlimitedApproval approves MaxUint256 instead of the exact repay amount.
	UnlimitedApproval bool
}

// Executor runs preflight checks and submits liquidations one at a time.
type Executor struct {
	reader ChainReader
	prices PriceReader
	sender Sender
	ledger Recorder
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Executor.
func New(reader ChainReader, prices PriceReader, sender Sender, ledger Recorder, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		reader: reader,
		prices: prices,
		sender: sender,
		ledger: ledger,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "executor")),
		now:    time.Now,
	}
}

// Execute attempts one liquidation. Every failure is reported through the
// result; Execute never returns an error or panics on RPC failures.
func (e *Executor) Execute(ctx context.Context, opp domain.LiquidationOpportunity) domain.ExecutionResult {
	log := e.logger.With(
		slog.String("borrower", opp.Borrower.Hex()),
		slog.String("repay_market", opp.Borrow.Market.Symbol),
		slog.String("seize_market", opp.Collateral.Market.Symbol),
		slog.Float64("repay_usd", opp.RepayUSD),
	)

	pf, reason := e.preflight(ctx, opp, log)
	if reason != "" {
		log.Warn("preflight failed", slog.String("reason", reason))
		return domain.Failed(reason)
	}

	if e.cfg.DryRun {
		log.Info("dry run, not submitting",
			slog.String("repay_amount", pf.repay.String()),
			slog.String("gas_price", pf.gasPrice.String()),
			slog.Bool("needs_approval", pf.needsApproval),
		)
		return domain.Failed(ReasonDryRun)
	}

	// Submission and confirmation are not interrupted by shutdown.
	sctx := context.WithoutCancel(ctx)

	if pf.needsApproval {
		if err := e.approve(sctx, opp.Borrow.Market, pf, log); err != nil {
			log.Error("approval failed", slog.String("error", err.Error()))
			return domain.Failed(ReasonApprovalFailed)
		}
	}

	var value *big.Int
	if opp.Borrow.Market.IsNative() {
		value = pf.repay
	}
	tx, err := e.sender.LiquidateBorrow(sctx, opp.Borrow.Market.Market, opp.Borrower, pf.repay, opp.Collateral.Market.Market, value, pf.gasPrice)
	if err != nil {
		reason := Classify(err)
		log.Error("liquidation submit failed", slog.String("reason", reason), slog.String("error", err.Error()))
		return domain.Failed(reason)
	}
	txHash := tx.Hash().Hex()
	log = log.With(slog.String("tx", txHash))

	receipt, err := e.sender.WaitMined(sctx, tx)
	if err != nil {
		reason := Classify(err)
		log.Error("liquidation confirmation failed", slog.String("reason", reason), slog.String("error", err.Error()))
		res := domain.Failed(reason)
		res.TxHash = txHash
		return res
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Warn("liquidation reverted", slog.Uint64("gas_used", receipt.GasUsed))
		res := domain.Failed(ReasonReverted)
		res.TxHash = txHash
		return res
	}

	rec := domain.LiquidationRecord{
		ID:             uuid.New().String(),
		Timestamp:      e.now().UTC(),
		Borrower:       strings.ToLower(opp.Borrower.Hex()),
		RepaySymbol:    opp.Borrow.Market.Symbol,
		RepayAmount:    market.ToHuman(pf.repay, opp.Borrow.Market.UnderlyingDecimals),
		SeizeSymbol:    opp.Collateral.Market.Symbol,
		LiquidationUSD: opp.RepayUSD,
		ProfitUSD:      opp.ExpectedProfitUSD,
		TxHash:         txHash,
		GasUsed:        receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		rec.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if e.ledger != nil {
		e.ledger.Append(rec)
	}

	log.Info("liquidation confirmed",
		slog.Float64("profit_usd", rec.ProfitUSD),
		slog.Uint64("gas_used", rec.GasUsed),
		slog.Uint64("block", rec.BlockNumber),
	)
	return domain.ExecutionResult{Success: true, Record: &rec, TxHash: txHash}
}

type preflightResult struct {
	repay         *big.Int
	gasPrice      *big.Int
	needsApproval bool
}

func (e *Executor) preflight(ctx context.Context, opp domain.LiquidationOpportunity, log *slog.Logger) (preflightResult, string) {
	var pf preflightResult
	m := opp.Borrow.Market

	// 1. Repay amount in underlying units from a fresh price.
	price, err := e.prices.Price(ctx, m)
	if err != nil || price <= 0 {
		if err != nil {
			log.Warn("fresh price read failed", slog.String("error", err.Error()))
		}
		return pf, ReasonPriceUnavailable
	}
	pf.repay = RepayAmount(opp, price)
	if pf.repay.Sign() <= 0 {
		return pf, ReasonNothingToRepay
	}

	// 2. Gas price cap.
	gasPrice, err := e.reader.GasPrice(ctx)
	if err != nil {
		log.Warn("gas price read failed", slog.String("error", err.Error()))
		return pf, ReasonGasPriceUnavailable
	}
	if gasPrice.Cmp(GweiToWei(e.cfg.MaxGasPriceGwei)) > 0 {
		log.Info("gas price above cap",
			slog.String("gas_price_wei", gasPrice.String()),
			slog.Float64("max_gwei", e.cfg.MaxGasPriceGwei),
		)
		return pf, ReasonGasPriceTooHigh
	}
	pf.gasPrice = gasPrice

	from := e.sender.From()

	// 4. Native debt.
	if m.IsNative() {
		bal, err := e.reader.NativeBalance(ctx, from)
		if err != nil {
			log.Warn("native balance read failed", slog.String("error", err.Error()))
			return pf, ReasonInsufficientBalance
		}
		if bal.Cmp(pf.repay) < 0 {
			return pf, ReasonInsufficientBalance
		}
		return pf, ""
	}

	// 3. ERC-20 debt: balance, then allowance.
	bal, err := e.reader.TokenBalance(ctx, m.Underlying, from)
	if err != nil {
		log.Warn("token balance read failed", slog.String("error", err.Error()))
		return pf, ReasonInsufficientBalance
	}
	if bal.Cmp(pf.repay) < 0 {
		return pf, ReasonInsufficientBalance
	}
	allowance, err := e.reader.Allowance(ctx, m.Underlying, from, m.Market)
	if err != nil {
		log.Warn("allowance read failed, will approve", slog.String("error", err.Error()))
		pf.needsApproval = true
		return pf, ""
	}
	pf.needsApproval = allowance.Cmp(pf.repay) < 0
	return pf, ""
}

func (e *Executor) approve(ctx context.Context, m domain.MarketConfig, pf preflightResult, log *slog.Logger) error {
	amount := pf.repay
	if e.cfg.UnlimitedApproval {
		amount = math.MaxBig256
	}
	tx, err := e.sender.Approve(ctx, m.Underlying, m.Market, amount, pf.gasPrice)
	if err != nil {
		return fmt.Errorf("executor: approve: %w", err)
	}
	log.Info("approval sent", slog.String("approve_tx", tx.Hash().Hex()))

	receipt, err := e.sender.WaitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("executor: approve wait: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("executor: approve %s: %w", tx.Hash().Hex(), domain.ErrReverted)
	}
	return nil
}

// RepayAmount converts the opportunity's repay USD into underlying units at
// price, capped at the close-factor share of the raw borrow balance.
func RepayAmount(opp domain.LiquidationOpportunity, price float64) *big.Int {
	m := opp.Borrow.Market
	amount := decimal.NewFromFloat(opp.RepayUSD).Div(decimal.NewFromFloat(price))
	repay := market.ToRaw(amount, m.UnderlyingDecimals)

	if opp.Borrow.Raw != nil && opp.CloseFactor > 0 {
		limit := decimal.NewFromBigInt(opp.Borrow.Raw, 0).Mul(decimal.NewFromFloat(opp.CloseFactor)).Truncate(0).BigInt()
		if repay.Cmp(limit) > 0 {
			repay = limit
		}
	}
	return repay
}

// GweiToWei converts a gwei amount to wei.
func GweiToWei(gwei float64) *big.Int {
	return decimal.NewFromFloat(gwei).Shift(9).Truncate(0).BigInt()
}

// String returns a human-readable description of the executor.
func (e *Executor) String() string {
	return fmt.Sprintf("Executor(wallet=%s, dry_run=%t)", e.sender.From().Hex(), e.cfg.DryRun)
}

var _ fmt.Stringer = (*Executor)(nil)

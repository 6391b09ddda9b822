package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransactorConfig controls gas limits and confirmation waits.
type TransactorConfig struct {
	GasLimitFloor  uint64
	GasHeadroomPct int
	ConfirmTimeout time.Duration
}

// Transactor signs and submits transactions from the liquidator wallet.
// Submissions are serialized so nonces never collide.
type Transactor struct {
	backend Backend
	opts    *bind.TransactOpts
	cfg     TransactorConfig
	logger  *slog.Logger

	mu sync.Mutex
}

// NewTransactor creates a Transactor signing with opts.
func NewTransactor(backend Backend, opts *bind.TransactOpts, cfg TransactorConfig, logger *slog.Logger) *Transactor {
	if cfg.GasHeadroomPct <= 0 {
		cfg.GasHeadroomPct = 20
	}
	return &Transactor{
		backend: backend,
		opts:    opts,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "chain_transactor")),
	}
}

// From returns the sending address.
func (t *Transactor) From() common.Address {
	return t.opts.From
}

// Approve sends ERC-20 approve(spender, amount) on token. A nil gasPrice
// uses the node's suggestion.
func (t *Transactor) Approve(ctx context.Context, token, spender common.Address, amount, gasPrice *big.Int) (*types.Transaction, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve: %w", err)
	}
	tx, err := t.send(ctx, token, data, nil, gasPrice)
	if err != nil {
		return nil, fmt.Errorf("chain: approve: %w", err)
	}
	return tx, nil
}

// LiquidateBorrow sends liquidateBorrow(borrower, repay, collateralMarket)
// to marketAddr. value is attached as native coin and must be nil for
// ERC-20 markets.
func (t *Transactor) LiquidateBorrow(
	ctx context.Context,
	marketAddr, borrower common.Address,
	repay *big.Int,
	collateralMarket common.Address,
	value, gasPrice *big.Int,
) (*types.Transaction, error) {
	data, err := cTokenABI.Pack("liquidateBorrow", borrower, repay, collateralMarket)
	if err != nil {
		return nil, fmt.Errorf("chain: pack liquidateBorrow: %w", err)
	}
	tx, err := t.send(ctx, marketAddr, data, value, gasPrice)
	if err != nil {
		return nil, fmt.Errorf("chain: liquidate borrow: %w", err)
	}
	return tx, nil
}

// WaitMined blocks until tx has a receipt or the confirm timeout elapses.
func (t *Transactor) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx := ctx
	if t.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t.cfg.ConfirmTimeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(waitCtx, t.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("chain: wait mined %s: %w", tx.Hash().Hex(), err)
	}
	return receipt, nil
}

func (t *Transactor) send(ctx context.Context, to common.Address, data []byte, value, gasPrice *big.Int) (*types.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.opts.From
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := t.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	if gasPrice == nil {
		gasPrice, err = t.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}
	}

	estimate, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &to,
		GasPrice: gasPrice,
		Value:    value,
		Data:     data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	limit := estimate * uint64(100+t.cfg.GasHeadroomPct) / 100
	if limit < t.cfg.GasLimitFloor {
		limit = t.cfg.GasLimitFloor
	}

	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      limit,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := t.opts.Signer(from, unsigned)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	t.logger.Info("transaction sent",
		slog.String("tx", signed.Hash().Hex()),
		slog.String("to", to.Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", limit),
		slog.String("gas_price", gasPrice.String()),
		slog.String("value", value.String()),
	)
	return signed, nil
}

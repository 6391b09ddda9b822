// Package chain reads lending protocol state over JSON-RPC and submits
// liquidation transactions.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of *ethclient.Client the bot uses.
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasPricer
	ethereum.GasEstimator
	ethereum.TransactionSender
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial connects to the RPC endpoint and checks the chain ID when expected
// is non-zero.
func Dial(ctx context.Context, rpcURL string, expectedChainID int64) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial: %w", err)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	if expectedChainID > 0 && id.Int64() != expectedChainID {
		client.Close()
		return nil, fmt.Errorf("chain: connected to chain %s, expected %d", id, expectedChainID)
	}
	return client, nil
}

// defaultCallTimeout bounds a single eth_call.
const defaultCallTimeout = 8 * time.Second

// call packs method, runs eth_call against latest state and unpacks the
// outputs.
func call(ctx context.Context, b Backend, contractABI abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	out, err := b.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s on %s: empty result", method, to.Hex())
	}
	vals, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

// callUint256 is call for single uint256-returning methods.
func callUint256(ctx context.Context, b Backend, contractABI abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	vals, err := call(ctx, b, contractABI, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, vals[0])
	}
	return v, nil
}

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type callHandler func(args []any) ([]any, error)

// fakeBackend answers eth_call by decoding the selector against the known
// ABIs and dispatching to a handler keyed by "address.method".
type fakeBackend struct {
	mu sync.Mutex

	handlers map[string]callHandler

	gasPrice *big.Int
	gasErr   error

	balances map[common.Address]*big.Int
	nonce    uint64
	estimate uint64

	sent          []*types.Transaction
	receiptStatus uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		handlers:      make(map[string]callHandler),
		balances:      make(map[common.Address]*big.Int),
		estimate:      100_000,
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func handlerKey(addr common.Address, method string) string {
	return strings.ToLower(addr.Hex()) + "." + method
}

func (f *fakeBackend) on(addr common.Address, method string, h callHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[handlerKey(addr, method)] = h
}

func (f *fakeBackend) returns(addr common.Address, method string, vals ...any) {
	f.on(addr, method, func([]any) ([]any, error) { return vals, nil })
}

func (f *fakeBackend) fails(addr common.Address, method string) {
	f.on(addr, method, func([]any) ([]any, error) { return nil, errors.New("execution reverted") })
}

func lookupMethod(selector []byte) (*abi.Method, error) {
	for _, a := range []abi.ABI{comptrollerABI, cTokenABI, erc20ABI, oracleABI} {
		if m, err := a.MethodById(selector); err == nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown selector %x", selector)
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 || msg.To == nil {
		return nil, errors.New("bad call")
	}
	method, err := lookupMethod(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	h, ok := f.handlers[handlerKey(*msg.To, method.Name)]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler for %s.%s", msg.To.Hex(), method.Name)
	}
	out, err := h(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gasErr != nil {
		return nil, f.gasErr
	}
	return f.gasPrice, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[account]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			return &types.Receipt{
				Status:      f.receiptStatus,
				TxHash:      hash,
				GasUsed:     90_000,
				BlockNumber: big.NewInt(42),
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(42)}, nil
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1337), nil
}

var _ Backend = (*fakeBackend)(nil)

package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

var (
	wallet   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	borrower = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	usdtMkt  = domain.MarketConfig{Symbol: "USDT", Market: common.HexToAddress("0x11"), Underlying: common.HexToAddress("0xa1"), Decimals: 8, UnderlyingDecimals: 6}
	ethMkt   = domain.MarketConfig{Symbol: "ETH", Market: common.HexToAddress("0x12"), Underlying: domain.NativeAsset, Decimals: 8, UnderlyingDecimals: 18}
)

type fakeReader struct {
	gasPrice  *big.Int
	gasErr    error
	tokenBal  *big.Int
	allowance *big.Int
	nativeBal *big.Int
}

func (f *fakeReader) GasPrice(context.Context) (*big.Int, error) { return f.gasPrice, f.gasErr }
func (f *fakeReader) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return f.tokenBal, nil
}
func (f *fakeReader) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return f.allowance, nil
}
func (f *fakeReader) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return f.nativeBal, nil
}

type fakePrices struct {
	price float64
	err   error
}

func (f fakePrices) Price(context.Context, domain.MarketConfig) (float64, error) {
	return f.price, f.err
}

type sentTx struct {
	kind  string
	to    common.Address
	value *big.Int
	repay *big.Int
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []sentTx
	status   map[string]uint64
	sendErr  error
	waitErr  error
	nonce    uint64
	canceled bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{status: map[string]uint64{
		"approve":   types.ReceiptStatusSuccessful,
		"liquidate": types.ReceiptStatusSuccessful,
	}}
}

func (f *fakeSender) From() common.Address { return wallet }

func (f *fakeSender) record(ctx context.Context, s sentTx) *types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		f.canceled = true
	}
	f.sent = append(f.sent, s)
	f.nonce++
	return types.NewTx(&types.LegacyTx{Nonce: f.nonce, To: &s.to, Value: s.value, Data: []byte(s.kind)})
}

func (f *fakeSender) Approve(ctx context.Context, token, _ common.Address, amount, _ *big.Int) (*types.Transaction, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.record(ctx, sentTx{kind: "approve", to: token, value: new(big.Int), repay: amount}), nil
}

func (f *fakeSender) LiquidateBorrow(ctx context.Context, marketAddr, _ common.Address, repay *big.Int, _ common.Address, value, _ *big.Int) (*types.Transaction, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if value == nil {
		value = new(big.Int)
	}
	return f.record(ctx, sentTx{kind: "liquidate", to: marketAddr, value: value, repay: repay}), nil
}

func (f *fakeSender) WaitMined(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &types.Receipt{
		Status:      f.status[string(tx.Data())],
		TxHash:      tx.Hash(),
		GasUsed:     210_000,
		BlockNumber: big.NewInt(77),
	}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type memLedger struct {
	records []domain.LiquidationRecord
}

func (m *memLedger) Append(rec domain.LiquidationRecord) { m.records = append(m.records, rec) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func usdtOpportunity() domain.LiquidationOpportunity {
	return domain.LiquidationOpportunity{
		Borrower:             borrower,
		Borrow:               domain.BorrowPosition{Market: usdtMkt, Raw: big.NewInt(200_000_000), Amount: 200, PriceUSD: 1, ValueUSD: 200},
		Collateral:           domain.CollateralPosition{Market: ethMkt, Raw: big.NewInt(1), Amount: 0.2, PriceUSD: 2000, ValueUSD: 400},
		RepayUSD:             100,
		ExpectedProfitUSD:    8,
		ShortfallUSD:         50,
		CloseFactor:          0.5,
		LiquidationIncentive: 0.08,
	}
}

func ethOpportunity() domain.LiquidationOpportunity {
	return domain.LiquidationOpportunity{
		Borrower:             borrower,
		Borrow:               domain.BorrowPosition{Market: ethMkt, Raw: ether(1), Amount: 1, PriceUSD: 2000, ValueUSD: 2000},
		Collateral:           domain.CollateralPosition{Market: usdtMkt, Raw: big.NewInt(1), Amount: 3000, PriceUSD: 1, ValueUSD: 3000},
		RepayUSD:             1000,
		ExpectedProfitUSD:    80,
		ShortfallUSD:         100,
		CloseFactor:          0.5,
		LiquidationIncentive: 0.08,
	}
}

func newTestExecutor(r *fakeReader, p fakePrices, s *fakeSender, l *memLedger, cfg Config) *Executor {
	if cfg.MaxGasPriceGwei == 0 {
		cfg.MaxGasPriceGwei = 50
	}
	return New(r, p, s, l, cfg, discardLogger())
}

func TestExecuteERC20Success(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(20), tokenBal: big.NewInt(1_000_000_000), allowance: big.NewInt(1_000_000_000)}
	s := newFakeSender()
	l := &memLedger{}

	res := newTestExecutor(r, fakePrices{price: 1}, s, l, Config{}).Execute(context.Background(), usdtOpportunity())

	require.True(t, res.Success, res.Reason)
	require.Len(t, s.sent, 1)
	assert.Equal(t, "liquidate", s.sent[0].kind)
	assert.Equal(t, "100000000", s.sent[0].repay.String())
	assert.Zero(t, s.sent[0].value.Sign())

	require.Len(t, l.records, 1)
	rec := l.records[0]
	assert.Equal(t, res.Record.ID, rec.ID)
	assert.Equal(t, "USDT", rec.RepaySymbol)
	assert.Equal(t, "ETH", rec.SeizeSymbol)
	assert.InDelta(t, 100.0, rec.RepayAmount, 1e-9)
	assert.InDelta(t, 8.0, rec.ProfitUSD, 1e-9)
	assert.Equal(t, uint64(210_000), rec.GasUsed)
	assert.Equal(t, uint64(77), rec.BlockNumber)
	assert.Equal(t, res.TxHash, rec.TxHash)
}

func TestExecuteApprovesWhenAllowanceShort(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(20), tokenBal: big.NewInt(1_000_000_000), allowance: big.NewInt(5)}
	s := newFakeSender()

	res := newTestExecutor(r, fakePrices{price: 1}, s, &memLedger{}, Config{}).Execute(context.Background(), usdtOpportunity())

	require.True(t, res.Success, res.Reason)
	require.Len(t, s.sent, 2)
	assert.Equal(t, "approve", s.sent[0].kind)
	assert.Equal(t, usdtMkt.Underlying, s.sent[0].to)
	assert.Equal(t, "100000000", s.sent[0].repay.String())
	assert.Equal(t, "liquidate", s.sent[1].kind)
}

func TestExecuteApprovalRevertAborts(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(20), tokenBal: big.NewInt(1_000_000_000), allowance: big.NewInt(0)}
	s := newFakeSender()
	s.status["approve"] = types.ReceiptStatusFailed

	res := newTestExecutor(r, fakePrices{price: 1}, s, &memLedger{}, Config{}).Execute(context.Background(), usdtOpportunity())

	assert.False(t, res.Success)
	assert.Equal(t, ReasonApprovalFailed, res.Reason)
	assert.Equal(t, 1, s.count())
}

func TestExecuteNeverSubmitsAboveGasCap(t *testing.T) {
	for _, opp := range []domain.LiquidationOpportunity{usdtOpportunity(), ethOpportunity()} {
		r := &fakeReader{gasPrice: gwei(51), tokenBal: ether(100), allowance: big.NewInt(0), nativeBal: ether(100)}
		s := newFakeSender()

		res := newTestExecutor(r, fakePrices{price: 1}, s, &memLedger{}, Config{MaxGasPriceGwei: 50}).Execute(context.Background(), opp)

		assert.False(t, res.Success)
		assert.Equal(t, ReasonGasPriceTooHigh, res.Reason)
		assert.Zero(t, s.count())
	}
}

func TestExecuteGasAtCapIsAllowed(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(50), tokenBal: big.NewInt(1_000_000_000), allowance: big.NewInt(1_000_000_000)}
	s := newFakeSender()

	res := newTestExecutor(r, fakePrices{price: 1}, s, &memLedger{}, Config{MaxGasPriceGwei: 50}).Execute(context.Background(), usdtOpportunity())
	assert.True(t, res.Success, res.Reason)
}

func TestExecuteNativeInsufficientBalance(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(10), nativeBal: big.NewInt(1_000)}
	s := newFakeSender()
	l := &memLedger{}

	res := newTestExecutor(r, fakePrices{price: 2000}, s, l, Config{}).Execute(context.Background(), ethOpportunity())

	assert.Equal(t, domain.ExecutionResult{Success: false, Reason: "insufficient balance"}, res)
	assert.Zero(t, s.count())
	assert.Empty(t, l.records)
}

func TestExecuteNativeAttachesValue(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(10), nativeBal: ether(10)}
	s := newFakeSender()

	res := newTestExecutor(r, fakePrices{price: 2000}, s, &memLedger{}, Config{}).Execute(context.Background(), ethOpportunity())

	require.True(t, res.Success, res.Reason)
	require.Len(t, s.sent, 1)
	assert.Equal(t, "500000000000000000", s.sent[0].repay.String())
	assert.Equal(t, s.sent[0].repay.String(), s.sent[0].value.String())
}

func TestExecuteERC20InsufficientBalance(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(10), tokenBal: big.NewInt(99_999_999), allowance: big.NewInt(0)}
	s := newFakeSender()

	res := newTestExecutor(r, fakePrices{price: 1}, s, &memLedger{}, Config{}).Execute(context.Background(), usdtOpportunity())

	assert.Equal(t, ReasonInsufficientBalance, res.Reason)
	assert.Zero(t, s.count())
}

func TestExecutePriceUnavailable(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(10)}
	s := newFakeSender()

	res := newTestExecutor(r, fakePrices{err: errors.New("oracle reverted")}, s, &memLedger{}, Config{}).Execute(context.Background(), usdtOpportunity())
	assert.Equal(t, ReasonPriceUnavailable, res.Reason)

	res = newTestExecutor(r, fakePrices{price: 0}, s, &memLedger{}, Config{}).Execute(context.Background(), usdtOpportunity())
	assert.Equal(t, ReasonPriceUnavailable, res.Reason)
	assert.Zero(t, s.count())
}

func TestExecuteReverted(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(10), tokenBal: big.NewInt(1_000_000_000), allowance: big.NewInt(1_000_000_000)}
	s := newFakeSender()
	s.status["liquidate"] = types.ReceiptStatusFailed
	l := &memLedger{}

	res := newTestExecutor(r, fakePrices{price: 1}, s, l, Config{}).Execute(context.Background(), usdtOpportunity())

	assert.False(t, res.Success)
	assert.Equal(t, "transaction reverted", res.Reason)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, 1, s.count())
	assert.Empty(t, l.records)
}

func TestExecuteClassifiesSubmitError(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(10), tokenBal: big.NewInt(1_000_000_000), allowance: big.NewInt(1_000_000_000)}
	s := newFakeSender()
	s.sendErr = errors.New("chain: liquidate borrow: send: insufficient funds for gas * price + value")

	res := newTestExecutor(r, fakePrices{price: 1}, s, &memLedger{}, Config{}).Execute(context.Background(), usdtOpportunity())
	assert.Equal(t, ReasonInsufficientFunds, res.Reason)
}

func TestExecuteDryRunSendsNothing(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(10), tokenBal: big.NewInt(1_000_000_000), allowance: big.NewInt(0)}
	s := newFakeSender()

	res := newTestExecutor(r, fakePrices{price: 1}, s, &memLedger{}, Config{DryRun: true}).Execute(context.Background(), usdtOpportunity())

	assert.Equal(t, ReasonDryRun, res.Reason)
	assert.Zero(t, s.count())
}

func TestExecuteSubmissionIgnoresCancellation(t *testing.T) {
	r := &fakeReader{gasPrice: gwei(10), nativeBal: ether(10)}
	s := newFakeSender()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestExecutor(r, fakePrices{price: 2000}, s, &memLedger{}, Config{}).Execute(ctx, ethOpportunity())

	assert.True(t, res.Success, res.Reason)
	assert.False(t, s.canceled)
}

func TestRepayAmountCappedByCloseFactor(t *testing.T) {
	opp := usdtOpportunity()
	// Price dropped since evaluation: 100 USD now buys 125 USDT, above the
	// 100 USDT close-factor limit.
	got := RepayAmount(opp, 0.8)
	assert.Equal(t, "100000000", got.String())

	got = RepayAmount(opp, 2)
	assert.Equal(t, "50000000", got.String())
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"nonce too low: next nonce 5, tx nonce 4":           ReasonNonceConflict,
		"replacement transaction underpriced":               ReasonUnderpriced,
		"execution reverted: LIQUIDATE_SEIZE_TOO_MUCH":      ReasonExecutionReverted,
		"chain: wait mined 0x01: context deadline exceeded": ReasonConfirmationTimeout,
		"Insufficient Funds For Gas":                        ReasonInsufficientFunds,
	}
	for msg, want := range cases {
		assert.Equal(t, want, Classify(errors.New(msg)), msg)
	}
	assert.Equal(t, ReasonConfirmationTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, "submission failed: dial tcp: connection refused", Classify(errors.New("dial tcp: connection refused")))
	assert.Empty(t, Classify(nil))
}

func TestGweiToWei(t *testing.T) {
	assert.Equal(t, "1500000000", GweiToWei(1.5).String())
	assert.Equal(t, "50000000000", GweiToWei(50).String())
}

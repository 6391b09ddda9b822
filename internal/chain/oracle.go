package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// OracleKind selects the price oracle interface.
type OracleKind string

const (
	// OracleCompound is the Compound PriceOracle: getUnderlyingPrice(cToken)
	// scaled by 1e(36 - underlyingDecimals).
	OracleCompound OracleKind = "compound"
	// OracleSimple is getPrice(asset) scaled by 1e18.
	OracleSimple OracleKind = "simple"
)

// Oracle reads USD prices from the protocol's price oracle.
type Oracle struct {
	backend Backend
	address common.Address
	kind    OracleKind
}

// NewOracle creates an Oracle. An empty kind means OracleCompound.
func NewOracle(backend Backend, address common.Address, kind OracleKind) (*Oracle, error) {
	switch kind {
	case "":
		kind = OracleCompound
	case OracleCompound, OracleSimple:
	default:
		return nil, fmt.Errorf("chain: unknown oracle kind %q", kind)
	}
	return &Oracle{backend: backend, address: address, kind: kind}, nil
}

// UnderlyingPrice returns the USD price of one whole unit of the market's
// underlying asset. A zero price is reported as domain.ErrOracleOrProtocol.
func (o *Oracle) UnderlyingPrice(ctx context.Context, m domain.MarketConfig) (float64, error) {
	var (
		mantissa *big.Int
		err      error
		scale    int32
	)
	switch o.kind {
	case OracleSimple:
		mantissa, err = callUint256(ctx, o.backend, oracleABI, o.address, "getPrice", m.Underlying)
		scale = 18
	default:
		mantissa, err = callUint256(ctx, o.backend, oracleABI, o.address, "getUnderlyingPrice", m.Market)
		scale = 36 - int32(m.UnderlyingDecimals)
	}
	if err != nil {
		return 0, fmt.Errorf("chain: oracle price %s: %w", m.Symbol, err)
	}
	if mantissa.Sign() == 0 {
		return 0, fmt.Errorf("chain: oracle price %s: zero price: %w", m.Symbol, domain.ErrOracleOrProtocol)
	}
	return decimal.NewFromBigInt(mantissa, -scale).InexactFloat64(), nil
}

package market

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToHuman converts a raw integer amount with the given decimals into human
// units.
func ToHuman(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).InexactFloat64()
}

// ToRaw converts a human amount into raw integer units, truncating any
// precision below one unit.
func ToRaw(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// MantissaToFloat converts an 18-decimal fixed point mantissa to a float.
func MantissaToFloat(mantissa *big.Int) float64 {
	return ToHuman(mantissa, 18)
}

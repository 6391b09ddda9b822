package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the sentinel underlying address used for markets whose
// underlying is the chain's native coin (e.g. cETH). Such markets have no
// ERC-20 token to approve and are repaid by attaching value to the call.
var NativeAsset = common.Address{}

// MarketConfig describes one monitored lending market. It is created at
// startup from configuration and never mutated afterwards.
type MarketConfig struct {
	Symbol     string         // display symbol of the underlying, e.g. "USDT"
	Market     common.Address // cToken / market contract
	Underlying common.Address // NativeAsset for the native coin
	// Decimals is the decimals of the market token itself (cTokens use 8).
	Decimals uint8
	// UnderlyingDecimals is the decimals of the underlying asset.
	UnderlyingDecimals uint8
}

// IsNative reports whether the market's underlying is the native coin.
func (m MarketConfig) IsNative() bool {
	return m.Underlying == NativeAsset
}

// Key returns the lower-cased hex market address.
func (m MarketConfig) Key() string {
	return strings.ToLower(m.Market.Hex())
}

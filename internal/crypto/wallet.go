package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Wallet is the liquidator's signing identity.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// OpenWallet loads the key described by cfg.
func OpenWallet(cfg KeyConfig) (*Wallet, error) {
	pk, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	return &Wallet{key: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address returns the wallet address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// TransactOpts returns signing options bound to chainID.
func (w *Wallet) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("crypto: transactor: %w", err)
	}
	return opts, nil
}

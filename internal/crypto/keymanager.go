// Package crypto loads the liquidator wallet key, either raw from
// configuration or from a password-encrypted key file, and derives the
// transaction signer used by the chain transactor.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFileVersion    = 2
	defaultIterations = 480_000
	minIterations     = 100_000
	saltLen           = 16
)

// keyFile is the on-disk format written by EncryptKey. The address is
// readable without the password and authenticated as GCM additional data,
// so a file whose address was edited fails to decrypt.
type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig says where the wallet key comes from. A raw key wins.
type KeyConfig struct {
	// RawPrivateKey is hex, with or without 0x.
	RawPrivateKey string
	// EncryptedKeyPath is a file produced by EncryptKey.
	EncryptedKeyPath string
	KeyPassword      string
}

// EncryptKey seals a hex secp256k1 key under password with
// PBKDF2-HMAC-SHA256 and AES-256-GCM. It returns the key file contents and
// the wallet address.
func EncryptKey(privateKeyHex, password string) ([]byte, common.Address, error) {
	if password == "" {
		return nil, common.Address{}, errors.New("crypto: password must not be empty")
	}
	pk, err := parseKey(privateKeyHex)
	if err != nil {
		return nil, common.Address{}, err
	}
	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, common.Address{}, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := newGCM(password, salt, defaultIterations)
	if err != nil {
		return nil, common.Address{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, common.Address{}, fmt.Errorf("crypto: nonce: %w", err)
	}

	b64 := base64.StdEncoding.EncodeToString
	data, err := json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Address:    addr.Hex(),
		Iterations: defaultIterations,
		Salt:       b64(salt),
		Nonce:      b64(nonce),
		Ciphertext: b64(gcm.Seal(nil, nonce, ethcrypto.FromECDSA(pk), addr.Bytes())),
	}, "", "  ")
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("crypto: encode key file: %w", err)
	}
	return data, addr, nil
}

// DecryptKey opens a key file and checks the key matches the recorded
// address.
func DecryptKey(data []byte, password string) (*ecdsa.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}
	if !common.IsHexAddress(kf.Address) {
		return nil, fmt.Errorf("crypto: key file address %q is invalid", kf.Address)
	}
	if kf.Iterations < minIterations {
		return nil, fmt.Errorf("crypto: key file iterations %d below minimum %d", kf.Iterations, minIterations)
	}

	var salt, nonce, sealed []byte
	for _, f := range []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"salt", kf.Salt, &salt},
		{"nonce", kf.Nonce, &nonce},
		{"ciphertext", kf.Ciphertext, &sealed},
	} {
		b, err := base64.StdEncoding.DecodeString(f.in)
		if err != nil {
			return nil, fmt.Errorf("crypto: decode %s: %w", f.name, err)
		}
		*f.out = b
	}

	gcm, err := newGCM(password, salt, kf.Iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce is %d bytes, want %d", len(nonce), gcm.NonceSize())
	}
	addr := common.HexToAddress(kf.Address)
	raw, err := gcm.Open(nil, nonce, sealed, addr.Bytes())
	if err != nil {
		return nil, errors.New("crypto: wrong password or corrupted key file")
	}
	pk, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypted key: %w", err)
	}
	if got := ethcrypto.PubkeyToAddress(pk.PublicKey); got != addr {
		return nil, fmt.Errorf("crypto: key belongs to %s, file says %s", got.Hex(), addr.Hex())
	}
	return pk, nil
}

func newGCM(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}

func parseKey(s string) (*ecdsa.PrivateKey, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return pk, nil
}

// LoadKey resolves the signing key from cfg.
func LoadKey(cfg KeyConfig) (*ecdsa.PrivateKey, error) {
	switch {
	case cfg.RawPrivateKey != "":
		return parseKey(cfg.RawPrivateKey)
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	default:
		return nil, errors.New("crypto: no private key source configured (set private_key or encrypted_key_path)")
	}
}

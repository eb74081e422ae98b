// ==============================================================================
// KEYSTORE SIGNER - internal/chain/signer.go
// ==============================================================================
package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"cfdclient/pkg/errors"
)

// Signer holds the local account key and produces personal-sign signatures
// and signed transactions. It stands in for the browser wallet's key custody.
type Signer struct {
	mu      sync.RWMutex
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner loads a hex-encoded private key from the given file.
func NewSigner(keystoreFile string) (*Signer, error) {
	if keystoreFile == "" {
		return nil, errors.ErrNoProvider
	}
	key, err := crypto.LoadECDSA(keystoreFile)
	if err != nil {
		return nil, errors.Wrap(err, "load keystore")
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Reload re-reads the keystore file and reports whether the account changed.
func (s *Signer) Reload(keystoreFile string) (bool, error) {
	key, err := crypto.LoadECDSA(keystoreFile)
	if err != nil {
		return false, errors.Wrap(err, "reload keystore")
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := address != s.address
	s.key = key
	s.address = address
	return changed, nil
}

// Address returns the signer's account in checksummed form.
func (s *Signer) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address.Hex()
}

// Owns reports whether the signer controls the given address.
func (s *Signer) Owns(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.EqualFold(s.address.Hex(), address)
}

// SignPersonal signs a message with the EIP-191 personal-sign envelope:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
// The recovery byte is shifted to 27/28 as wallets do.
func (s *Signer) SignPersonal(address, message string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !strings.EqualFold(s.address.Hex(), address) {
		return "", errors.Validationf("address %s not held by signer", address)
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	digest := crypto.Keccak256([]byte(prefixed))

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", errors.Wrap(err, "sign message")
	}
	sig[64] += 27

	return hexutil.Encode(sig), nil
}

// SignTx signs a legacy transaction with EIP-155 replay protection.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	return signed, nil
}

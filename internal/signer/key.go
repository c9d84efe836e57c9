// Package signer loads signing identities injected through the environment.
// Keys are never read from configuration files.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Key is a secp256k1 signing identity shared by EVM and TRON networks.
type Key struct {
	private *ecdsa.PrivateKey
	address common.Address
}

// FromEnv reads a hex private key from the environment variable envName.
func FromEnv(envName string) (*Key, error) {
	value, ok := os.LookupEnv(envName)
	if !ok || strings.TrimSpace(value) == "" {
		return nil, &domain.ConfigurationError{
			Kind:    domain.MissingSigner,
			Subject: envName,
			Err:     fmt.Errorf("environment variable is not set"),
		}
	}

	key, err := FromHex(value)
	if err != nil {
		return nil, &domain.ConfigurationError{Kind: domain.MissingSigner, Subject: envName, Err: err}
	}

	return key, nil
}

// FromHex parses a hex private key with or without 0x prefix.
func FromHex(privateKeyHex string) (*Key, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return &Key{
		private: privateKey,
		address: crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

func (k *Key) Address() common.Address {
	return k.address
}

// Transactor returns EVM transaction options bound to chainID.
func (k *Key) Transactor(chainID *big.Int) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(k.private, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return auth, nil
}

// SignHash returns the 65-byte [R || S || V] signature of a 32-byte digest,
// with V in {0, 1}.
func (k *Key) SignHash(digest []byte) ([]byte, error) {
	signature, err := crypto.Sign(digest, k.private)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return signature, nil
}

func (k *Key) String() string {
	return k.address.Hex()
}

// LogValue keeps the private key out of structured logs.
func (k *Key) LogValue() slog.Value {
	return slog.StringValue(k.address.Hex())
}

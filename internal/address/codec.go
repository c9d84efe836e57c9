// Package address converts between the 20-byte account form used everywhere
// inside the deployer and the text encodings of each chain class.
package address

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

const (
	tronPrefix      byte = 0x41
	tronChecksumLen      = 4
	tronDecodedLen       = 1 + common.AddressLength + tronChecksumLen
)

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidChecksum = errors.New("invalid address checksum")
)

// Codec parses and renders addresses for one chain class.
type Codec interface {
	Parse(value string) (common.Address, error)
	Format(addr common.Address) string
}

type (
	EVMCodec  struct{}
	TronCodec struct{}
)

// ForChainClass returns the codec used by networks of the given class.
func ForChainClass(class configs.ChainClass) (Codec, error) {
	switch class {
	case configs.ChainClassEVM:
		return EVMCodec{}, nil
	case configs.ChainClassTron:
		return TronCodec{}, nil
	default:
		return nil, fmt.Errorf("no address codec for chain class '%s'", class)
	}
}

func (EVMCodec) Parse(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: '%s' is not a hex address", ErrInvalidAddress, value)
	}

	// All-lower and all-upper hex carry no checksum, mixed case must be EIP-55.
	digits := strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	if digits != strings.ToLower(digits) && digits != strings.ToUpper(digits) {
		mixed, err := common.NewMixedcaseAddressFromString("0x" + digits)
		if err != nil || !mixed.ValidChecksum() {
			return common.Address{}, fmt.Errorf("%w: '%s'", ErrInvalidChecksum, value)
		}
	}

	return common.HexToAddress(value), nil
}

func (EVMCodec) Format(addr common.Address) string {
	return addr.Hex()
}

// Parse accepts base58check ("T...") or 41-prefixed hex addresses.
func (TronCodec) Parse(value string) (common.Address, error) {
	value = strings.TrimSpace(value)

	if len(value) == 2*(1+common.AddressLength) && strings.HasPrefix(value, "41") {
		raw, err := hex.DecodeString(value)
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: '%s': %w", ErrInvalidAddress, value, err)
		}
		return common.BytesToAddress(raw[1:]), nil
	}

	decoded, err := base58.Decode(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: '%s': %w", ErrInvalidAddress, value, err)
	}
	if len(decoded) != tronDecodedLen || decoded[0] != tronPrefix {
		return common.Address{}, fmt.Errorf("%w: '%s' is not a tron address", ErrInvalidAddress, value)
	}

	payload := decoded[:len(decoded)-tronChecksumLen]
	if !bytes.Equal(checksum(payload), decoded[len(decoded)-tronChecksumLen:]) {
		return common.Address{}, fmt.Errorf("%w: '%s'", ErrInvalidChecksum, value)
	}

	return common.BytesToAddress(payload[1:]), nil
}

func (TronCodec) Format(addr common.Address) string {
	payload := append([]byte{tronPrefix}, addr.Bytes()...)
	return base58.Encode(append(payload, checksum(payload)...))
}

// TronHex renders addr in the 41-prefixed hex form the TronGrid API expects
// when "visible" is false.
func TronHex(addr common.Address) string {
	return hex.EncodeToString(append([]byte{tronPrefix}, addr.Bytes()...))
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:tronChecksumLen]
}

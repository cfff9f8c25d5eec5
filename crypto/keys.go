package crypto

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the different types of human-readable address prefixes.
type AddressPrefix string

const (
	// AccountPrefix tags externally owned staker accounts.
	AccountPrefix AddressPrefix = "yeti"
	// ModulePrefix tags accounts owned by native modules such as the farm.
	ModulePrefix AddressPrefix = "yetimod"
)

// AddressLength is the byte length of every address.
const AddressLength = 20

// Address represents a 20-byte address with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

// MustNewAddress is NewAddress for callers holding fixed-size arrays.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	return NewAddress(prefix, b)
}

// ModuleAddress derives the deterministic account of a native module from its
// name: the last 20 bytes of Keccak256(name).
func ModuleAddress(name string) Address {
	hash := crypto.Keccak256([]byte(name))
	return NewAddress(ModulePrefix, hash[len(hash)-AddressLength:])
}

// LabelAddress derives a deterministic account address from a free-form label.
// It is used by tooling and tests that need stable, human-meaningful accounts.
func LabelAddress(label string) Address {
	hash := crypto.Keccak256([]byte("account:" + label))
	return NewAddress(AccountPrefix, hash[len(hash)-AddressLength:])
}

func (a Address) String() string {
	if len(a.bytes) == 0 {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// Key returns the raw bytes as a string suitable for map keys. The prefix is
// not part of the key: the same 20 bytes identify the same account.
func (a Address) Key() string {
	return string(a.bytes)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return len(a.bytes) == 0
}

// Equal compares the raw address bytes.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

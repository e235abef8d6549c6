package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a 20-byte chain identifier canonicalized to lowercase hex so
// it is safe to use as a map key regardless of the casing a caller supplies.
type Address string

// NewAddress canonicalizes a go-ethereum address into an Address map key.
func NewAddress(a common.Address) Address {
	return Address(strings.ToLower(a.Hex()))
}

// ParseAddress canonicalizes an arbitrary hex string (with or without the
// checksum casing EIP-55 uses) into an Address.
func ParseAddress(hex string) Address {
	return NewAddress(common.HexToAddress(hex))
}

// Common converts back to the go-ethereum representation for chain calls.
func (a Address) Common() common.Address {
	return common.HexToAddress(string(a))
}

func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is the zero address.
func (a Address) IsZero() bool {
	return a.Common() == (common.Address{})
}

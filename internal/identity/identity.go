// Package identity defines the typed caller identity used across ArcPay.
//
// Identities are Ethereum-style addresses. The zero address is never a
// valid participant: constructors reject it explicitly rather than letting
// a zero value masquerade as a real agent.
package identity

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAddress = errors.New("identity: invalid address")
	ErrZeroAddress    = errors.New("identity: zero address")
)

// Address is an agent identity. The zero value is the "no identity"
// sentinel and is reported by IsZero; it never validates as a participant.
type Address struct {
	a common.Address
}

// Zero is the absent identity.
var Zero = Address{}

// Parse validates and normalizes a 0x-prefixed hex address.
// The zero address parses successfully; callers that require a real
// participant should additionally check IsZero (or use ParseParticipant).
func Parse(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Zero, ErrInvalidAddress
	}
	return Address{a: common.HexToAddress(s)}, nil
}

// ParseParticipant parses an address and rejects the zero address.
func ParseParticipant(s string) (Address, error) {
	addr, err := Parse(s)
	if err != nil {
		return Zero, err
	}
	if addr.IsZero() {
		return Zero, ErrZeroAddress
	}
	return addr, nil
}

// FromCommon wraps a go-ethereum address, for callers that already hold
// one (key derivation, event logs). No zero check; use IsZero where a
// real participant is required.
func FromCommon(a common.Address) Address {
	return Address{a: a}
}

// MustParse parses an address and panics on failure. For tests and constants.
func MustParse(s string) Address {
	addr, err := Parse(s)
	if err != nil {
		panic("identity: " + s + " is not a valid address")
	}
	return addr
}

// IsZero reports whether this is the absent identity.
func (a Address) IsZero() bool {
	return a.a == (common.Address{})
}

// String returns the lowercase 0x-prefixed hex form. This is the canonical
// storage and wire representation.
func (a Address) String() string {
	return strings.ToLower(a.a.Hex())
}

// Common returns the underlying go-ethereum address for on-chain calls.
func (a Address) Common() common.Address {
	return a.a
}

// MarshalText implements encoding.TextMarshaler (JSON object keys and values).
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	addr, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

package domain

import (
	"encoding/hex"
	"strings"

	dErrors "baseproof/pkg/domain-errors"
)

// AddressLength is the size in bytes of a registry identity.
const AddressLength = 20

// Address identifies an actor in the registry (issuer, owner, co-certifier).
// The zero value is the redaction sentinel returned for privacy-gated reads
// and is never a valid actor.
//
// Usage: construct via ParseAddress at trust boundaries; direct casting
// bypasses validation.
type Address [AddressLength]byte

// ZeroAddress is the redaction sentinel.
var ZeroAddress Address

// ParseAddress constructs an Address from its canonical text form,
// "0x" followed by 40 hex digits. Case is not significant.
//
// Errors: returns CodeInvalidInput when the value is empty, mis-sized, or
// not hex; no other errors are expected.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	raw, ok := strings.CutPrefix(s, "0x")
	if !ok {
		raw, ok = strings.CutPrefix(s, "0X")
	}
	if !ok {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must have 0x prefix")
	}
	if len(raw) != AddressLength*2 {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must be 20 bytes")
	}
	var a Address
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must be hex encoded")
	}
	return a, nil
}

// MustParseAddress is ParseAddress for static inputs; panics on error.
// Intended for tests and configuration defaults only.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether the address is the zero (redaction) value.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the canonical lowercase hex form with 0x prefix.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler so addresses serialize as
// hex strings in JSON payloads and events.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

package domain

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "baseproof/pkg/domain-errors"
)

// HashLength is the size in bytes of a document fingerprint.
const HashLength = 32

// Hash is a content fingerprint uniquely identifying a document's bytes
// without revealing them. The registry never sees file content; callers
// compute the fingerprint client-side and supply it at certification.
type Hash [HashLength]byte

// ParseHash constructs a Hash from its canonical text form,
// "0x" followed by 64 hex digits.
//
// Errors: returns CodeInvalidInput when the value is empty, mis-sized, or
// not hex.
func ParseHash(s string) (Hash, error) {
	if s == "" {
		return Hash{}, dErrors.New(dErrors.CodeInvalidInput, "document hash cannot be empty")
	}
	raw, ok := strings.CutPrefix(s, "0x")
	if !ok {
		raw, ok = strings.CutPrefix(s, "0X")
	}
	if !ok {
		return Hash{}, dErrors.New(dErrors.CodeInvalidInput, "document hash must have 0x prefix")
	}
	if len(raw) != HashLength*2 {
		return Hash{}, dErrors.New(dErrors.CodeInvalidInput, "document hash must be 32 bytes")
	}
	var h Hash
	if _, err := hex.Decode(h[:], []byte(raw)); err != nil {
		return Hash{}, dErrors.New(dErrors.CodeInvalidInput, "document hash must be hex encoded")
	}
	return h, nil
}

// HashBytes fingerprints raw content with legacy Keccak-256, matching the
// digest clients compute before submitting a certification request.
func HashBytes(content []byte) Hash {
	d := sha3.NewLegacyKeccak256()
	d.Write(content)
	var h Hash
	d.Sum(h[:0])
	return h
}

// IsZero reports whether the hash is unset.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the canonical lowercase hex form with 0x prefix.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Package domain defines the typed identifiers and value objects shared by
// every registry module. Keeping them in one package prevents accidental
// mixing of certificate ids, amounts, and raw integers at compile time.
package domain

import (
	"strconv"

	dErrors "baseproof/pkg/domain-errors"
)

// CertificateID identifies a certificate. IDs are allocated by the store,
// start at 1, increase monotonically, and are never reused. Zero means
// "no certificate".
type CertificateID uint64

// ParseCertificateID constructs a CertificateID from external input.
//
// Errors: returns CodeInvalidInput when the value is not a positive integer.
func ParseCertificateID(s string) (CertificateID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "certificate id must be a positive integer")
	}
	return CertificateID(n), nil
}

// IsZero reports whether the id is unset.
func (id CertificateID) IsZero() bool {
	return id == 0
}

// String returns the decimal representation.
func (id CertificateID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Amount is a payment or fee in the registry's base unit. Amounts are
// integral; the default single-certification fee is 10^15 base units.
type Amount uint64

// ParseAmount constructs an Amount from external input.
func ParseAmount(s string) (Amount, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount must be a non-negative integer")
	}
	return Amount(n), nil
}

// String returns the decimal representation.
func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

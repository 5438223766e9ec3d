// Package access evaluates whether an acting identity may perform an
// operation on a certificate. Pure relationship checks; callers translate a
// false into CodeNotAuthorized.
package access

import (
	"slices"

	"baseproof/internal/certificate/models"
	domain "baseproof/pkg/domain"
)

// CanTransfer reports whether actor may transfer the certificate.
// Only the current owner may, and never once revoked.
func CanTransfer(actor domain.Address, cert *models.Certificate) bool {
	return !cert.IsRevoked && actor == cert.Owner
}

// CanRevoke reports whether actor may revoke the certificate. Owner or
// issuer may; an already-revoked certificate can never be revoked again, so
// the check fails unconditionally in that state.
func CanRevoke(actor domain.Address, cert *models.Certificate) bool {
	if cert.IsRevoked {
		return false
	}
	return actor == cert.Owner || actor == cert.Issuer
}

// CanViewPrivate reports whether actor may read a private certificate's
// descriptive content: owner, issuer, or an accepted co-certifier.
// Pending co-certifiers have not vouched yet and gain nothing.
func CanViewPrivate(actor domain.Address, cert *models.Certificate) bool {
	if actor.IsZero() {
		return false
	}
	if actor == cert.Owner || actor == cert.Issuer {
		return true
	}
	return slices.Contains(cert.CoCertifiers, actor)
}

// CanManageCoCertifiers reports whether actor may invite co-certifiers.
func CanManageCoCertifiers(actor domain.Address, cert *models.Certificate) bool {
	return actor == cert.Owner || actor == cert.Issuer
}

package models

import (
	"time"

	domain "baseproof/pkg/domain"
)

// TransferRecord is one completed ownership change. Records are append-only
// and ordered by occurrence.
type TransferRecord struct {
	From domain.Address `json:"from"`
	To   domain.Address `json:"to"`
	At   time.Time      `json:"at"`
}

// PlatformStats are the registry-wide aggregates, maintained incrementally
// in the same atomic unit as the triggering mutation. They always equal the
// counts derivable from a full scan.
type PlatformStats struct {
	TotalCertificates uint64 `json:"total_certificates"`
	TotalIssuers      uint64 `json:"total_issuers"`
	TotalRevoked      uint64 `json:"total_revoked"`
	TotalPublic       uint64 `json:"total_public"`
	TotalPrivate      uint64 `json:"total_private"`
}

// IssuerStats are the per-issuer aggregates. CertificateIDs is a bounded
// page of the issuer's certificates in issuance order.
type IssuerStats struct {
	TotalIssued      uint64                 `json:"total_issued"`
	TotalRevoked     uint64                 `json:"total_revoked"`
	TotalTransferred uint64                 `json:"total_transferred"`
	CertificateIDs   []domain.CertificateID `json:"certificate_ids"`
}

// VerificationResult is the answer to a fingerprint lookup. For a private
// certificate and an unauthorized caller only Exists, CertificateID,
// Timestamp, and IsRevoked are populated: certification time proves
// existence-at-time without revealing content.
type VerificationResult struct {
	Exists        bool                 `json:"exists"`
	CertificateID domain.CertificateID `json:"certificate_id,omitempty"`
	Issuer        domain.Address       `json:"issuer,omitzero"`
	CurrentOwner  domain.Address       `json:"current_owner,omitzero"`
	Title         string               `json:"title,omitempty"`
	Timestamp     time.Time            `json:"timestamp,omitzero"`
	IsRevoked     bool                 `json:"is_revoked"`
	IsPublic      bool                 `json:"is_public"`
}

// Package events defines the registry's durable audit trail. Every
// state-changing operation emits exactly one event; the envelope and payload
// field layouts are a compatibility contract for off-ledger consumers and
// must not change shape.
package events

import (
	"time"

	"baseproof/internal/certificate/models"
	domain "baseproof/pkg/domain"
)

// Action names the mutation an event records.
type Action string

const (
	ActionCertified           Action = "certificate.certified"
	ActionBulkCertified       Action = "certificate.bulk_certified"
	ActionTransferred         Action = "certificate.transferred"
	ActionRevoked             Action = "certificate.revoked"
	ActionCoCertifierAdded    Action = "certificate.co_certifier_added"
	ActionCoCertifierAccepted Action = "certificate.co_certifier_accepted"
	ActionRenewed             Action = "certificate.renewed"
)

// Event is the envelope shared by all registry events. ID is assigned at
// emission; Timestamp is the operation's request-scoped time in UTC.
type Event struct {
	ID            string               `json:"id"`
	Action        Action               `json:"action"`
	CertificateID domain.CertificateID `json:"certificate_id,omitempty"`
	Actor         domain.Address       `json:"actor"`
	Timestamp     int64                `json:"timestamp"`
	Payload       any                  `json:"payload"`
}

// CertifiedPayload carries enough to reconstruct an issuance off-ledger.
type CertifiedPayload struct {
	CertificateID domain.CertificateID `json:"certificate_id"`
	DocumentHash  domain.Hash          `json:"document_hash"`
	Issuer        domain.Address       `json:"issuer"`
	Title         string               `json:"title"`
	Category      domain.Category      `json:"category"`
	Timestamp     int64                `json:"timestamp"`
	IsPublic      bool                 `json:"is_public"`
}

// BulkCertifiedPayload is the single aggregate event for a batch; no
// per-item events are emitted so event volume stays bounded.
type BulkCertifiedPayload struct {
	Issuer         domain.Address         `json:"issuer"`
	CertificateIDs []domain.CertificateID `json:"certificate_ids"`
	Count          int                    `json:"count"`
	Timestamp      int64                  `json:"timestamp"`
}

type TransferredPayload struct {
	CertificateID domain.CertificateID `json:"certificate_id"`
	From          domain.Address       `json:"from"`
	To            domain.Address       `json:"to"`
	Timestamp     int64                `json:"timestamp"`
}

type RevokedPayload struct {
	CertificateID domain.CertificateID `json:"certificate_id"`
	RevokedBy     domain.Address       `json:"revoked_by"`
	ReasonRef     string               `json:"reason_ref"`
	Timestamp     int64                `json:"timestamp"`
}

type CoCertifierAddedPayload struct {
	CertificateID domain.CertificateID `json:"certificate_id"`
	CoCertifier   domain.Address       `json:"co_certifier"`
	AddedBy       domain.Address       `json:"added_by"`
}

type CoCertifierAcceptedPayload struct {
	CertificateID domain.CertificateID `json:"certificate_id"`
	CoCertifier   domain.Address       `json:"co_certifier"`
}

type RenewedPayload struct {
	CertificateID domain.CertificateID `json:"certificate_id"`
	ExpiresAt     int64                `json:"expires_at"`
	RenewalCount  uint32               `json:"renewal_count"`
	Timestamp     int64                `json:"timestamp"`
}

// NewCertified builds the issuance event for a stored certificate.
func NewCertified(cert *models.Certificate) Event {
	ts := cert.CertifiedAt.Unix()
	return Event{
		Action:        ActionCertified,
		CertificateID: cert.ID,
		Actor:         cert.Issuer,
		Timestamp:     ts,
		Payload: CertifiedPayload{
			CertificateID: cert.ID,
			DocumentHash:  cert.DocumentHash,
			Issuer:        cert.Issuer,
			Title:         cert.Title,
			Category:      cert.Category,
			Timestamp:     ts,
			IsPublic:      cert.IsPublic,
		},
	}
}

// NewBulkCertified builds the aggregate event for a committed batch.
func NewBulkCertified(issuer domain.Address, ids []domain.CertificateID, at time.Time) Event {
	return Event{
		Action:    ActionBulkCertified,
		Actor:     issuer,
		Timestamp: at.Unix(),
		Payload: BulkCertifiedPayload{
			Issuer:         issuer,
			CertificateIDs: ids,
			Count:          len(ids),
			Timestamp:      at.Unix(),
		},
	}
}

// Package store persists certificates, transfer history, and the
// incrementally maintained aggregates. Two implementations share the port:
// an in-memory store whose single mutex is the serialization boundary, and a
// PostgreSQL store using one transaction plus row locks per operation.
//
// Counter updates happen inside the same atomic unit as the record mutation,
// never as a separate pass, so readers can never observe counters that
// disagree with the underlying records.
package store

import (
	"context"
	"time"

	"baseproof/internal/certificate/models"
	domain "baseproof/pkg/domain"
)

// Store is the persistence port for the registry core.
//
// Mutating methods take validate (and sometimes mutate) callbacks that run
// while the store holds its lock (mutex or FOR UPDATE), so the state a
// validation observed is exactly the state the mutation applies to.
// A validate error aborts with no effect and is returned verbatim.
type Store interface {
	// Create persists a new certificate and allocates its id.
	// Fails with sentinel.ErrConflict when the document hash is taken.
	Create(ctx context.Context, cert *models.Certificate) (domain.CertificateID, error)

	// CreateBatch persists all certificates or none. A duplicate hash
	// (against the store or within the batch) fails the whole batch with
	// sentinel.ErrConflict.
	CreateBatch(ctx context.Context, certs []*models.Certificate) ([]domain.CertificateID, error)

	// FindByID returns a copy of the certificate or sentinel.ErrNotFound.
	FindByID(ctx context.Context, id domain.CertificateID) (*models.Certificate, error)

	// FindByHash returns a copy of the certificate bound to the fingerprint
	// or sentinel.ErrNotFound.
	FindByHash(ctx context.Context, hash domain.Hash) (*models.Certificate, error)

	// Transfer atomically validates, appends the transfer record, updates
	// the owner, and bumps the issuer's transferred counter.
	Transfer(ctx context.Context, id domain.CertificateID, rec models.TransferRecord, validate func(*models.Certificate) error) (*models.Certificate, error)

	// Revoke atomically validates, applies the terminal revocation state,
	// and moves the visibility counter to revoked.
	Revoke(ctx context.Context, id domain.CertificateID, reasonRef string, at time.Time, validate func(*models.Certificate) error) (*models.Certificate, error)

	// Execute runs a locked validate-then-mutate on one certificate, for
	// mutations with no counter side effects (co-certification, renewal).
	Execute(ctx context.Context, id domain.CertificateID, validate func(*models.Certificate) error, mutate func(*models.Certificate)) (*models.Certificate, error)

	// TransferHistory returns the append-only transfer log in order.
	TransferHistory(ctx context.Context, id domain.CertificateID) ([]models.TransferRecord, error)

	// ListByIssuer returns a page of certificate ids in issuance order.
	ListByIssuer(ctx context.Context, issuer domain.Address, offset, limit int) ([]domain.CertificateID, error)

	// ListByOwner returns a page of currently owned certificate ids in
	// ascending id order.
	ListByOwner(ctx context.Context, owner domain.Address, offset, limit int) ([]domain.CertificateID, error)

	// PlatformStats returns the registry-wide aggregates without scanning.
	PlatformStats(ctx context.Context) (models.PlatformStats, error)

	// IssuerStats returns the per-issuer aggregates; the ids field carries
	// the first page of the issuer's certificates.
	IssuerStats(ctx context.Context, issuer domain.Address) (models.IssuerStats, error)
}

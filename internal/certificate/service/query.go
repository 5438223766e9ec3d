package service

import (
	"context"
	"errors"
	"time"

	"baseproof/internal/certificate/access"
	"baseproof/internal/certificate/models"
	domain "baseproof/pkg/domain"
	dErrors "baseproof/pkg/domain-errors"
	"baseproof/pkg/platform/sentinel"
	"baseproof/pkg/requestcontext"
)

// Get returns the certificate by id. Public certificates and callers with a
// private-view relationship get the full record; everyone else gets the
// redacted projection, not an error, so existence stays observable.
func (s *Service) Get(ctx context.Context, id domain.CertificateID) (*models.Certificate, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.Get")
	defer span.End()
	defer s.observe("get", time.Now())

	cert, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if cert.IsPublic || access.CanViewPrivate(requestcontext.Actor(ctx), cert) {
		return cert, nil
	}
	return cert.Redacted(), nil
}

// Verify answers whether a document fingerprint is certified. A missing hash
// is a negative answer, not an error. Private certificates reveal only
// existence, id, certification time, and revocation state to unauthorized
// callers.
func (s *Service) Verify(ctx context.Context, hash domain.Hash) (models.VerificationResult, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.Verify")
	defer span.End()
	defer s.observe("verify", time.Now())

	// Cached entries are public-record results, safe to serve to any caller.
	if result, ok := s.cache.Get(ctx, hash); ok {
		s.metrics.RecordCacheLookup(true)
		return result, nil
	}
	s.metrics.RecordCacheLookup(false)

	cert, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.VerificationResult{Exists: false}, nil
		}
		return models.VerificationResult{}, s.translate(err)
	}

	result := models.VerificationResult{
		Exists:        true,
		CertificateID: cert.ID,
		Timestamp:     cert.CertifiedAt,
		IsRevoked:     cert.IsRevoked,
	}
	if cert.IsPublic || access.CanViewPrivate(requestcontext.Actor(ctx), cert) {
		result.Issuer = cert.Issuer
		result.CurrentOwner = cert.Owner
		result.Title = cert.Title
		result.IsPublic = cert.IsPublic
	}
	if cert.IsPublic {
		if err := s.cache.Put(ctx, hash, result); err != nil {
			s.logger.Warn("verification cache write failed", "hash", hash, "error", err)
		}
	}
	return result, nil
}

// TransferHistory returns the ownership log. The log names past owners, so
// it is gated like private content for non-public certificates.
func (s *Service) TransferHistory(ctx context.Context, id domain.CertificateID) ([]models.TransferRecord, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.TransferHistory")
	defer span.End()
	defer s.observe("transfer_history", time.Now())

	cert, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if !cert.IsPublic && !access.CanViewPrivate(requestcontext.Actor(ctx), cert) {
		return nil, dErrors.New(dErrors.CodeNotAuthorized, "transfer history is restricted")
	}

	history, err := s.store.TransferHistory(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	return history, nil
}

// ListByIssuer returns a page of certificate ids issued by the address.
func (s *Service) ListByIssuer(ctx context.Context, issuer domain.Address, offset, limit int) ([]domain.CertificateID, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.ListByIssuer")
	defer span.End()
	defer s.observe("list_by_issuer", time.Now())

	if issuer.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer address required")
	}
	ids, err := s.store.ListByIssuer(ctx, issuer, offset, limit)
	if err != nil {
		return nil, s.translate(err)
	}
	return ids, nil
}

// ListByOwner returns a page of certificate ids currently owned by the
// address.
func (s *Service) ListByOwner(ctx context.Context, owner domain.Address, offset, limit int) ([]domain.CertificateID, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.ListByOwner")
	defer span.End()
	defer s.observe("list_by_owner", time.Now())

	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner address required")
	}
	ids, err := s.store.ListByOwner(ctx, owner, offset, limit)
	if err != nil {
		return nil, s.translate(err)
	}
	return ids, nil
}

// PlatformStats returns the registry-wide aggregates.
func (s *Service) PlatformStats(ctx context.Context) (models.PlatformStats, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.PlatformStats")
	defer span.End()
	defer s.observe("platform_stats", time.Now())

	stats, err := s.store.PlatformStats(ctx)
	if err != nil {
		return models.PlatformStats{}, s.translate(err)
	}
	return stats, nil
}

// IssuerStats returns the per-issuer aggregates.
func (s *Service) IssuerStats(ctx context.Context, issuer domain.Address) (models.IssuerStats, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.IssuerStats")
	defer span.End()
	defer s.observe("issuer_stats", time.Now())

	if issuer.IsZero() {
		return models.IssuerStats{}, dErrors.New(dErrors.CodeInvalidInput, "issuer address required")
	}
	stats, err := s.store.IssuerStats(ctx, issuer)
	if err != nil {
		return models.IssuerStats{}, s.translate(err)
	}
	return stats, nil
}

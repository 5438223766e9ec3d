// Package service implements the registry operations over the store port:
// issuance, transfer, revocation, co-certification, renewal, and the
// privacy-gated read side.
//
// Every write follows the same shape: resolve the actor, check the fee
// before touching state, run the locked validate+mutate through the store,
// then emit exactly one event and record metrics. A failed operation never
// consumes payment and never emits.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"baseproof/internal/certificate/access"
	"baseproof/internal/certificate/cache"
	"baseproof/internal/certificate/fees"
	"baseproof/internal/certificate/metrics"
	"baseproof/internal/certificate/models"
	"baseproof/internal/certificate/store"
	"baseproof/internal/events"
	domain "baseproof/pkg/domain"
	dErrors "baseproof/pkg/domain-errors"
	"baseproof/pkg/platform/sentinel"
	"baseproof/pkg/requestcontext"
)

// Config carries the service's fixed operational parameters.
type Config struct {
	RevocationCooldown time.Duration
	MaxBulkSize        int
	MaxPageSize        int
}

// Service coordinates the certificate registry's business rules.
type Service struct {
	store     store.Store
	publisher events.Publisher
	policy    *fees.Policy
	cache     *cache.VerificationCache
	metrics   *metrics.Metrics
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New wires a Service. cache and metrics may be nil; publisher and store may
// not.
func New(st store.Store, pub events.Publisher, policy *fees.Policy, vc *cache.VerificationCache, m *metrics.Metrics, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxBulkSize <= 0 {
		cfg.MaxBulkSize = 100
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	return &Service{
		store:     st,
		publisher: pub,
		policy:    policy,
		cache:     vc,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("baseproof/certificate"),
	}
}

// CertifyInput carries one issuance request plus its attached payment.
type CertifyInput struct {
	models.NewInput
	Payment domain.Amount
}

// BulkInput carries a batch issuance request. All items share one payment
// and commit atomically.
type BulkInput struct {
	Items   []models.NewInput
	Payment domain.Amount
}

// Certify issues a new certificate bound to the caller.
func (s *Service) Certify(ctx context.Context, in CertifyInput) (*models.Certificate, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.Certify")
	defer span.End()
	defer s.observe("certify", time.Now())

	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if required := s.policy.RequiredSingle(); in.Payment < required {
		return nil, dErrors.Newf(dErrors.CodeInvalidFee, "certification requires %s base units", required)
	}

	now := requestcontext.Now(ctx)
	cert, err := models.New(actor, in.NewInput, now)
	if err != nil {
		return nil, err
	}

	id, err := s.store.Create(ctx, cert)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeHashAlreadyExists, "document hash is already certified")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store certificate")
	}
	cert.ID = id
	span.SetAttributes(attribute.Int64("certificate.id", int64(id)))

	s.metrics.RecordIssued(cert.Category, cert.IsPublic)
	s.metrics.RecordFee(in.Payment)
	s.publish(ctx, events.NewCertified(cert))
	return cert, nil
}

// CertifyBulk issues a batch of certificates atomically: either every item is
// certified or none is. The batch emits one aggregate event.
func (s *Service) CertifyBulk(ctx context.Context, in BulkInput) ([]domain.CertificateID, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.CertifyBulk")
	defer span.End()
	defer s.observe("certify_bulk", time.Now())

	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if len(in.Items) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "batch cannot be empty")
	}
	if len(in.Items) > s.cfg.MaxBulkSize {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "batch cannot exceed %d items", s.cfg.MaxBulkSize)
	}
	if required := s.policy.RequiredBulk(uint32(len(in.Items))); in.Payment < required {
		return nil, dErrors.Newf(dErrors.CodeInvalidFee, "bulk certification of %d items requires %s base units", len(in.Items), required)
	}

	now := requestcontext.Now(ctx)
	certs := make([]*models.Certificate, 0, len(in.Items))
	for i, item := range in.Items {
		cert, err := models.New(actor, item, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "batch item "+strconv.Itoa(i))
		}
		certs = append(certs, cert)
	}

	ids, err := s.store.CreateBatch(ctx, certs)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeHashAlreadyExists, "a document hash in the batch is already certified")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store batch")
	}
	span.SetAttributes(attribute.Int("certificate.batch_size", len(ids)))

	for _, cert := range certs {
		s.metrics.RecordIssued(cert.Category, cert.IsPublic)
	}
	s.metrics.RecordFee(in.Payment)
	s.publish(ctx, events.NewBulkCertified(actor, ids, now))
	return ids, nil
}

// Transfer moves ownership of a certificate to newOwner. Only the current
// owner may transfer; revoked certificates are frozen.
func (s *Service) Transfer(ctx context.Context, id domain.CertificateID, newOwner domain.Address, payment domain.Amount) (*models.Certificate, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.Transfer")
	defer span.End()
	defer s.observe("transfer", time.Now())
	span.SetAttributes(attribute.Int64("certificate.id", int64(id)))

	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if required := s.policy.RequiredTransfer(); payment < required {
		return nil, dErrors.Newf(dErrors.CodeInvalidFee, "transfer requires %s base units", required)
	}

	now := requestcontext.Now(ctx)
	rec := models.TransferRecord{From: actor, To: newOwner, At: now}
	cert, err := s.store.Transfer(ctx, id, rec, func(c *models.Certificate) error {
		if !access.CanTransfer(actor, c) {
			if c.IsRevoked {
				return dErrors.New(dErrors.CodeAlreadyRevoked, "certificate is revoked")
			}
			return dErrors.New(dErrors.CodeNotAuthorized, "only the current owner can transfer")
		}
		return c.CanTransfer(newOwner)
	})
	if err != nil {
		return nil, s.translate(err)
	}

	s.metrics.RecordTransfer()
	s.metrics.RecordFee(payment)
	s.invalidate(ctx, cert.DocumentHash)
	s.publish(ctx, events.Event{
		Action:        events.ActionTransferred,
		CertificateID: id,
		Actor:         actor,
		Timestamp:     now.Unix(),
		Payload: events.TransferredPayload{
			CertificateID: id,
			From:          actor,
			To:            newOwner,
			Timestamp:     now.Unix(),
		},
	})
	return cert, nil
}

// Revoke moves a certificate to its terminal state. Owner or issuer may
// revoke, and only after the configured cooldown since certification.
func (s *Service) Revoke(ctx context.Context, id domain.CertificateID, reasonRef string) (*models.Certificate, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.Revoke")
	defer span.End()
	defer s.observe("revoke", time.Now())
	span.SetAttributes(attribute.Int64("certificate.id", int64(id)))

	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if len(reasonRef) > models.MaxRefLength {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "reason reference must be at most %d bytes", models.MaxRefLength)
	}

	now := requestcontext.Now(ctx)
	cert, err := s.store.Revoke(ctx, id, reasonRef, now, func(c *models.Certificate) error {
		if !access.CanRevoke(actor, c) {
			if c.IsRevoked {
				return dErrors.New(dErrors.CodeAlreadyRevoked, "certificate is already revoked")
			}
			return dErrors.New(dErrors.CodeNotAuthorized, "only the owner or issuer can revoke")
		}
		return c.CanRevoke(now, s.cfg.RevocationCooldown)
	})
	if err != nil {
		return nil, s.translate(err)
	}

	s.metrics.RecordRevoked()
	s.invalidate(ctx, cert.DocumentHash)
	s.publish(ctx, events.Event{
		Action:        events.ActionRevoked,
		CertificateID: id,
		Actor:         actor,
		Timestamp:     now.Unix(),
		Payload: events.RevokedPayload{
			CertificateID: id,
			RevokedBy:     actor,
			ReasonRef:     reasonRef,
			Timestamp:     now.Unix(),
		},
	})
	return cert, nil
}

// AddCoCertifier invites an address to vouch for the certificate. Owner or
// issuer may invite; the invitee gains nothing until accepting.
func (s *Service) AddCoCertifier(ctx context.Context, id domain.CertificateID, addr domain.Address) (*models.Certificate, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.AddCoCertifier")
	defer span.End()
	defer s.observe("add_co_certifier", time.Now())
	span.SetAttributes(attribute.Int64("certificate.id", int64(id)))

	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	cert, err := s.store.Execute(ctx, id,
		func(c *models.Certificate) error {
			if !access.CanManageCoCertifiers(actor, c) {
				return dErrors.New(dErrors.CodeNotAuthorized, "only the owner or issuer can invite co-certifiers")
			}
			return c.CanAddCoCertifier(addr)
		},
		func(c *models.Certificate) {
			c.ApplyPendingCoCertifier(addr)
		},
	)
	if err != nil {
		return nil, s.translate(err)
	}

	s.publish(ctx, events.Event{
		Action:        events.ActionCoCertifierAdded,
		CertificateID: id,
		Actor:         actor,
		Timestamp:     requestcontext.Now(ctx).Unix(),
		Payload: events.CoCertifierAddedPayload{
			CertificateID: id,
			CoCertifier:   addr,
			AddedBy:       actor,
		},
	})
	return cert, nil
}

// AcceptCoCertification moves the caller from the pending set to the
// accepted co-certifier set, granting private-view rights.
func (s *Service) AcceptCoCertification(ctx context.Context, id domain.CertificateID) (*models.Certificate, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.AcceptCoCertification")
	defer span.End()
	defer s.observe("accept_co_certification", time.Now())
	span.SetAttributes(attribute.Int64("certificate.id", int64(id)))

	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	cert, err := s.store.Execute(ctx, id,
		func(c *models.Certificate) error {
			return c.CanAcceptCoCertification(actor)
		},
		func(c *models.Certificate) {
			c.ApplyCoCertification(actor)
		},
	)
	if err != nil {
		return nil, s.translate(err)
	}

	s.publish(ctx, events.Event{
		Action:        events.ActionCoCertifierAccepted,
		CertificateID: id,
		Actor:         actor,
		Timestamp:     requestcontext.Now(ctx).Unix(),
		Payload: events.CoCertifierAcceptedPayload{
			CertificateID: id,
			CoCertifier:   actor,
		},
	})
	return cert, nil
}

// Renew extends a certificate's expiration. Owner-only, priced as a fresh
// single certification.
func (s *Service) Renew(ctx context.Context, id domain.CertificateID, newExpiresAt time.Time, payment domain.Amount) (*models.Certificate, error) {
	ctx, span := s.tracer.Start(ctx, "certificate.Renew")
	defer span.End()
	defer s.observe("renew", time.Now())
	span.SetAttributes(attribute.Int64("certificate.id", int64(id)))

	actor := requestcontext.Actor(ctx)
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if required := s.policy.RequiredRenewal(); payment < required {
		return nil, dErrors.Newf(dErrors.CodeInvalidFee, "renewal requires %s base units", required)
	}

	now := requestcontext.Now(ctx)
	cert, err := s.store.Execute(ctx, id,
		func(c *models.Certificate) error {
			if actor != c.Owner {
				return dErrors.New(dErrors.CodeNotAuthorized, "only the current owner can renew")
			}
			return c.CanRenew(newExpiresAt, now)
		},
		func(c *models.Certificate) {
			c.ApplyRenewal(newExpiresAt)
		},
	)
	if err != nil {
		return nil, s.translate(err)
	}

	s.metrics.RecordRenewal()
	s.metrics.RecordFee(payment)
	s.invalidate(ctx, cert.DocumentHash)
	s.publish(ctx, events.Event{
		Action:        events.ActionRenewed,
		CertificateID: id,
		Actor:         actor,
		Timestamp:     now.Unix(),
		Payload: events.RenewedPayload{
			CertificateID: id,
			ExpiresAt:     cert.ExpiresAt.Unix(),
			RenewalCount:  cert.RenewalCount,
			Timestamp:     now.Unix(),
		},
	})
	return cert, nil
}

// translate maps infrastructure sentinels to coded errors and passes coded
// errors through untouched.
func (s *Service) translate(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "certificate not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "concurrent update conflict")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "store operation")
	}
}

// publish emits after commit; a sink failure is logged, never surfaced, so a
// committed mutation is never reported as failed.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.Error("event publish failed",
			"action", string(event.Action),
			"certificate_id", event.CertificateID,
			"error", err,
		)
	}
}

func (s *Service) invalidate(ctx context.Context, hash domain.Hash) {
	if err := s.cache.Invalidate(ctx, hash); err != nil {
		s.logger.Warn("verification cache invalidation failed", "hash", hash, "error", err)
	}
}

func (s *Service) observe(op string, start time.Time) {
	s.metrics.ObserveOp(op, time.Since(start))
}

package models

import (
	"slices"
	"time"

	domain "baseproof/pkg/domain"
	dErrors "baseproof/pkg/domain-errors"
)

// Validation bounds for caller-supplied attributes.
const (
	TitleMinLength  = 3
	TitleMaxLength  = 200
	MaxTags         = 5
	MaxRefLength    = 512
	MaxTagLength    = 64
	MaxFilenameSize = 255
)

// Certificate is the aggregate root of the registry: the binding of one
// document fingerprint to an issuing identity, descriptive attributes, and a
// mutable ownership record.
//
// Invariants:
//   - DocumentHash is unique registry-wide and never reassigned
//   - Issuer is immutable after creation; Owner starts as Issuer and changes
//     only via a completed transfer
//   - IsRevoked is monotonic: false -> true, never back
//   - CoCertifiers and PendingCoCertifiers are disjoint; an address moves
//     from pending to accepted exactly once
//   - CertifiedAt is immutable after construction
//
// Revocation is the terminal state: a revoked certificate cannot be
// transferred, renewed, or revoked again. There is no delete.
type Certificate struct {
	ID           domain.CertificateID `json:"id"`
	DocumentHash domain.Hash          `json:"document_hash"`
	Issuer       domain.Address       `json:"issuer"`
	Owner        domain.Address       `json:"owner"`

	Title          string          `json:"title"`
	Category       domain.Category `json:"category"`
	DescriptionRef string          `json:"description_ref"`
	MetadataRef    string          `json:"metadata_ref"`
	IsPublic       bool            `json:"is_public"`
	Tags           []string        `json:"tags"`
	// Display-only provenance of the certified file; no semantic effect.
	OriginalFilename string `json:"original_filename"`
	FileExtension    string `json:"file_extension"`

	CertifiedAt  time.Time `json:"certified_at"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	RenewalCount uint32    `json:"renewal_count"`

	IsRevoked           bool      `json:"is_revoked"`
	RevocationReasonRef string    `json:"revocation_reason_ref,omitempty"`
	RevokedAt           time.Time `json:"revoked_at,omitzero"`

	CoCertifiers        []domain.Address `json:"co_certifiers"`
	PendingCoCertifiers []domain.Address `json:"pending_co_certifiers"`
}

// NewInput carries the caller-supplied attributes for a new certificate.
type NewInput struct {
	DocumentHash     domain.Hash
	Title            string
	Category         domain.Category
	DescriptionRef   string
	MetadataRef      string
	IsPublic         bool
	CoCertifiers     []domain.Address
	ExpiresAt        time.Time
	Tags             []string
	OriginalFilename string
	FileExtension    string
}

// New validates input and constructs a certificate owned by its issuer.
// The supplied co-certifiers start in the pending set; each must accept
// before gaining private-view rights.
func New(issuer domain.Address, in NewInput, now time.Time) (*Certificate, error) {
	if issuer.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer cannot be the zero address")
	}
	if in.DocumentHash.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document hash cannot be empty")
	}
	if len(in.Title) < TitleMinLength || len(in.Title) > TitleMaxLength {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "title must be between %d and %d characters", TitleMinLength, TitleMaxLength)
	}
	if !in.Category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	if len(in.DescriptionRef) > MaxRefLength || len(in.MetadataRef) > MaxRefLength {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "metadata references must be at most %d bytes", MaxRefLength)
	}
	if len(in.Tags) > MaxTags {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "at most %d tags allowed", MaxTags)
	}
	for _, tag := range in.Tags {
		if tag == "" || len(tag) > MaxTagLength {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "tags must be non-empty and at most %d characters", MaxTagLength)
		}
	}
	if len(in.OriginalFilename) > MaxFilenameSize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "filename too long")
	}
	if !in.ExpiresAt.IsZero() && !in.ExpiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "expiration must be in the future")
	}

	var pending []domain.Address
	for _, cc := range in.CoCertifiers {
		if cc.IsZero() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "co-certifier cannot be the zero address")
		}
		if cc == issuer || slices.Contains(pending, cc) {
			continue
		}
		pending = append(pending, cc)
	}

	return &Certificate{
		DocumentHash:        in.DocumentHash,
		Issuer:              issuer,
		Owner:               issuer,
		Title:               in.Title,
		Category:            in.Category,
		DescriptionRef:      in.DescriptionRef,
		MetadataRef:         in.MetadataRef,
		IsPublic:            in.IsPublic,
		Tags:                slices.Clone(in.Tags),
		OriginalFilename:    in.OriginalFilename,
		FileExtension:       in.FileExtension,
		CertifiedAt:         now,
		ExpiresAt:           in.ExpiresAt,
		PendingCoCertifiers: pending,
	}, nil
}

// CanTransfer checks whether the certificate can change owner.
// Revoked certificates are frozen.
func (c *Certificate) CanTransfer(newOwner domain.Address) error {
	if c.IsRevoked {
		return dErrors.New(dErrors.CodeAlreadyRevoked, "certificate is revoked")
	}
	if newOwner.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "new owner cannot be the zero address")
	}
	if newOwner == c.Owner {
		return dErrors.New(dErrors.CodeInvalidInput, "certificate already owned by recipient")
	}
	return nil
}

// ApplyTransfer changes the owner. Call CanTransfer first.
func (c *Certificate) ApplyTransfer(newOwner domain.Address) {
	c.Owner = newOwner
}

// CanRevoke checks whether revocation is possible given the configured
// cooldown. The cooldown is deliberate friction: an issuer must not certify
// and instantly retract to game a dispute window.
func (c *Certificate) CanRevoke(now time.Time, cooldown time.Duration) error {
	if c.IsRevoked {
		return dErrors.New(dErrors.CodeAlreadyRevoked, "certificate is already revoked")
	}
	if now.Sub(c.CertifiedAt) < cooldown {
		return dErrors.New(dErrors.CodeCooldownNotMet, "revocation cooldown has not elapsed")
	}
	return nil
}

// ApplyRevocation moves the certificate to its terminal state.
// Call CanRevoke first.
func (c *Certificate) ApplyRevocation(reasonRef string, now time.Time) {
	c.IsRevoked = true
	c.RevocationReasonRef = reasonRef
	c.RevokedAt = now
}

// CanAcceptCoCertification checks that the actor holds a pending invitation.
func (c *Certificate) CanAcceptCoCertification(actor domain.Address) error {
	if !slices.Contains(c.PendingCoCertifiers, actor) {
		return dErrors.New(dErrors.CodeNotAuthorized, "no pending co-certification invitation")
	}
	return nil
}

// ApplyCoCertification moves the actor from pending to accepted.
// Call CanAcceptCoCertification first.
func (c *Certificate) ApplyCoCertification(actor domain.Address) {
	c.PendingCoCertifiers = slices.DeleteFunc(c.PendingCoCertifiers, func(a domain.Address) bool {
		return a == actor
	})
	c.CoCertifiers = append(c.CoCertifiers, actor)
}

// CanAddCoCertifier checks that the address is not already invited or
// accepted.
func (c *Certificate) CanAddCoCertifier(addr domain.Address) error {
	if addr.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "co-certifier cannot be the zero address")
	}
	if addr == c.Issuer || addr == c.Owner {
		return dErrors.New(dErrors.CodeInvalidInput, "issuer and owner cannot be co-certifiers")
	}
	if slices.Contains(c.CoCertifiers, addr) || slices.Contains(c.PendingCoCertifiers, addr) {
		return dErrors.New(dErrors.CodeInvalidInput, "address is already a co-certifier")
	}
	return nil
}

// ApplyPendingCoCertifier adds the address to the pending set.
// Call CanAddCoCertifier first.
func (c *Certificate) ApplyPendingCoCertifier(addr domain.Address) {
	c.PendingCoCertifiers = append(c.PendingCoCertifiers, addr)
}

// CanRenew checks whether the expiration can be extended.
func (c *Certificate) CanRenew(newExpiresAt, now time.Time) error {
	if c.IsRevoked {
		return dErrors.New(dErrors.CodeAlreadyRevoked, "certificate is revoked")
	}
	if newExpiresAt.IsZero() || !newExpiresAt.After(now) {
		return dErrors.New(dErrors.CodeInvalidInput, "new expiration must be in the future")
	}
	if !c.ExpiresAt.IsZero() && !newExpiresAt.After(c.ExpiresAt) {
		return dErrors.New(dErrors.CodeInvalidInput, "new expiration must extend the current one")
	}
	return nil
}

// ApplyRenewal extends the expiration and increments the renewal counter.
// Call CanRenew first.
func (c *Certificate) ApplyRenewal(newExpiresAt time.Time) {
	c.ExpiresAt = newExpiresAt
	c.RenewalCount++
}

// Redacted returns the privacy projection of a private certificate for an
// unauthorized caller: the id and certification time remain observable
// (existence-at-time proves nothing about content), everything descriptive
// is zeroed and the issuer is the zero address.
func (c *Certificate) Redacted() *Certificate {
	return &Certificate{
		ID:          c.ID,
		CertifiedAt: c.CertifiedAt,
		IsPublic:    false,
		IsRevoked:   c.IsRevoked,
	}
}

// Clone deep-copies the certificate so stores never hand out aliased slices.
func (c *Certificate) Clone() *Certificate {
	clone := *c
	clone.Tags = slices.Clone(c.Tags)
	clone.CoCertifiers = slices.Clone(c.CoCertifiers)
	clone.PendingCoCertifiers = slices.Clone(c.PendingCoCertifiers)
	return &clone
}

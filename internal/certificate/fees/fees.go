// Package fees computes required payments for registry operations. All
// functions are pure over the configured policy; excess payment beyond the
// requirement is accepted and retained, underpayment is rejected by the
// service before any state changes.
package fees

import (
	"sort"

	domain "baseproof/pkg/domain"
)

// DiscountTier grants Percent off the linear bulk total when a batch has at
// least MinCount items.
type DiscountTier struct {
	MinCount uint32
	Percent  uint8
}

// Policy is the configured fee schedule. Tiers are a table so new volume
// tiers can be added without touching call sites.
type Policy struct {
	Single   domain.Amount
	Transfer domain.Amount
	tiers    []DiscountTier
}

// NewPolicy builds a fee policy. Tiers are sorted by MinCount descending so
// the largest qualifying tier wins.
func NewPolicy(single, transfer domain.Amount, tiers []DiscountTier) *Policy {
	sorted := make([]DiscountTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinCount > sorted[j].MinCount })
	return &Policy{Single: single, Transfer: transfer, tiers: sorted}
}

// DefaultTiers is the reference discount table: 10%+ off at 10 items.
func DefaultTiers() []DiscountTier {
	return []DiscountTier{{MinCount: 10, Percent: 10}}
}

// RequiredSingle returns the flat single-certification fee.
func (p *Policy) RequiredSingle() domain.Amount {
	return p.Single
}

// RequiredTransfer returns the flat transfer fee, independent of the
// certificate's value.
func (p *Policy) RequiredTransfer() domain.Amount {
	return p.Transfer
}

// RequiredBulk returns the fee for a batch of count items: the linear total
// discounted by the largest tier the batch qualifies for. The boundary is
// exact: count == MinCount already discounts.
func (p *Policy) RequiredBulk(count uint32) domain.Amount {
	linear := uint64(p.Single) * uint64(count)
	for _, tier := range p.tiers {
		if count >= tier.MinCount {
			return domain.Amount(linear * uint64(100-tier.Percent) / 100)
		}
	}
	return domain.Amount(linear)
}

// RequiredRenewal returns the fee for extending a certificate's expiration.
// Renewal is priced as a fresh single certification.
func (p *Policy) RequiredRenewal() domain.Amount {
	return p.Single
}

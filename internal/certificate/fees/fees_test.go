package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domain "baseproof/pkg/domain"
)

const (
	single   = domain.Amount(1_000_000_000_000_000)
	transfer = domain.Amount(500_000_000_000_000)
)

func TestRequiredSingleAndTransfer(t *testing.T) {
	p := NewPolicy(single, transfer, DefaultTiers())

	assert.Equal(t, single, p.RequiredSingle())
	assert.Equal(t, transfer, p.RequiredTransfer())
	assert.Equal(t, single, p.RequiredRenewal())
}

func TestRequiredBulkDiscountBoundary(t *testing.T) {
	p := NewPolicy(single, transfer, DefaultTiers())

	// 9 items pay the full linear price; 10 hit the tier exactly.
	assert.Equal(t, domain.Amount(9)*single, p.RequiredBulk(9))
	assert.Equal(t, domain.Amount(uint64(single)*10*90/100), p.RequiredBulk(10))
	assert.Equal(t, domain.Amount(uint64(single)*11*90/100), p.RequiredBulk(11))
}

func TestRequiredBulkSingleItem(t *testing.T) {
	p := NewPolicy(single, transfer, DefaultTiers())
	assert.Equal(t, single, p.RequiredBulk(1))
}

func TestRequiredBulkLargestTierWins(t *testing.T) {
	p := NewPolicy(single, transfer, []DiscountTier{
		{MinCount: 10, Percent: 10},
		{MinCount: 50, Percent: 20},
	})

	cases := []struct {
		count   uint32
		percent uint64
	}{
		{9, 0},
		{10, 10},
		{49, 10},
		{50, 20},
		{100, 20},
	}
	for _, tc := range cases {
		want := domain.Amount(uint64(single) * uint64(tc.count) * (100 - tc.percent) / 100)
		assert.Equal(t, want, p.RequiredBulk(tc.count), "count %d", tc.count)
	}
}

func TestRequiredBulkNoTiers(t *testing.T) {
	p := NewPolicy(single, transfer, nil)
	assert.Equal(t, domain.Amount(25)*single, p.RequiredBulk(25))
}

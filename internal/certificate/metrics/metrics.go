// Package metrics exposes the certificate module's Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domain "baseproof/pkg/domain"
)

// Metrics counts registry operations and collected fees. A nil *Metrics is
// valid and records nothing, which keeps service tests free of registry
// bookkeeping.
type Metrics struct {
	issuedTotal       *prometheus.CounterVec
	revokedTotal      prometheus.Counter
	transfersTotal    prometheus.Counter
	renewalsTotal     prometheus.Counter
	feesCollected     prometheus.Counter
	verifyCacheHits   prometheus.Counter
	verifyCacheMisses prometheus.Counter
	opDuration        *prometheus.HistogramVec
}

// New creates and registers the certificate metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		issuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "baseproof_certificates_issued_total",
			Help: "Certificates issued, by category and visibility",
		}, []string{"category", "visibility"}),
		revokedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "baseproof_certificates_revoked_total",
			Help: "Certificates revoked",
		}),
		transfersTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "baseproof_certificate_transfers_total",
			Help: "Completed ownership transfers",
		}),
		renewalsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "baseproof_certificate_renewals_total",
			Help: "Certificate expiration renewals",
		}),
		feesCollected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "baseproof_fees_collected_base_units_total",
			Help: "Fees retained by the registry in base units",
		}),
		verifyCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "baseproof_verification_cache_hits_total",
			Help: "Verification lookups served from cache",
		}),
		verifyCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "baseproof_verification_cache_misses_total",
			Help: "Verification lookups that missed the cache",
		}),
		opDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "baseproof_certificate_op_duration_seconds",
			Help:    "Registry operation duration by operation name",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
	}
}

func visibility(isPublic bool) string {
	if isPublic {
		return "public"
	}
	return "private"
}

// RecordIssued counts one issuance.
func (m *Metrics) RecordIssued(category domain.Category, isPublic bool) {
	if m != nil {
		m.issuedTotal.WithLabelValues(category.Label(), visibility(isPublic)).Inc()
	}
}

// RecordRevoked counts one revocation.
func (m *Metrics) RecordRevoked() {
	if m != nil {
		m.revokedTotal.Inc()
	}
}

// RecordTransfer counts one completed transfer.
func (m *Metrics) RecordTransfer() {
	if m != nil {
		m.transfersTotal.Inc()
	}
}

// RecordRenewal counts one renewal.
func (m *Metrics) RecordRenewal() {
	if m != nil {
		m.renewalsTotal.Inc()
	}
}

// RecordFee adds a retained payment to the running total.
func (m *Metrics) RecordFee(amount domain.Amount) {
	if m != nil {
		m.feesCollected.Add(float64(amount))
	}
}

// RecordCacheLookup counts a verification cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.verifyCacheHits.Inc()
	} else {
		m.verifyCacheMisses.Inc()
	}
}

// ObserveOp records one operation duration.
func (m *Metrics) ObserveOp(op string, d time.Duration) {
	if m != nil {
		m.opDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

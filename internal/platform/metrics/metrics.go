package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-wide HTTP metrics. Module metrics live next to the
// module that owns them.
type Metrics struct {
	HTTPLatency *prometheus.HistogramVec
}

// New creates and registers the platform metrics.
func New() *Metrics {
	return &Metrics{
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "baseproof_http_request_duration_seconds",
			Help:    "HTTP request duration by method and path",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "path"}),
	}
}

// ObserveHTTPLatency records one request duration.
func (m *Metrics) ObserveHTTPLatency(method, path string, d time.Duration) {
	if m != nil {
		m.HTTPLatency.WithLabelValues(method, path).Observe(d.Seconds())
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/dittostore/pkg/share"
)

// shareMetrics is the Prometheus implementation of share.Metrics.
type shareMetrics struct {
	resolvesTotal   *prometheus.CounterVec
	resolveDuration prometheus.Histogram
}

// NewShareMetrics creates a Prometheus-backed share.Metrics, or nil when
// metrics are disabled.
func NewShareMetrics() share.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newShareMetrics(GetRegistry())
}

func newShareMetrics(reg prometheus.Registerer) *shareMetrics {
	return &shareMetrics{
		resolvesTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostore_share_resolves_total",
				Help: "Total number of share grant resolutions by outcome",
			},
			[]string{"outcome"},
		)),
		// Resolution always pays for one bcrypt comparison, so the
		// distribution should not depend on the outcome.
		resolveDuration: register(reg, prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittostore_share_resolve_duration_seconds",
				Help:    "Duration of share grant resolutions in seconds",
				Buckets: durationBuckets,
			},
		)),
	}
}

// ObserveResolve implements share.Metrics.
func (m *shareMetrics) ObserveResolve(outcome string, duration time.Duration) {
	m.resolvesTotal.WithLabelValues(outcome).Inc()
	m.resolveDuration.Observe(duration.Seconds())
}

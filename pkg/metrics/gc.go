package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/dittostore/pkg/gc"
)

// gcMetrics is the Prometheus implementation of gc.Metrics.
type gcMetrics struct {
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	deletedTotal prometheus.Counter
	failedTotal  prometheus.Counter
	lastOrphaned prometheus.Gauge
	lastSuccess  prometheus.Gauge
}

// NewGCMetrics creates a Prometheus-backed gc.Metrics, or nil when metrics
// are disabled.
func NewGCMetrics() gc.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newGCMetrics(GetRegistry())
}

func newGCMetrics(reg prometheus.Registerer) *gcMetrics {
	return &gcMetrics{
		runsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostore_gc_runs_total",
				Help: "Total number of garbage collection runs by status",
			},
			[]string{"status"},
		)),
		runDuration: register(reg, prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittostore_gc_run_duration_seconds",
				Help:    "Duration of garbage collection runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		)),
		deletedTotal: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dittostore_gc_deleted_objects_total",
				Help: "Total number of orphaned objects deleted",
			},
		)),
		failedTotal: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dittostore_gc_failed_deletes_total",
				Help: "Total number of orphaned objects that could not be deleted",
			},
		)),
		lastOrphaned: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dittostore_gc_last_orphaned_objects",
				Help: "Orphaned objects found by the most recent run",
			},
		)),
		lastSuccess: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dittostore_gc_last_success_timestamp_seconds",
				Help: "Unix time of the most recent successful run",
			},
		)),
	}
}

// ObserveRun implements gc.Metrics.
func (m *gcMetrics) ObserveRun(stats *gc.Stats, err error) {
	m.runsTotal.WithLabelValues(status(err)).Inc()
	if stats == nil {
		return
	}
	m.runDuration.Observe(stats.Duration().Seconds())
	m.deletedTotal.Add(float64(stats.DeletedCount))
	m.failedTotal.Add(float64(stats.FailedCount))
	m.lastOrphaned.Set(float64(stats.OrphanedCount))
	if err == nil {
		m.lastSuccess.Set(float64(stats.EndTime.Unix()))
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/dittostore/pkg/files"
)

// filesMetrics is the Prometheus implementation of files.Metrics.
type filesMetrics struct {
	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	uploadBytes    *prometheus.HistogramVec
	deletesTotal   *prometheus.CounterVec
	orphansTotal   *prometheus.CounterVec
}

// NewFilesMetrics creates a Prometheus-backed files.Metrics, or nil when
// metrics are disabled.
func NewFilesMetrics() files.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newFilesMetrics(GetRegistry())
}

func newFilesMetrics(reg prometheus.Registerer) *filesMetrics {
	return &filesMetrics{
		uploadsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostore_uploads_total",
				Help: "Total number of uploads and replacements by module and outcome",
			},
			[]string{"module", "outcome"},
		)),
		uploadDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittostore_upload_duration_seconds",
				Help:    "Duration of uploads in seconds",
				Buckets: durationBuckets,
			},
			[]string{"module"},
		)),
		uploadBytes: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittostore_upload_size_bytes",
				Help: "Size of stored uploads in bytes",
				Buckets: []float64{
					4096,       // 4KB
					65536,      // 64KB
					1048576,    // 1MB
					10485760,   // 10MB
					104857600,  // 100MB
					1073741824, // 1GB
				},
			},
			[]string{"module"},
		)),
		deletesTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostore_deletes_total",
				Help: "Total number of deletes by module and outcome",
			},
			[]string{"module", "outcome"},
		)),
		orphansTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostore_orphaned_objects_total",
				Help: "Total number of stored objects left without a catalog row, by reason",
			},
			[]string{"reason"},
		)),
	}
}

// ObserveUpload implements files.Metrics.
func (m *filesMetrics) ObserveUpload(module, outcome string, bytes int64, duration time.Duration) {
	m.uploadsTotal.WithLabelValues(module, outcome).Inc()
	m.uploadDuration.WithLabelValues(module).Observe(duration.Seconds())
	if outcome == "success" {
		m.uploadBytes.WithLabelValues(module).Observe(float64(bytes))
	}
}

// ObserveDelete implements files.Metrics.
func (m *filesMetrics) ObserveDelete(module, outcome string) {
	m.deletesTotal.WithLabelValues(module, outcome).Inc()
}

// RecordOrphan implements files.Metrics.
func (m *filesMetrics) RecordOrphan(reason string) {
	m.orphansTotal.WithLabelValues(reason).Inc()
}

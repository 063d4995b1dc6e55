package files

import "time"

// Metrics receives file service observations. The Prometheus
// implementation lives in pkg/metrics; nil selects a no-op.
type Metrics interface {
	// ObserveUpload records an Upload or Replace.
	ObserveUpload(module, outcome string, bytes int64, duration time.Duration)

	// ObserveDelete records a Delete.
	ObserveDelete(module, outcome string)

	// RecordOrphan counts bytes left without a catalog row.
	RecordOrphan(reason string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveUpload(string, string, int64, time.Duration) {}
func (noopMetrics) ObserveDelete(string, string)                       {}
func (noopMetrics) RecordOrphan(string)                                {}

package share

import "time"

// Metrics receives share resolution outcomes. The Prometheus implementation
// lives in pkg/metrics.
type Metrics interface {
	// ObserveResolve records one Resolve call. outcome is "granted",
	// "error" or a denial Reason.
	ObserveResolve(outcome string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveResolve(string, time.Duration) {}

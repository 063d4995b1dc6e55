package gc

// Metrics receives the outcome of every collection run. The Prometheus
// implementation lives in pkg/metrics.
type Metrics interface {
	ObserveRun(stats *Stats, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(*Stats, error) {}

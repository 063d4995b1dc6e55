package s3

import "time"

// S3Metrics receives observations about S3 calls.
//
// The Prometheus implementation lives in pkg/metrics. A nil S3Metrics in
// S3ObjectStoreConfig selects the no-op implementation.
type S3Metrics interface {
	// ObserveOperation records one S3 call and its outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved in the given direction
	// ("read" or "write").
	RecordBytes(direction string, n int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                     {}

// Package metrics provides Prometheus metrics collection for DittoStore
// components.
//
// All metrics are optional - if the registry is not initialized, the
// constructors return nil and components fall back to their built-in no-op
// implementations.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Hand implementations to the components
//	svc, err := files.NewService(files.Dependencies{..., Metrics: metrics.NewFilesMetrics()}, cfg)
//	store, err := s3.NewS3ObjectStore(ctx, s3.S3ObjectStoreConfig{..., Metrics: metrics.NewS3Metrics()})
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry for all DittoStore metrics.
	// Written once by InitRegistry.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. Subsequent calls
// are ignored.
//
// If not called, GetRegistry() returns nil and every constructor in this
// package returns nil.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry, or nil if metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// register adds c to reg and returns it. When an identical collector is
// already registered, for instance because a runtime was built twice in
// one process, the existing one is returned so both share the series.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// durationBuckets covers sub-millisecond catalog calls up to slow uploads.
var durationBuckets = []float64{
	0.0005, // 500µs
	0.001,  // 1ms
	0.005,  // 5ms
	0.01,   // 10ms
	0.05,   // 50ms
	0.1,    // 100ms
	0.5,    // 500ms
	1.0,    // 1s
	5.0,    // 5s
	30.0,   // 30s
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/access"
	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/marmos91/dittostore/pkg/files"
	"github.com/marmos91/dittostore/pkg/gc"
	"github.com/marmos91/dittostore/pkg/layout"
	"github.com/marmos91/dittostore/pkg/metrics"
	"github.com/marmos91/dittostore/pkg/naming"
	"github.com/marmos91/dittostore/pkg/share"
	"github.com/marmos91/dittostore/pkg/store/object"
	objectFs "github.com/marmos91/dittostore/pkg/store/object/fs"
)

// Runtime holds the components built from a Config.
type Runtime struct {
	Config    *Config
	Store     object.ObjectStore
	Catalog   catalog.Catalog
	Naming    *naming.Registry
	Service   *files.Service
	Collector *gc.Collector
}

// Build creates every component described by cfg and wires them together.
//
// When metrics are enabled the global registry is initialized first, so
// each constructor below picks up its Prometheus implementation.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Loaded and validated configuration
//
// Returns:
//   - *Runtime: Ready-to-use components; Close releases them
//   - error: If any component cannot be created
func Build(ctx context.Context, cfg *Config) (*Runtime, error) {
	if err := applyLogging(&cfg.Logging); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	maxSize, err := cfg.Uploads.MaxSizeBytes()
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 1: Stores
	// ========================================================================

	store, err := CreateObjectStore(ctx, &cfg.ObjectStore)
	if err != nil {
		return nil, err
	}

	cat, err := CreateCatalog(ctx, &cfg.Catalog)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Store: store, Catalog: cat}

	// ========================================================================
	// Step 2: Services
	// ========================================================================

	// Only a local store has a root that counts towards path length.
	var root string
	if fsStore, ok := store.(*objectFs.FSObjectStore); ok {
		root = fsStore.BasePath()
	}

	resolver, err := layout.NewResolver(layout.Config{
		Root:          root,
		MaxPathLength: cfg.Layout.MaxPathLength,
		TokenLength:   cfg.Layout.TokenLength,
	})
	if err != nil {
		return nil, rt.closeAfter(fmt.Errorf("failed to create layout resolver: %w", err))
	}

	shares, err := share.NewManager(cat, share.Config{
		CodeHashCost:      cfg.Shares.CodeHashCost,
		AttemptsPerSecond: cfg.Shares.AttemptsPerSecond,
		AttemptBurst:      cfg.Shares.AttemptBurst,
	}, share.WithMetrics(metrics.NewShareMetrics()))
	if err != nil {
		return nil, rt.closeAfter(fmt.Errorf("failed to create share manager: %w", err))
	}

	rt.Naming = naming.NewStaticRegistry(cfg.Naming.LookupTimeout, cfg.Naming.LabelTable())

	rt.Service, err = files.NewService(files.Dependencies{
		Store:    store,
		Catalog:  cat,
		Resolver: resolver,
		Shares:   shares,
		Namer:    rt.Naming,
		Policy:   access.NewPolicy(cfg.Uploads.PublicRead),
		Metrics:  metrics.NewFilesMetrics(),
	}, files.Config{MaxSize: maxSize})
	if err != nil {
		return nil, rt.closeAfter(fmt.Errorf("failed to create file service: %w", err))
	}

	rt.Collector, err = gc.NewCollector(cat, store, gc.Config{
		Enabled:     cfg.GC.Enabled,
		Interval:    cfg.GC.Interval,
		GracePeriod: cfg.GC.GracePeriod,
		FullSweep:   cfg.GC.FullSweep,
		DryRun:      cfg.GC.DryRun,
		BatchSize:   cfg.GC.BatchSize,
	}, gc.WithMetrics(metrics.NewGCMetrics()))
	if err != nil {
		return nil, rt.closeAfter(fmt.Errorf("failed to create garbage collector: %w", err))
	}

	logger.Debug("Runtime ready: object_store=%s catalog=%s max_size=%s",
		cfg.ObjectStore.Type, cfg.Catalog.Type, cfg.Uploads.MaxSize)
	return rt, nil
}

// MetricsServer binds the metrics endpoint. It returns nil when metrics
// are disabled.
func (r *Runtime) MetricsServer() (*metrics.Server, error) {
	if !r.Config.Metrics.Enabled {
		return nil, nil
	}
	return metrics.NewServer(metrics.ServerConfig{Port: r.Config.Metrics.Port})
}

// Close stops the collector and closes the catalog.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Collector != nil {
		if err := r.Collector.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop garbage collector: %w", err))
		}
	}
	if r.Catalog != nil {
		if err := r.Catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) closeAfter(err error) error {
	if closeErr := r.Catalog.Close(); closeErr != nil {
		logger.Warn("Failed to close catalog: %v", closeErr)
	}
	return err
}

// applyLogging configures the global logger.
func applyLogging(cfg *LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	if err := logger.SetOutput(cfg.Output); err != nil {
		return fmt.Errorf("failed to set log output: %w", err)
	}
	return nil
}

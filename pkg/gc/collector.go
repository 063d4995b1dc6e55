// Package gc reconciles the object store with the catalog by removing
// bytes that no catalog row references (orphans).
//
// Orphans appear when the two non-transactional writes of an upload or a
// delete are split by a failure:
//   - the bytes were stored but the catalog row could not be written
//   - the row was deleted but removing the bytes failed
//   - the process died between the two steps
//
// The file service records the first two cases in the catalog's orphan
// log, and the collector drains that log on every run. The third case is
// only found by a full sweep, which compares the object store listing with
// the keys referenced by the catalog.
package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/marmos91/dittostore/pkg/store/object"
)

// Collector performs periodic garbage collection of orphaned bytes.
//
// Thread Safety: Safe for concurrent use. Runs never overlap; a RunNow
// during a periodic run waits for it to finish.
type Collector struct {
	catalog catalog.Catalog
	store   object.ObjectStore
	config  Config
	metrics Metrics
	now     func() time.Time

	runMu sync.Mutex

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether periodic collection runs (default: false).
	// RunNow works either way.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is how often to run garbage collection (default: 1h)
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// GracePeriod protects recently written bytes from a full sweep, so an
	// upload whose row is not yet committed is never reaped (default: 1h).
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period"`

	// FullSweep also lists the whole object store and removes unreferenced
	// bytes that are older than GracePeriod. Expensive on large stores.
	FullSweep bool `mapstructure:"full_sweep" yaml:"full_sweep"`

	// DryRun logs what would be deleted without deleting (default: false)
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`

	// BatchSize is how many keys are deleted between cancellation checks
	// (default: 1000)
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// Option customises a Collector.
type Option func(*Collector)

// WithMetrics reports every run to m.
func WithMetrics(m Metrics) Option {
	return func(c *Collector) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock replaces time.Now when judging the grace period.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a new garbage collector.
//
// The collector will be initialized but not started. Call Start() to begin
// background garbage collection.
//
// Parameters:
//   - cat: Catalog holding the rows and the orphan log
//   - store: Object store to scan and delete orphaned bytes from
//   - config: Garbage collection configuration
//
// Returns:
//   - *Collector: Initialized collector (not started)
//   - error: If a dependency is missing or the configuration is invalid
func NewCollector(cat catalog.Catalog, store object.ObjectStore, config Config, opts ...Option) (*Collector, error) {
	if cat == nil || store == nil {
		return nil, errors.New("gc: catalog and object store are required")
	}
	if config.Interval < 0 || config.GracePeriod < 0 || config.BatchSize < 0 {
		return nil, fmt.Errorf("gc: negative interval, grace period or batch size")
	}

	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.GracePeriod == 0 {
		config.GracePeriod = time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 1000
	}

	c := &Collector{
		catalog: cat,
		store:   store,
		config:  config,
		metrics: noopMetrics{},
		now:     time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start begins background garbage collection. Subsequent calls are
// no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true

	logger.Info("Starting garbage collector: interval=%s grace_period=%s full_sweep=%v dry_run=%v",
		c.config.Interval, c.config.GracePeriod, c.config.FullSweep, c.config.DryRun)

	go c.worker()
}

// Stop stops the garbage collector and waits for an in-progress run to
// finish. Safe to call multiple times, and before Start.
//
// Parameters:
//   - ctx: Context for timeout
//
// Returns:
//   - error: The context error if it expires before shutdown completes
func (c *Collector) Stop(ctx context.Context) error {
	c.lifecycleMu.Lock()
	if c.stopped {
		c.lifecycleMu.Unlock()
		return nil
	}
	c.stopped = true
	started := c.started
	close(c.stopCh)
	c.lifecycleMu.Unlock()

	if !started {
		return nil
	}

	logger.Info("Stopping garbage collector...")
	select {
	case <-c.doneCh:
		logger.Info("Garbage collector stopped successfully")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate collection and blocks until it completes
// or ctx is cancelled.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running garbage collection (manual trigger)...")
	return c.run(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-c.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			stats, err := c.run(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) run(ctx context.Context) (*Stats, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stats, err := c.collect(ctx)
	c.metrics.ObserveRun(stats, err)
	return stats, err
}

// collect performs a single garbage collection run.
//
// The store listing and the orphan log are read before the referenced key
// set, so a row committed while the run is in progress is always seen and
// its bytes are kept.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	// ========================================================================
	// Phase 1: Gather candidates
	// ========================================================================

	logged, err := c.catalog.ListOrphans(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list orphan log: %w", err)
	}
	stats.LoggedCount = uint64(len(logged))

	var existing []object.ObjectInfo
	if c.config.FullSweep {
		existing, err = c.store.List(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to list object store: %w", err)
		}
		stats.ExistingCount = uint64(len(existing))
	}

	referenced, err := c.catalog.ReferencedKeys(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get referenced keys: %w", err)
	}
	stats.ReferencedCount = uint64(len(referenced))

	// ========================================================================
	// Phase 2: Decide what is orphaned
	// ========================================================================

	orphaned := make([]string, 0, len(logged))
	seen := make(map[string]struct{}, len(logged))
	var stale []string

	for _, rec := range logged {
		seen[rec.Key] = struct{}{}
		if _, ok := referenced[rec.Key]; ok {
			// The row was written after all.
			stale = append(stale, rec.Key)
			continue
		}
		orphaned = append(orphaned, rec.Key)
	}

	cutoff := c.now().Add(-c.config.GracePeriod)
	for _, info := range existing {
		if _, ok := referenced[info.Key]; ok {
			continue
		}
		if _, ok := seen[info.Key]; ok {
			continue
		}
		if info.ModTime.After(cutoff) {
			stats.RecentCount++
			continue
		}
		orphaned = append(orphaned, info.Key)
	}
	stats.OrphanedCount = uint64(len(orphaned))

	if c.config.DryRun {
		logDryRun(orphaned)
		return stats, nil
	}

	for _, key := range stale {
		if err := c.catalog.RemoveOrphan(ctx, key); err != nil {
			logger.Warn("GC: failed to clear stale orphan record %q: %v", key, err)
		}
	}

	if len(orphaned) == 0 {
		logger.Debug("GC: no orphaned bytes found")
		return stats, nil
	}

	// ========================================================================
	// Phase 3: Delete in batches
	// ========================================================================

	for i := 0; i < len(orphaned); i += c.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		end := min(i+c.config.BatchSize, len(orphaned))
		for _, key := range orphaned[i:end] {
			if err := c.store.Delete(ctx, key); err != nil {
				logger.Warn("GC: failed to delete %q: %v", key, err)
				stats.FailedCount++
				continue
			}
			if _, ok := seen[key]; ok {
				if err := c.catalog.RemoveOrphan(ctx, key); err != nil {
					logger.Warn("GC: deleted %q but could not clear its orphan record: %v", key, err)
				}
			}
			stats.DeletedCount++
		}

		logger.Debug("GC: processed keys %d-%d", i, end)
	}

	logger.Info("GC: Completed - deleted %d orphans, %d failed, duration=%s",
		stats.DeletedCount, stats.FailedCount, stats.Duration())
	return stats, nil
}

func logDryRun(keys []string) {
	logger.Info("GC: DRY RUN - Would delete %d orphans:", len(keys))
	for i, key := range keys {
		if i == 10 {
			logger.Info("  ... and %d more", len(keys)-10)
			break
		}
		logger.Info("  - %q", key)
	}
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime       time.Time // When collection started
	EndTime         time.Time // When collection ended
	LoggedCount     uint64    // Records found in the orphan log
	ExistingCount   uint64    // Objects listed by a full sweep
	ReferencedCount uint64    // Keys referenced by catalog rows
	RecentCount     uint64    // Unreferenced objects spared by the grace period
	OrphanedCount   uint64    // Orphans selected for deletion
	DeletedCount    uint64    // Orphans successfully deleted
	FailedCount     uint64    // Orphans that failed to delete
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("logged=%d existing=%d referenced=%d recent=%d orphaned=%d deleted=%d failed=%d duration=%s",
		s.LoggedCount, s.ExistingCount, s.ReferencedCount, s.RecentCount,
		s.OrphanedCount, s.DeletedCount, s.FailedCount, s.Duration())
}

package gc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittostore/pkg/catalog"
	catalogmemory "github.com/marmos91/dittostore/pkg/catalog/memory"
	objectmemory "github.com/marmos91/dittostore/pkg/store/object/memory"
)

type fixture struct {
	ctx     context.Context
	store   *objectmemory.MemoryObjectStore
	catalog *catalogmemory.MemoryCatalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := objectmemory.NewMemoryObjectStore(ctx, objectmemory.MemoryObjectStoreConfig{})
	require.NoError(t, err)
	return &fixture{ctx: ctx, store: store, catalog: catalogmemory.NewMemoryCatalog()}
}

func (f *fixture) put(t *testing.T, key string) {
	t.Helper()
	_, err := f.store.Put(f.ctx, key, strings.NewReader("bytes of "+key))
	require.NoError(t, err)
}

func (f *fixture) row(t *testing.T, id, key string) {
	t.Helper()
	f.put(t, key)
	_, err := f.catalog.Create(f.ctx, &catalog.StoredObject{ID: id, Tenant: "acme", Module: "chat", Key: key})
	require.NoError(t, err)
}

func (f *fixture) logOrphan(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, f.catalog.RecordOrphan(f.ctx, catalog.OrphanRecord{Key: key, Tenant: "acme", Reason: "test"}))
}

func (f *fixture) exists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := f.store.Exists(f.ctx, key)
	require.NoError(t, err)
	return ok
}

func (f *fixture) collector(t *testing.T, cfg Config, opts ...Option) *Collector {
	t.Helper()
	c, err := NewCollector(f.catalog, f.store, cfg, opts...)
	require.NoError(t, err)
	return c
}

// later is a clock far enough ahead that every stored object is past the
// default grace period.
func later() time.Time { return time.Now().Add(2 * time.Hour) }

type recordingMetrics struct {
	runs chan *Stats
}

func (m *recordingMetrics) ObserveRun(stats *Stats, _ error) {
	select {
	case m.runs <- stats:
	default:
	}
}

func TestRunNow_DeletesLoggedOrphans(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a/orphan.bin")
	f.logOrphan(t, "a/orphan.bin")
	f.row(t, "obj-1", "a/kept.bin")

	stats, err := f.collector(t, Config{}).RunNow(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), stats.LoggedCount)
	assert.Equal(t, uint64(1), stats.DeletedCount)
	assert.False(t, f.exists(t, "a/orphan.bin"))
	assert.True(t, f.exists(t, "a/kept.bin"))

	recs, err := f.catalog.ListOrphans(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRunNow_LoggedButReferencedIsKept(t *testing.T) {
	f := newFixture(t)
	f.row(t, "obj-1", "a/late-commit.bin")
	f.logOrphan(t, "a/late-commit.bin")

	stats, err := f.collector(t, Config{}).RunNow(f.ctx)
	require.NoError(t, err)

	assert.Zero(t, stats.DeletedCount)
	assert.True(t, f.exists(t, "a/late-commit.bin"))

	recs, err := f.catalog.ListOrphans(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, recs, "stale record is cleared")
}

func TestRunNow_LoggedOrphanAlreadyGone(t *testing.T) {
	f := newFixture(t)
	f.logOrphan(t, "a/vanished.bin")

	stats, err := f.collector(t, Config{}).RunNow(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.DeletedCount, "delete is idempotent")

	recs, err := f.catalog.ListOrphans(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRunNow_WithoutFullSweepIgnoresUnlogged(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a/unlogged.bin")

	stats, err := f.collector(t, Config{}, WithClock(later)).RunNow(f.ctx)
	require.NoError(t, err)

	assert.Zero(t, stats.ExistingCount)
	assert.True(t, f.exists(t, "a/unlogged.bin"))
}

func TestRunNow_FullSweep(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a/unlogged.bin")
	f.row(t, "obj-1", "a/referenced.bin")

	stats, err := f.collector(t, Config{FullSweep: true}, WithClock(later)).RunNow(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.ExistingCount)
	assert.Equal(t, uint64(1), stats.ReferencedCount)
	assert.Equal(t, uint64(1), stats.DeletedCount)
	assert.False(t, f.exists(t, "a/unlogged.bin"))
	assert.True(t, f.exists(t, "a/referenced.bin"))
}

func TestRunNow_FullSweepHonoursGracePeriod(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a/in-flight.bin")

	stats, err := f.collector(t, Config{FullSweep: true, GracePeriod: time.Hour}).RunNow(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), stats.RecentCount)
	assert.Zero(t, stats.DeletedCount)
	assert.True(t, f.exists(t, "a/in-flight.bin"))
}

func TestRunNow_DryRun(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a/orphan.bin")
	f.logOrphan(t, "a/orphan.bin")
	f.put(t, "a/unlogged.bin")

	stats, err := f.collector(t, Config{FullSweep: true, DryRun: true}, WithClock(later)).RunNow(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.OrphanedCount)
	assert.Zero(t, stats.DeletedCount)
	assert.True(t, f.exists(t, "a/orphan.bin"))
	assert.True(t, f.exists(t, "a/unlogged.bin"))

	recs, err := f.catalog.ListOrphans(f.ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRunNow_SmallBatches(t *testing.T) {
	f := newFixture(t)
	for _, key := range []string{"o/1", "o/2", "o/3", "o/4", "o/5"} {
		f.put(t, key)
		f.logOrphan(t, key)
	}

	stats, err := f.collector(t, Config{BatchSize: 2}).RunNow(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stats.DeletedCount)

	infos, err := f.store.List(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestRunNow_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	_, err := f.collector(t, Config{}).RunNow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartStop_PeriodicRun(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a/orphan.bin")
	f.logOrphan(t, "a/orphan.bin")

	metrics := &recordingMetrics{runs: make(chan *Stats, 1)}
	c := f.collector(t, Config{Enabled: true, Interval: 10 * time.Millisecond}, WithMetrics(metrics))
	c.Start()
	c.Start()

	select {
	case stats := <-metrics.runs:
		assert.Equal(t, uint64(1), stats.DeletedCount)
	case <-time.After(5 * time.Second):
		t.Fatal("collector never ran")
	}

	ctx, cancel := context.WithTimeout(f.ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestStop_WithoutStart(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, Config{Enabled: true})
	assert.NoError(t, c.Stop(f.ctx))
}

func TestNewCollector_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewCollector(nil, f.store, Config{})
	assert.Error(t, err)

	_, err = NewCollector(f.catalog, f.store, Config{Interval: -time.Second})
	assert.Error(t, err)

	c := f.collector(t, Config{})
	assert.Equal(t, time.Hour, c.config.Interval)
	assert.Equal(t, time.Hour, c.config.GracePeriod)
	assert.Equal(t, 1000, c.config.BatchSize)
}

func TestStats_Summary(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Stats{StartTime: start, EndTime: start.Add(time.Second), DeletedCount: 3}
	assert.Equal(t, time.Second, s.Duration())
	assert.Contains(t, s.Summary(), "deleted=3")
}

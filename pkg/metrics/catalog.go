package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/dittostore/pkg/catalog"
)

// CatalogMetrics records catalog operations.
type CatalogMetrics interface {
	// RecordOperation records a completed catalog call.
	//
	// Parameters:
	//   - operation: Method name (e.g., "Create", "Supersede", "GetGrant")
	//   - duration: Time taken to complete the operation
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)
}

// catalogMetrics is the Prometheus implementation of CatalogMetrics.
type catalogMetrics struct {
	storeType         string
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewCatalogMetrics creates a Prometheus-backed CatalogMetrics, or nil when
// metrics are disabled.
//
// Parameters:
//   - storeType: Catalog backend ("memory", "badger"), used as a label
func NewCatalogMetrics(storeType string) CatalogMetrics {
	if !IsEnabled() {
		return nil
	}
	return newCatalogMetrics(GetRegistry(), storeType)
}

func newCatalogMetrics(reg prometheus.Registerer, storeType string) *catalogMetrics {
	return &catalogMetrics{
		storeType: storeType,
		operationsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostore_catalog_operations_total",
				Help: "Total number of catalog operations by store type, operation, and status",
			},
			[]string{"store_type", "operation", "status"},
		)),
		operationDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittostore_catalog_operation_duration_seconds",
				Help:    "Duration of catalog operations in seconds",
				Buckets: durationBuckets,
			},
			[]string{"store_type", "operation"},
		)),
	}
}

func (m *catalogMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	// A missing row or a stale version is an answer, not a failure.
	if code, ok := catalog.CodeOf(err); ok && code != catalog.ErrIOError {
		err = nil
	}
	m.operationsTotal.WithLabelValues(m.storeType, operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(m.storeType, operation).Observe(duration.Seconds())
}

// InstrumentCatalog wraps cat so every call is reported to m. A nil m
// returns cat unchanged.
func InstrumentCatalog(cat catalog.Catalog, m CatalogMetrics) catalog.Catalog {
	if m == nil {
		return cat
	}
	return &instrumentedCatalog{next: cat, metrics: m}
}

var _ catalog.Catalog = (*instrumentedCatalog)(nil)

type instrumentedCatalog struct {
	next    catalog.Catalog
	metrics CatalogMetrics
}

func (c *instrumentedCatalog) observe(op string, start time.Time, err error) {
	c.metrics.RecordOperation(op, time.Since(start), err)
}

func (c *instrumentedCatalog) Create(ctx context.Context, obj *catalog.StoredObject) (*catalog.StoredObject, error) {
	start := time.Now()
	res, err := c.next.Create(ctx, obj)
	c.observe("Create", start, err)
	return res, err
}

func (c *instrumentedCatalog) Get(ctx context.Context, tenant, id string) (*catalog.StoredObject, error) {
	start := time.Now()
	res, err := c.next.Get(ctx, tenant, id)
	c.observe("Get", start, err)
	return res, err
}

func (c *instrumentedCatalog) List(ctx context.Context, filter catalog.Filter) ([]*catalog.StoredObject, error) {
	start := time.Now()
	res, err := c.next.List(ctx, filter)
	c.observe("List", start, err)
	return res, err
}

func (c *instrumentedCatalog) Versions(ctx context.Context, tenant, lineageID string) ([]*catalog.StoredObject, error) {
	start := time.Now()
	res, err := c.next.Versions(ctx, tenant, lineageID)
	c.observe("Versions", start, err)
	return res, err
}

func (c *instrumentedCatalog) Supersede(ctx context.Context, tenant, oldID string, next *catalog.StoredObject) (*catalog.StoredObject, error) {
	start := time.Now()
	res, err := c.next.Supersede(ctx, tenant, oldID, next)
	c.observe("Supersede", start, err)
	return res, err
}

func (c *instrumentedCatalog) Delete(ctx context.Context, tenant, id string) error {
	start := time.Now()
	err := c.next.Delete(ctx, tenant, id)
	c.observe("Delete", start, err)
	return err
}

func (c *instrumentedCatalog) Touch(ctx context.Context, tenant, id string, at time.Time) error {
	start := time.Now()
	err := c.next.Touch(ctx, tenant, id, at)
	c.observe("Touch", start, err)
	return err
}

func (c *instrumentedCatalog) ReferencedKeys(ctx context.Context) (map[string]struct{}, error) {
	start := time.Now()
	res, err := c.next.ReferencedKeys(ctx)
	c.observe("ReferencedKeys", start, err)
	return res, err
}

func (c *instrumentedCatalog) CreateGrant(ctx context.Context, grant *catalog.ShareGrant) error {
	start := time.Now()
	err := c.next.CreateGrant(ctx, grant)
	c.observe("CreateGrant", start, err)
	return err
}

func (c *instrumentedCatalog) GetGrant(ctx context.Context, id string) (*catalog.ShareGrant, error) {
	start := time.Now()
	res, err := c.next.GetGrant(ctx, id)
	c.observe("GetGrant", start, err)
	return res, err
}

func (c *instrumentedCatalog) IncrementGrantDownloads(ctx context.Context, id string, now time.Time) (*catalog.ShareGrant, error) {
	start := time.Now()
	res, err := c.next.IncrementGrantDownloads(ctx, id, now)
	c.observe("IncrementGrantDownloads", start, err)
	return res, err
}

func (c *instrumentedCatalog) RevokeGrant(ctx context.Context, tenant, id string, at time.Time) (*catalog.ShareGrant, error) {
	start := time.Now()
	res, err := c.next.RevokeGrant(ctx, tenant, id, at)
	c.observe("RevokeGrant", start, err)
	return res, err
}

func (c *instrumentedCatalog) ListGrants(ctx context.Context, tenant, objectID string) ([]*catalog.ShareGrant, error) {
	start := time.Now()
	res, err := c.next.ListGrants(ctx, tenant, objectID)
	c.observe("ListGrants", start, err)
	return res, err
}

func (c *instrumentedCatalog) RecordOrphan(ctx context.Context, rec catalog.OrphanRecord) error {
	start := time.Now()
	err := c.next.RecordOrphan(ctx, rec)
	c.observe("RecordOrphan", start, err)
	return err
}

func (c *instrumentedCatalog) ListOrphans(ctx context.Context) ([]catalog.OrphanRecord, error) {
	start := time.Now()
	res, err := c.next.ListOrphans(ctx)
	c.observe("ListOrphans", start, err)
	return res, err
}

func (c *instrumentedCatalog) RemoveOrphan(ctx context.Context, key string) error {
	start := time.Now()
	err := c.next.RemoveOrphan(ctx, key)
	c.observe("RemoveOrphan", start, err)
	return err
}

func (c *instrumentedCatalog) Close() error {
	return c.next.Close()
}

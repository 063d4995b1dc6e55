// Package memory implements the catalog in process memory.
//
// A single read-write mutex guards all maps, which makes Supersede and the
// grant counter trivially atomic. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittostore/pkg/catalog"
)

// MemoryCatalog implements catalog.Catalog with maps.
type MemoryCatalog struct {
	mu sync.RWMutex

	objects map[string]*catalog.StoredObject

	// lineages maps a lineage id to the ids of its rows.
	lineages map[string]map[string]struct{}

	grants  map[string]*catalog.ShareGrant
	orphans map[string]catalog.OrphanRecord

	closed bool
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		objects:  make(map[string]*catalog.StoredObject),
		lineages: make(map[string]map[string]struct{}),
		grants:   make(map[string]*catalog.ShareGrant),
		orphans:  make(map[string]catalog.OrphanRecord),
	}
}

var _ catalog.Catalog = (*MemoryCatalog)(nil)

func (c *MemoryCatalog) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed {
		return catalog.NewError(catalog.ErrIOError, "catalog closed", "")
	}
	return nil
}

// lookup returns the stored row (not a copy) if it belongs to tenant.
func (c *MemoryCatalog) lookup(tenant, id string) (*catalog.StoredObject, error) {
	obj, ok := c.objects[id]
	if !ok || obj.Tenant != tenant {
		return nil, catalog.NewError(catalog.ErrNotFound, "object not found", id)
	}
	return obj, nil
}

func (c *MemoryCatalog) insert(obj *catalog.StoredObject) {
	c.objects[obj.ID] = obj
	ids, ok := c.lineages[obj.LineageID]
	if !ok {
		ids = make(map[string]struct{})
		c.lineages[obj.LineageID] = ids
	}
	ids[obj.ID] = struct{}{}
}

// Create implements catalog.Catalog.
func (c *MemoryCatalog) Create(ctx context.Context, obj *catalog.StoredObject) (*catalog.StoredObject, error) {
	row := obj.Clone()
	if err := catalog.PrepareCreate(row); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if _, exists := c.objects[row.ID]; exists {
		return nil, catalog.NewError(catalog.ErrAlreadyExists, "object already exists", row.ID)
	}

	c.insert(row)
	return row.Clone(), nil
}

// Get implements catalog.Catalog.
func (c *MemoryCatalog) Get(ctx context.Context, tenant, id string) (*catalog.StoredObject, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}
	obj, err := c.lookup(tenant, id)
	if err != nil {
		return nil, err
	}
	return obj.Clone(), nil
}

// List implements catalog.Catalog.
func (c *MemoryCatalog) List(ctx context.Context, filter catalog.Filter) ([]*catalog.StoredObject, error) {
	catalog.RequireTenant(filter)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}

	var rows []*catalog.StoredObject
	for _, obj := range c.objects {
		if filter.Matches(obj) {
			rows = append(rows, obj.Clone())
		}
	}
	catalog.SortObjects(rows)
	return rows, nil
}

// Versions implements catalog.Catalog.
func (c *MemoryCatalog) Versions(ctx context.Context, tenant, lineageID string) ([]*catalog.StoredObject, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}

	var rows []*catalog.StoredObject
	for id := range c.lineages[lineageID] {
		if obj := c.objects[id]; obj.Tenant == tenant {
			rows = append(rows, obj.Clone())
		}
	}
	if len(rows) == 0 {
		return nil, catalog.NewError(catalog.ErrNotFound, "lineage not found", lineageID)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
	return rows, nil
}

// Supersede implements catalog.Catalog.
func (c *MemoryCatalog) Supersede(ctx context.Context, tenant, oldID string, next *catalog.StoredObject) (*catalog.StoredObject, error) {
	row := next.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}

	old, err := c.lookup(tenant, oldID)
	if err != nil {
		return nil, err
	}
	if !old.IsLatest {
		return nil, catalog.NewError(catalog.ErrNotLatest, "version already superseded", oldID)
	}
	if err := catalog.PrepareSuccessor(old, row); err != nil {
		return nil, err
	}
	if _, exists := c.objects[row.ID]; exists {
		return nil, catalog.NewError(catalog.ErrAlreadyExists, "object already exists", row.ID)
	}

	old.IsLatest = false
	c.insert(row)
	return row.Clone(), nil
}

// Delete implements catalog.Catalog.
func (c *MemoryCatalog) Delete(ctx context.Context, tenant, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return err
	}

	obj, err := c.lookup(tenant, id)
	if err != nil {
		return err
	}

	delete(c.objects, id)
	ids := c.lineages[obj.LineageID]
	delete(ids, id)
	if len(ids) == 0 {
		delete(c.lineages, obj.LineageID)
		return nil
	}

	if obj.IsLatest {
		remaining := make([]*catalog.StoredObject, 0, len(ids))
		for rid := range ids {
			remaining = append(remaining, c.objects[rid])
		}
		catalog.NewestVersion(remaining).IsLatest = true
	}
	return nil
}

// Touch implements catalog.Catalog.
func (c *MemoryCatalog) Touch(ctx context.Context, tenant, id string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return err
	}
	obj, err := c.lookup(tenant, id)
	if err != nil {
		return err
	}
	at = at.UTC()
	obj.LastAccessedAt = &at
	return nil
}

// ReferencedKeys implements catalog.Catalog.
func (c *MemoryCatalog) ReferencedKeys(ctx context.Context) (map[string]struct{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(c.objects))
	for _, obj := range c.objects {
		keys[obj.Key] = struct{}{}
	}
	return keys, nil
}

// CreateGrant implements catalog.Catalog.
func (c *MemoryCatalog) CreateGrant(ctx context.Context, grant *catalog.ShareGrant) error {
	g := grant.Clone()
	if err := catalog.ValidateGrant(g); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return err
	}
	if _, exists := c.grants[g.ID]; exists {
		return catalog.NewError(catalog.ErrAlreadyExists, "grant already exists", g.ID)
	}
	c.grants[g.ID] = g
	grant.CreatedAt = g.CreatedAt
	return nil
}

// GetGrant implements catalog.Catalog.
func (c *MemoryCatalog) GetGrant(ctx context.Context, id string) (*catalog.ShareGrant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}
	g, ok := c.grants[id]
	if !ok {
		return nil, catalog.NewError(catalog.ErrNotFound, "grant not found", id)
	}
	return g.Clone(), nil
}

// IncrementGrantDownloads implements catalog.Catalog.
func (c *MemoryCatalog) IncrementGrantDownloads(ctx context.Context, id string, now time.Time) (*catalog.ShareGrant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}
	g, ok := c.grants[id]
	if !ok {
		return nil, catalog.NewError(catalog.ErrNotFound, "grant not found", id)
	}
	if err := catalog.CheckGrantActive(g, now); err != nil {
		return nil, err
	}
	g.Downloads++
	return g.Clone(), nil
}

// RevokeGrant implements catalog.Catalog.
func (c *MemoryCatalog) RevokeGrant(ctx context.Context, tenant, id string, at time.Time) (*catalog.ShareGrant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}
	g, ok := c.grants[id]
	if !ok || g.Tenant != tenant {
		return nil, catalog.NewError(catalog.ErrNotFound, "grant not found", id)
	}
	if g.RevokedAt == nil {
		at = at.UTC()
		g.RevokedAt = &at
	}
	return g.Clone(), nil
}

// ListGrants implements catalog.Catalog.
func (c *MemoryCatalog) ListGrants(ctx context.Context, tenant, objectID string) ([]*catalog.ShareGrant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}
	var grants []*catalog.ShareGrant
	for _, g := range c.grants {
		if g.Tenant == tenant && g.ObjectID == objectID {
			grants = append(grants, g.Clone())
		}
	}
	catalog.SortGrants(grants)
	return grants, nil
}

// RecordOrphan implements catalog.Catalog.
func (c *MemoryCatalog) RecordOrphan(ctx context.Context, rec catalog.OrphanRecord) error {
	if rec.Key == "" {
		return catalog.NewError(catalog.ErrInvalidArgument, "orphan key is required", "")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return err
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	c.orphans[rec.Key] = rec
	return nil
}

// ListOrphans implements catalog.Catalog.
func (c *MemoryCatalog) ListOrphans(ctx context.Context) ([]catalog.OrphanRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.check(ctx); err != nil {
		return nil, err
	}
	recs := make([]catalog.OrphanRecord, 0, len(c.orphans))
	for _, rec := range c.orphans {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs, nil
}

// RemoveOrphan implements catalog.Catalog.
func (c *MemoryCatalog) RemoveOrphan(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx); err != nil {
		return err
	}
	delete(c.orphans, key)
	return nil
}

// Close implements catalog.Catalog.
func (c *MemoryCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

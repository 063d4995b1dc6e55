package badger

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittostore/pkg/catalog"
)

func loadGrant(txn *badger.Txn, id string) (*catalog.ShareGrant, error) {
	var g catalog.ShareGrant
	if err := getJSON(txn, keyGrant(id), &g); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, catalog.NewError(catalog.ErrNotFound, "grant not found", id)
		}
		return nil, err
	}
	return &g, nil
}

// CreateGrant implements catalog.Catalog.
func (s *BadgerCatalog) CreateGrant(ctx context.Context, grant *catalog.ShareGrant) error {
	g := grant.Clone()
	if err := catalog.ValidateGrant(g); err != nil {
		return err
	}

	err := s.update(ctx, "create grant", func(txn *badger.Txn) error {
		if _, err := txn.Get(keyGrant(g.ID)); err == nil {
			return catalog.NewError(catalog.ErrAlreadyExists, "grant already exists", g.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, keyGrant(g.ID), g); err != nil {
			return err
		}
		return txn.Set(keyGrantOf(g.ObjectID, g.ID), nil)
	})
	if err != nil {
		return err
	}

	grant.CreatedAt = g.CreatedAt
	return nil
}

// GetGrant implements catalog.Catalog.
func (s *BadgerCatalog) GetGrant(ctx context.Context, id string) (*catalog.ShareGrant, error) {
	var g *catalog.ShareGrant
	err := s.view(ctx, "get grant", func(txn *badger.Txn) error {
		var err error
		g, err = loadGrant(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// IncrementGrantDownloads implements catalog.Catalog.
//
// The activity check and the increment share one transaction, so a grant
// revoked concurrently is either counted before the revocation or denied.
func (s *BadgerCatalog) IncrementGrantDownloads(ctx context.Context, id string, now time.Time) (*catalog.ShareGrant, error) {
	var result *catalog.ShareGrant
	err := s.update(ctx, "count grant download", func(txn *badger.Txn) error {
		g, err := loadGrant(txn, id)
		if err != nil {
			return err
		}
		if err := catalog.CheckGrantActive(g, now); err != nil {
			return err
		}
		g.Downloads++
		if err := setJSON(txn, keyGrant(id), g); err != nil {
			return err
		}
		result = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RevokeGrant implements catalog.Catalog.
func (s *BadgerCatalog) RevokeGrant(ctx context.Context, tenant, id string, at time.Time) (*catalog.ShareGrant, error) {
	var result *catalog.ShareGrant
	err := s.update(ctx, "revoke grant", func(txn *badger.Txn) error {
		g, err := loadGrant(txn, id)
		if err != nil {
			return err
		}
		if g.Tenant != tenant {
			return catalog.NewError(catalog.ErrNotFound, "grant not found", id)
		}
		if g.RevokedAt == nil {
			ts := at.UTC()
			g.RevokedAt = &ts
			if err := setJSON(txn, keyGrant(id), g); err != nil {
				return err
			}
		}
		result = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListGrants implements catalog.Catalog.
func (s *BadgerCatalog) ListGrants(ctx context.Context, tenant, objectID string) ([]*catalog.ShareGrant, error) {
	var grants []*catalog.ShareGrant
	err := s.view(ctx, "list grants", func(txn *badger.Txn) error {
		for _, grantID := range scanKeys(txn, keyGrantOfPrefix(objectID)) {
			g, err := loadGrant(txn, grantID)
			if err != nil {
				return err
			}
			if g.Tenant == tenant {
				grants = append(grants, g)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	catalog.SortGrants(grants)
	return grants, nil
}

// ============================================================================
// Orphan log
// ============================================================================

// RecordOrphan implements catalog.Catalog.
func (s *BadgerCatalog) RecordOrphan(ctx context.Context, rec catalog.OrphanRecord) error {
	if rec.Key == "" {
		return catalog.NewError(catalog.ErrInvalidArgument, "orphan key is required", "")
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	return s.update(ctx, "record orphan", func(txn *badger.Txn) error {
		return setJSON(txn, keyOrphan(rec.Key), rec)
	})
}

// ListOrphans implements catalog.Catalog.
func (s *BadgerCatalog) ListOrphans(ctx context.Context) ([]catalog.OrphanRecord, error) {
	var recs []catalog.OrphanRecord
	err := s.view(ctx, "list orphans", func(txn *badger.Txn) error {
		values, err := scanValues(txn, []byte(prefixOrphan))
		if err != nil {
			return err
		}
		for _, val := range values {
			var rec catalog.OrphanRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs, nil
}

// RemoveOrphan implements catalog.Catalog.
func (s *BadgerCatalog) RemoveOrphan(ctx context.Context, key string) error {
	return s.update(ctx, "remove orphan", func(txn *badger.Txn) error {
		return txn.Delete(keyOrphan(key))
	})
}

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittostore/pkg/catalog"
)

// loadObject reads a row and enforces tenant scoping.
func loadObject(txn *badger.Txn, tenant, id string) (*catalog.StoredObject, error) {
	var obj catalog.StoredObject
	if err := getJSON(txn, keyObject(id), &obj); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, catalog.NewError(catalog.ErrNotFound, "object not found", id)
		}
		return nil, err
	}
	if obj.Tenant != tenant {
		return nil, catalog.NewError(catalog.ErrNotFound, "object not found", id)
	}
	return &obj, nil
}

// insertObject writes a new row with its indexes.
func insertObject(txn *badger.Txn, obj *catalog.StoredObject) error {
	if _, err := txn.Get(keyObject(obj.ID)); err == nil {
		return catalog.NewError(catalog.ErrAlreadyExists, "object already exists", obj.ID)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	if err := setJSON(txn, keyObject(obj.ID), obj); err != nil {
		return err
	}
	if err := txn.Set(keyIndex(obj.Tenant, obj.Module, obj.ID), nil); err != nil {
		return err
	}
	return txn.Set(keyLineage(obj.LineageID, obj.Version), []byte(obj.ID))
}

// Create implements catalog.Catalog.
func (s *BadgerCatalog) Create(ctx context.Context, obj *catalog.StoredObject) (*catalog.StoredObject, error) {
	row := obj.Clone()
	if err := catalog.PrepareCreate(row); err != nil {
		return nil, err
	}

	err := s.update(ctx, "create object", func(txn *badger.Txn) error {
		return insertObject(txn, row)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Get implements catalog.Catalog.
func (s *BadgerCatalog) Get(ctx context.Context, tenant, id string) (*catalog.StoredObject, error) {
	var obj *catalog.StoredObject
	err := s.view(ctx, "get object", func(txn *badger.Txn) error {
		var err error
		obj, err = loadObject(txn, tenant, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// List implements catalog.Catalog.
func (s *BadgerCatalog) List(ctx context.Context, filter catalog.Filter) ([]*catalog.StoredObject, error) {
	catalog.RequireTenant(filter)

	var rows []*catalog.StoredObject
	err := s.view(ctx, "list objects", func(txn *badger.Txn) error {
		for _, suffix := range scanKeys(txn, keyIndexPrefix(filter.Tenant, filter.Module)) {
			// Without a module in the prefix the suffix is "{module}\x00{id}".
			id := suffix[strings.LastIndexByte(suffix, 0)+1:]

			obj, err := loadObject(txn, filter.Tenant, id)
			if catalog.IsNotFound(err) {
				// Index entry of another tenant whose name extends this one.
				continue
			}
			if err != nil {
				return err
			}
			if filter.Matches(obj) {
				rows = append(rows, obj)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	catalog.SortObjects(rows)
	return rows, nil
}

// Versions implements catalog.Catalog.
func (s *BadgerCatalog) Versions(ctx context.Context, tenant, lineageID string) ([]*catalog.StoredObject, error) {
	var rows []*catalog.StoredObject
	err := s.view(ctx, "list versions", func(txn *badger.Txn) error {
		ids, err := lineageIDs(txn, lineageID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			obj, err := loadObject(txn, tenant, id)
			if catalog.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			rows = append(rows, obj)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, catalog.NewError(catalog.ErrNotFound, "lineage not found", lineageID)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
	return rows, nil
}

// lineageIDs returns the object ids of a lineage in version order.
func lineageIDs(txn *badger.Txn, lineageID string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = keyLineagePrefix(lineageID)

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		ids = append(ids, string(val))
	}
	return ids, nil
}

// Supersede implements catalog.Catalog.
func (s *BadgerCatalog) Supersede(ctx context.Context, tenant, oldID string, next *catalog.StoredObject) (*catalog.StoredObject, error) {
	var result *catalog.StoredObject

	err := s.update(ctx, "supersede object", func(txn *badger.Txn) error {
		// ====================================================================
		// Step 1: Compare - the old row must still be latest
		// ====================================================================

		old, err := loadObject(txn, tenant, oldID)
		if err != nil {
			return err
		}
		if !old.IsLatest {
			return catalog.NewError(catalog.ErrNotLatest, "version already superseded", oldID)
		}

		row := next.Clone()
		if err := catalog.PrepareSuccessor(old, row); err != nil {
			return err
		}

		// ====================================================================
		// Step 2: Swap - flip the old row and insert the successor
		// ====================================================================

		old.IsLatest = false
		if err := setJSON(txn, keyObject(old.ID), old); err != nil {
			return err
		}
		if err := insertObject(txn, row); err != nil {
			return err
		}

		result = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete implements catalog.Catalog.
func (s *BadgerCatalog) Delete(ctx context.Context, tenant, id string) error {
	return s.update(ctx, "delete object", func(txn *badger.Txn) error {
		obj, err := loadObject(txn, tenant, id)
		if err != nil {
			return err
		}

		if err := txn.Delete(keyObject(id)); err != nil {
			return err
		}
		if err := txn.Delete(keyIndex(obj.Tenant, obj.Module, id)); err != nil {
			return err
		}
		if err := txn.Delete(keyLineage(obj.LineageID, obj.Version)); err != nil {
			return err
		}

		if !obj.IsLatest {
			return nil
		}

		// Promote the newest remaining version.
		ids, err := lineageIDs(txn, obj.LineageID)
		if err != nil {
			return err
		}
		var remaining []*catalog.StoredObject
		for _, rid := range ids {
			if rid == id {
				continue
			}
			row, err := loadObject(txn, tenant, rid)
			if err != nil {
				return err
			}
			remaining = append(remaining, row)
		}

		newest := catalog.NewestVersion(remaining)
		if newest == nil {
			return nil
		}
		newest.IsLatest = true
		return setJSON(txn, keyObject(newest.ID), newest)
	})
}

// Touch implements catalog.Catalog.
func (s *BadgerCatalog) Touch(ctx context.Context, tenant, id string, at time.Time) error {
	return s.update(ctx, "touch object", func(txn *badger.Txn) error {
		obj, err := loadObject(txn, tenant, id)
		if err != nil {
			return err
		}
		ts := at.UTC()
		obj.LastAccessedAt = &ts
		return setJSON(txn, keyObject(id), obj)
	})
}

// ReferencedKeys implements catalog.Catalog.
func (s *BadgerCatalog) ReferencedKeys(ctx context.Context) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := s.view(ctx, "referenced keys", func(txn *badger.Txn) error {
		values, err := scanValues(txn, []byte(prefixObject))
		if err != nil {
			return err
		}
		for _, val := range values {
			var obj catalog.StoredObject
			if err := json.Unmarshal(val, &obj); err != nil {
				return err
			}
			keys[obj.Key] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Package catalog is the system of record for stored objects: ownership,
// size, MIME type, descriptive metadata, the version chain and the
// permission set of every object, plus share grants and the orphan log.
//
// Backends live in sub-packages (memory, badger) and are verified by the
// shared suite in catalog/testing.
package catalog

import (
	"context"
	"time"
)

// Catalog persists StoredObject rows, share grants and orphan records.
//
// Tenant Scoping:
// Every object read takes the tenant explicitly. A row that belongs to a
// different tenant is reported as ErrNotFound, never returned. List panics
// when Filter.Tenant is empty: an unscoped listing is a programming error.
//
// Versioning:
// Exactly one row per lineage has IsLatest set while the lineage has any
// rows. Supersede performs the flip of the old row and the insert of the new
// one as a single atomic compare-and-swap, so of N concurrent supersedes of
// the same version exactly one succeeds and the rest get ErrNotLatest.
//
// Returned rows are copies; mutating them does not affect the catalog.
//
// Thread Safety:
// Implementations must be safe for concurrent use.
type Catalog interface {
	// ========================================================================
	// Objects
	// ========================================================================

	// Create inserts version 1 of a new lineage. ID, Tenant, Module and Key
	// are required. Version, IsLatest, LineageID and PreviousVersionID are
	// set by the catalog.
	//
	// Errors: ErrInvalidArgument, ErrAlreadyExists, ErrIOError.
	Create(ctx context.Context, obj *StoredObject) (*StoredObject, error)

	// Get returns the row with id if it belongs to tenant.
	//
	// Errors: ErrNotFound, ErrIOError.
	Get(ctx context.Context, tenant, id string) (*StoredObject, error)

	// List returns rows matching filter, oldest first. Only latest versions
	// are returned unless filter.IncludeHistory is set.
	//
	// Panics if filter.Tenant is empty.
	List(ctx context.Context, filter Filter) ([]*StoredObject, error)

	// Versions returns every remaining version of a lineage ordered by
	// version number.
	//
	// Errors: ErrNotFound when the lineage has no rows for tenant.
	Versions(ctx context.Context, tenant, lineageID string) ([]*StoredObject, error)

	// Supersede atomically marks oldID as no longer latest and inserts next
	// as its successor with Version = old.Version+1 and
	// PreviousVersionID = oldID. Tenant, module, entity and lineage are
	// inherited from the old row.
	//
	// Errors: ErrNotFound, ErrNotLatest, ErrInvalidArgument,
	// ErrAlreadyExists, ErrIOError.
	Supersede(ctx context.Context, tenant, oldID string, next *StoredObject) (*StoredObject, error)

	// Delete removes a row. Deleting the latest version promotes the newest
	// remaining version of the lineage to latest.
	//
	// Errors: ErrNotFound, ErrIOError.
	Delete(ctx context.Context, tenant, id string) error

	// Touch records an access time without changing UpdatedAt.
	Touch(ctx context.Context, tenant, id string, at time.Time) error

	// ReferencedKeys returns the storage key of every row of every tenant.
	// It backs orphan reconciliation.
	ReferencedKeys(ctx context.Context) (map[string]struct{}, error)

	// ========================================================================
	// Share grants
	// ========================================================================

	// CreateGrant inserts a new grant.
	//
	// Errors: ErrInvalidArgument, ErrAlreadyExists, ErrIOError.
	CreateGrant(ctx context.Context, grant *ShareGrant) error

	// GetGrant returns a grant by id. Grant ids are bearer tokens, so this
	// lookup is not tenant-scoped.
	GetGrant(ctx context.Context, id string) (*ShareGrant, error)

	// IncrementGrantDownloads re-checks the grant at now and increments its
	// download counter in the same atomic step.
	//
	// Errors: ErrNotFound, ErrGrantInactive (expired or revoked), ErrIOError.
	IncrementGrantDownloads(ctx context.Context, id string, now time.Time) (*ShareGrant, error)

	// RevokeGrant marks a grant revoked at the given time. Revoking an
	// already revoked grant keeps the original revocation time.
	RevokeGrant(ctx context.Context, tenant, id string, at time.Time) (*ShareGrant, error)

	// ListGrants returns every grant on an object, oldest first.
	ListGrants(ctx context.Context, tenant, objectID string) ([]*ShareGrant, error)

	// ========================================================================
	// Orphan log
	// ========================================================================

	// RecordOrphan adds or refreshes an entry in the orphan log.
	RecordOrphan(ctx context.Context, rec OrphanRecord) error

	// ListOrphans returns the orphan log ordered by key.
	ListOrphans(ctx context.Context) ([]OrphanRecord, error)

	// RemoveOrphan drops an entry. Removing a missing entry is not an error.
	RemoveOrphan(ctx context.Context, key string) error

	// Close releases resources held by the backend.
	Close() error
}

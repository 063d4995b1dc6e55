// Package files is the entry point of DittoStore: it turns an upload into
// stored bytes plus a catalog row, and serves every later read, version,
// share and delete on top of the lower layers.
//
// Ordering rules the service upholds:
//   - authorization happens before any byte is read or written
//   - on upload the bytes are stored before the row, so a row never points
//     at missing bytes; a row failure leaves orphan bytes that are reported
//   - on delete the row goes first, so a failure never leaves a row without
//     bytes; leftover bytes are reported as orphans
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/access"
	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/marmos91/dittostore/pkg/layout"
	"github.com/marmos91/dittostore/pkg/naming"
	"github.com/marmos91/dittostore/pkg/share"
	"github.com/marmos91/dittostore/pkg/store/object"
)

// Orphan reasons recorded in the catalog's orphan log.
const (
	OrphanCatalogWrite = "catalog_write_failed"
	OrphanByteDelete   = "byte_delete_failed"
	OrphanStaleVersion = "stale_replace"
)

// Config configures a Service.
type Config struct {
	// MaxSize is the upload size ceiling in bytes. Zero means unlimited.
	MaxSize int64
}

// Dependencies are the collaborators a Service composes. Store, Catalog,
// Resolver and Shares are required.
type Dependencies struct {
	Store    object.ObjectStore
	Catalog  catalog.Catalog
	Resolver *layout.Resolver
	Shares   *share.Manager

	// Namer supplies human-readable entity folder names. Optional.
	Namer naming.Namer

	// Policy supplies default permissions. Nil means nothing is public.
	Policy *access.Policy

	// Metrics is optional.
	Metrics Metrics
}

// Service implements the file operations.
//
// Thread Safety:
// Safe for concurrent use. The service holds no per-file state; atomicity
// comes from the exclusive Put of the object store and the catalog's
// Supersede.
type Service struct {
	store    object.ObjectStore
	catalog  catalog.Catalog
	resolver *layout.Resolver
	shares   *share.Manager
	namer    naming.Namer
	policy   *access.Policy
	metrics  Metrics
	maxSize  int64

	now   func() time.Time
	newID func() string
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the random object id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService wires a Service.
func NewService(deps Dependencies, cfg Config, opts ...Option) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("files: object store is required")
	case deps.Catalog == nil:
		return nil, errors.New("files: catalog is required")
	case deps.Resolver == nil:
		return nil, errors.New("files: layout resolver is required")
	case deps.Shares == nil:
		return nil, errors.New("files: share manager is required")
	case cfg.MaxSize < 0:
		return nil, fmt.Errorf("files: negative max size %d", cfg.MaxSize)
	}

	s := &Service{
		store:    deps.Store,
		catalog:  deps.Catalog,
		resolver: deps.Resolver,
		shares:   deps.Shares,
		namer:    deps.Namer,
		policy:   deps.Policy,
		metrics:  deps.Metrics,
		maxSize:  cfg.MaxSize,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	if s.policy == nil {
		s.policy = access.NewPolicy(nil)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ============================================================================
// Upload / Replace
// ============================================================================

// UploadRequest describes a new file.
type UploadRequest struct {
	Tenant     string
	Module     string
	EntityType string
	EntityID   string
	Filename   string
	Actor      string

	// MimeType overrides content sniffing when set.
	MimeType string

	Metadata catalog.Metadata

	// Permissions overrides the policy defaults when set.
	Permissions *catalog.PermissionSet

	// Body is read once. A seekable body can be replayed after a key
	// collision that happened mid-write.
	Body io.Reader
}

// Upload stores a new file as version 1 of a fresh lineage.
//
// Parameters:
//   - ctx: Context for cancellation
//   - req: File attributes and content
//
// Returns:
//   - *catalog.StoredObject: The created row
//   - error: ErrValidation, ErrTooLarge, ErrStorageUnavailable, or a
//     catalog error if the row could not be written
func (s *Service) Upload(ctx context.Context, req UploadRequest) (obj *catalog.StoredObject, err error) {
	start := time.Now()
	var size int64
	defer func() {
		s.metrics.ObserveUpload(req.Module, outcome(err), size, time.Since(start))
	}()

	// ========================================================================
	// Step 1: Validate before touching storage
	// ========================================================================

	switch {
	case req.Tenant == "":
		return nil, validation("tenant is required")
	case req.Module == "":
		return nil, validation("module is required")
	case req.Actor == "":
		return nil, validation("actor is required")
	case strings.TrimSpace(req.Filename) == "":
		return nil, validation("filename is required")
	case req.EntityID != "" && req.EntityType == "":
		return nil, validation("entity id %q given without entity type", req.EntityID)
	case req.Body == nil:
		return nil, validation("body is required")
	}
	for _, f := range []struct{ name, value string }{
		{"tenant", req.Tenant},
		{"module", req.Module},
		{"entity type", req.EntityType},
		{"entity id", req.EntityID},
		{"actor", req.Actor},
	} {
		if !catalog.ValidIdentifier(f.value) {
			return nil, validation("%s %q contains control characters", f.name, f.value)
		}
	}

	perms := s.policy.Defaults(req.Module, req.EntityType, req.Actor)
	if req.Permissions != nil {
		perms = req.Permissions.Clone()
	}

	// ========================================================================
	// Step 2: Store the bytes under a fresh key
	// ========================================================================

	layoutReq := layout.Request{
		Tenant:      req.Tenant,
		Module:      req.Module,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		EntityLabel: s.label(ctx, req.EntityType, req.EntityID),
		Filename:    req.Filename,
	}

	stored, err := s.storeBytes(ctx, layoutReq, req.Body, req.MimeType)
	if err != nil {
		return nil, err
	}
	size = stored.size

	// ========================================================================
	// Step 3: Record the row
	// ========================================================================

	now := s.now().UTC()
	row := &catalog.StoredObject{
		ID:          s.newID(),
		Tenant:      req.Tenant,
		Module:      req.Module,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Key:         stored.key,
		Path:        s.physicalPath(stored.key),
		Filename:    req.Filename,
		Extension:   extension(req.Filename),
		MimeType:    stored.mimeType,
		Size:        stored.size,
		Metadata:    req.Metadata,
		Permissions: perms,
		CreatedBy:   req.Actor,
		UpdatedBy:   req.Actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	obj, err = s.catalog.Create(ctx, row)
	if err != nil {
		s.reportOrphan(ctx, stored.key, req.Tenant, OrphanCatalogWrite, err)
		return nil, fromCatalog("record upload", err)
	}

	logger.Info("files: stored %q/%q %q (%s, %s) as %q",
		obj.Tenant, obj.Module, obj.Filename, humanize.Bytes(uint64(obj.Size)), obj.MimeType, obj.Key)
	return obj, nil
}

// ReplaceRequest describes a new version of an existing file.
type ReplaceRequest struct {
	Tenant string
	ID     string
	Actor  string

	// Filename defaults to the replaced version's filename.
	Filename string

	// MimeType overrides content sniffing when set.
	MimeType string

	// Metadata defaults to the replaced version's metadata.
	Metadata *catalog.Metadata

	Body io.Reader
}

// Replace stores a new version of the file identified by req.ID, which
// must be the latest version of its lineage. Permissions and the lineage's
// creator carry over; the replacing actor becomes the last modifier.
//
// Exactly one of several concurrent replaces of the same version wins; the
// others fail with ErrConflict and their bytes are removed.
func (s *Service) Replace(ctx context.Context, req ReplaceRequest) (obj *catalog.StoredObject, err error) {
	start := time.Now()
	var (
		size   int64
		module string
	)
	defer func() {
		s.metrics.ObserveUpload(module, outcome(err), size, time.Since(start))
	}()

	if req.Actor == "" {
		return nil, validation("actor is required")
	}
	if req.Body == nil {
		return nil, validation("body is required")
	}

	old, err := s.lookup(ctx, req.Tenant, req.ID)
	if err != nil {
		return nil, err
	}
	module = old.Module

	if err := access.Require(old, req.Actor, access.Write); err != nil {
		return nil, err
	}
	if !old.IsLatest {
		return nil, fmt.Errorf("%w: object %s is not the latest version", ErrConflict, old.ID)
	}

	filename := old.Filename
	if strings.TrimSpace(req.Filename) != "" {
		filename = req.Filename
	}
	meta := old.Metadata
	if req.Metadata != nil {
		meta = *req.Metadata
	}

	stored, err := s.storeBytes(ctx, layout.Request{
		Tenant:      old.Tenant,
		Module:      old.Module,
		EntityType:  old.EntityType,
		EntityID:    old.EntityID,
		EntityLabel: s.label(ctx, old.EntityType, old.EntityID),
		Filename:    filename,
	}, req.Body, req.MimeType)
	if err != nil {
		return nil, err
	}
	size = stored.size

	now := s.now().UTC()
	next := &catalog.StoredObject{
		ID:          s.newID(),
		Key:         stored.key,
		Path:        s.physicalPath(stored.key),
		Filename:    filename,
		Extension:   extension(filename),
		MimeType:    stored.mimeType,
		Size:        stored.size,
		Metadata:    meta,
		Permissions: old.Permissions.Clone(),
		CreatedBy:   old.CreatedBy,
		UpdatedBy:   req.Actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	obj, err = s.catalog.Supersede(ctx, old.Tenant, old.ID, next)
	if err != nil {
		if catalog.IsNotLatest(err) {
			// Lost the race: the bytes belong to nobody.
			if delErr := s.store.Delete(context.WithoutCancel(ctx), stored.key); delErr != nil {
				s.reportOrphan(ctx, stored.key, old.Tenant, OrphanStaleVersion, delErr)
			}
		} else {
			s.reportOrphan(ctx, stored.key, old.Tenant, OrphanCatalogWrite, err)
		}
		return nil, fromCatalog("record replacement", err)
	}

	logger.Info("files: %q/%q %q now at version %d (%s)",
		obj.Tenant, obj.Module, obj.Filename, obj.Version, humanize.Bytes(uint64(obj.Size)))
	return obj, nil
}

// storedBytes is the result of a successful Put.
type storedBytes struct {
	key      string
	size     int64
	mimeType string
}

// storeBytes resolves a key and writes body under it. A key collision is
// retried once with a fresh key, provided the body can be replayed.
func (s *Service) storeBytes(ctx context.Context, req layout.Request, body io.Reader, mimeType string) (*storedBytes, error) {
	p := newPayload(body, s.maxSize)

	if mimeType == "" {
		detected, err := p.sniff()
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		mimeType = detected
	}

	for attempt := 0; ; attempt++ {
		key, err := s.resolver.Resolve(req)
		if err != nil {
			return nil, fromLayout(err)
		}

		n, err := s.store.Put(ctx, key, p)
		if err == nil {
			return &storedBytes{key: key, size: n, mimeType: mimeType}, nil
		}
		if !errors.Is(err, object.ErrKeyExists) {
			return nil, fromStore("store upload", err)
		}

		if attempt > 0 || !p.rewind() {
			return nil, fmt.Errorf("%w: storage key collision on %s: %w", ErrStorageUnavailable, key, err)
		}
		logger.Warn("files: storage key collision on %q, retrying with a fresh key", key)
	}
}

// ============================================================================
// Reads
// ============================================================================

// Get returns the row of a file the actor may read.
func (s *Service) Get(ctx context.Context, tenant, id, actor string) (*catalog.StoredObject, error) {
	obj, err := s.lookup(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if err := access.Require(obj, actor, access.Read); err != nil {
		return nil, err
	}
	return obj, nil
}

// Open returns the row and content of a file the actor may read, and
// records the access time. The caller must close the reader.
func (s *Service) Open(ctx context.Context, tenant, id, actor string) (*catalog.StoredObject, io.ReadCloser, error) {
	obj, err := s.Get(ctx, tenant, id, actor)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.store.Get(ctx, obj.Key)
	if err != nil {
		return nil, nil, fromStore("open "+obj.ID, err)
	}

	if err := s.catalog.Touch(ctx, tenant, id, s.now()); err != nil {
		logger.Warn("files: failed to record access to %q: %v", id, err)
	}
	return obj, rc, nil
}

// ListRequest selects files. Tenant is required.
type ListRequest struct {
	Tenant         string
	Module         string
	EntityType     string
	EntityID       string
	IncludeHistory bool
	Actor          string
}

// List returns the files the actor may read, oldest first. Without
// IncludeHistory only latest versions are returned.
func (s *Service) List(ctx context.Context, req ListRequest) ([]*catalog.StoredObject, error) {
	if req.Tenant == "" {
		return nil, validation("tenant is required")
	}
	if req.EntityID != "" && req.EntityType == "" {
		return nil, validation("entity id %q given without entity type", req.EntityID)
	}

	rows, err := s.catalog.List(ctx, catalog.Filter{
		Tenant:         req.Tenant,
		Module:         req.Module,
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		IncludeHistory: req.IncludeHistory,
	})
	if err != nil {
		return nil, fromCatalog("list files", err)
	}
	return readable(rows, req.Actor), nil
}

// Versions returns every version the actor may read of the lineage id
// belongs to, oldest first.
func (s *Service) Versions(ctx context.Context, tenant, id, actor string) ([]*catalog.StoredObject, error) {
	obj, err := s.Get(ctx, tenant, id, actor)
	if err != nil {
		return nil, err
	}
	rows, err := s.catalog.Versions(ctx, tenant, obj.LineageID)
	if err != nil {
		return nil, fromCatalog("list versions", err)
	}
	return readable(rows, actor), nil
}

// ============================================================================
// Delete
// ============================================================================

// Delete removes one version of a file. Deleting the latest version makes
// the newest remaining version latest. Deleting an id that no longer
// exists returns ErrNotFound, so callers can treat a repeat as done.
func (s *Service) Delete(ctx context.Context, tenant, id, actor string) (err error) {
	var module string
	defer func() { s.metrics.ObserveDelete(module, outcome(err)) }()

	obj, err := s.lookup(ctx, tenant, id)
	if err != nil {
		return err
	}
	module = obj.Module

	if err := access.Require(obj, actor, access.Delete); err != nil {
		return err
	}

	if err := s.catalog.Delete(ctx, tenant, id); err != nil {
		return fromCatalog("delete row", err)
	}

	// The row is gone; a byte failure now only leaves garbage behind.
	if err := s.store.Delete(context.WithoutCancel(ctx), obj.Key); err != nil {
		s.reportOrphan(ctx, obj.Key, tenant, OrphanByteDelete, err)
	}

	logger.Info("files: deleted %q/%q %q version %d", obj.Tenant, obj.Module, obj.Filename, obj.Version)
	return nil
}

// ============================================================================
// Sharing
// ============================================================================

// Share issues a grant on a file the actor may share.
func (s *Service) Share(ctx context.Context, tenant, id, actor string, req share.Request) (*catalog.ShareGrant, error) {
	obj, err := s.lookup(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	grant, err := s.shares.Share(ctx, obj, actor, req)
	if err != nil {
		return nil, s.fromShare(err)
	}
	return grant, nil
}

// ResolveShare validates a grant and its access code. Denials are
// *share.DenialError.
func (s *Service) ResolveShare(ctx context.Context, grantID, code string) (*share.Resolution, error) {
	res, err := s.shares.Resolve(ctx, grantID, code)
	if err != nil {
		return nil, s.fromShare(err)
	}
	return res, nil
}

// OpenShare resolves a grant and opens the shared content. The caller
// must close the reader.
func (s *Service) OpenShare(ctx context.Context, grantID, code string) (*share.Resolution, io.ReadCloser, error) {
	res, err := s.ResolveShare(ctx, grantID, code)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, res.Object.Key)
	if err != nil {
		return nil, nil, fromStore("open shared "+res.Object.ID, err)
	}
	return res, rc, nil
}

// RevokeShare revokes a grant of a file the actor may share.
func (s *Service) RevokeShare(ctx context.Context, tenant, id, actor, grantID string) (*catalog.ShareGrant, error) {
	obj, err := s.lookup(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	grant, err := s.shares.Revoke(ctx, obj, actor, grantID)
	if err != nil {
		return nil, s.fromShare(err)
	}
	return grant, nil
}

// ListShares returns every grant, active or not, of a file the actor may
// share.
func (s *Service) ListShares(ctx context.Context, tenant, id, actor string) ([]*catalog.ShareGrant, error) {
	obj, err := s.lookup(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	grants, err := s.shares.List(ctx, obj, actor)
	if err != nil {
		return nil, s.fromShare(err)
	}
	return grants, nil
}

// ============================================================================
// Helpers
// ============================================================================

// lookup fetches a row, mapping a missing or foreign row to ErrNotFound.
func (s *Service) lookup(ctx context.Context, tenant, id string) (*catalog.StoredObject, error) {
	if tenant == "" {
		return nil, validation("tenant is required")
	}
	if id == "" {
		return nil, validation("object id is required")
	}
	obj, err := s.catalog.Get(ctx, tenant, id)
	if err != nil {
		return nil, fromCatalog("get "+id, err)
	}
	return obj, nil
}

func (s *Service) fromShare(err error) error {
	switch {
	case share.IsDenied(err), errors.Is(err, ErrUnauthorized):
		return err
	case errors.Is(err, share.ErrInvalidGrant):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return fromCatalog("share", err)
	}
}

// label asks the namer for the entity's folder name. An unavailable label
// is not an error: the layout falls back to the entity id.
func (s *Service) label(ctx context.Context, entityType, entityID string) string {
	if s.namer == nil || entityType == "" || entityID == "" {
		return ""
	}
	label, ok := s.namer.Label(ctx, entityType, entityID)
	if !ok {
		return ""
	}
	return label
}

// physicalPath returns the absolute location of key for stores that have
// one, and the key itself otherwise.
func (s *Service) physicalPath(key string) string {
	if p, ok := s.store.(interface{ AbsolutePath(string) string }); ok {
		return p.AbsolutePath(key)
	}
	return key
}

// reportOrphan records bytes that no row references. Recording runs even
// if ctx was cancelled.
func (s *Service) reportOrphan(ctx context.Context, key, tenant, reason string, cause error) {
	s.metrics.RecordOrphan(reason)
	logger.Error("files: orphaned bytes at %q (tenant %q, %s): %v", key, tenant, reason, cause)

	rec := catalog.OrphanRecord{
		Key:        key,
		Tenant:     tenant,
		Reason:     reason,
		RecordedAt: s.now().UTC(),
	}
	if err := s.catalog.RecordOrphan(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("files: failed to record orphan %q, reconciliation will find it on the next full sweep: %v", key, err)
	}
}

func readable(rows []*catalog.StoredObject, actor string) []*catalog.StoredObject {
	out := make([]*catalog.StoredObject, 0, len(rows))
	for _, row := range rows {
		if access.Can(row, actor, access.Read) {
			out = append(out, row)
		}
	}
	return out
}

func extension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
}

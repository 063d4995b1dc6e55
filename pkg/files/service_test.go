package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/access"
	"github.com/marmos91/dittostore/pkg/catalog"
	catalogmemory "github.com/marmos91/dittostore/pkg/catalog/memory"
	"github.com/marmos91/dittostore/pkg/layout"
	"github.com/marmos91/dittostore/pkg/naming"
	"github.com/marmos91/dittostore/pkg/share"
	"github.com/marmos91/dittostore/pkg/store/object"
	objectmemory "github.com/marmos91/dittostore/pkg/store/object/memory"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// ============================================================================
// Fixture
// ============================================================================

type fixture struct {
	ctx     context.Context
	store   object.ObjectStore
	catalog catalog.Catalog
	metrics *recordingMetrics
	service *Service
	now     time.Time
}

type fixtureOptions struct {
	cfg     Config
	store   func(object.ObjectStore) object.ObjectStore
	catalog func(catalog.Catalog) catalog.Catalog
	random  io.Reader
	namer   naming.Namer
}

func newFixture(t *testing.T, fo fixtureOptions) *fixture {
	t.Helper()
	ctx := context.Background()

	mem, err := objectmemory.NewMemoryObjectStore(ctx, objectmemory.MemoryObjectStoreConfig{})
	require.NoError(t, err)

	f := &fixture{
		ctx:     ctx,
		store:   mem,
		catalog: catalogmemory.NewMemoryCatalog(),
		metrics: newRecordingMetrics(),
		now:     time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	if fo.store != nil {
		f.store = fo.store(f.store)
	}
	if fo.catalog != nil {
		f.catalog = fo.catalog(f.catalog)
	}
	clock := func() time.Time { return f.now }

	layoutOpts := []layout.Option{layout.WithClock(clock)}
	if fo.random != nil {
		layoutOpts = append(layoutOpts, layout.WithRandom(fo.random))
	}
	resolver, err := layout.NewResolver(layout.Config{}, layoutOpts...)
	require.NoError(t, err)

	shares, err := share.NewManager(f.catalog, share.Config{CodeHashCost: bcrypt.MinCost}, share.WithClock(clock))
	require.NoError(t, err)

	f.service, err = NewService(Dependencies{
		Store:    f.store,
		Catalog:  f.catalog,
		Resolver: resolver,
		Shares:   shares,
		Namer:    fo.namer,
		Policy:   access.NewPolicy([]access.PublicRead{{Module: "real-estate", EntityType: "apartment"}}),
		Metrics:  f.metrics,
	}, fo.cfg, WithClock(clock))
	require.NoError(t, err)
	return f
}

func (f *fixture) upload(t *testing.T, req UploadRequest) *catalog.StoredObject {
	t.Helper()
	obj, err := f.service.Upload(f.ctx, req)
	require.NoError(t, err)
	return obj
}

func (f *fixture) content(t *testing.T, key string) string {
	t.Helper()
	rc, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) storedKeys(t *testing.T) []string {
	t.Helper()
	infos, err := f.store.List(f.ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	return keys
}

func chatUpload(body string) UploadRequest {
	return UploadRequest{
		Tenant:   "acme",
		Module:   "chat",
		Filename: "notes.txt",
		Actor:    "alice",
		Body:     strings.NewReader(body),
	}
}

// recordingMetrics counts observations by outcome.
type recordingMetrics struct {
	mu      sync.Mutex
	uploads map[string]int
	deletes map[string]int
	orphans map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		uploads: make(map[string]int),
		deletes: make(map[string]int),
		orphans: make(map[string]int),
	}
}

func (m *recordingMetrics) ObserveUpload(_ string, outcome string, _ int64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[outcome]++
}

func (m *recordingMetrics) ObserveDelete(_ string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes[outcome]++
}

func (m *recordingMetrics) RecordOrphan(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphans[reason]++
}

// failingCatalog fails selected writes.
type failingCatalog struct {
	catalog.Catalog
	failCreate bool
}

func (c *failingCatalog) Create(ctx context.Context, obj *catalog.StoredObject) (*catalog.StoredObject, error) {
	if c.failCreate {
		return nil, catalog.IOError("create object", errors.New("disk full"))
	}
	return c.Catalog.Create(ctx, obj)
}

// failingStore fails Delete.
type failingStore struct {
	object.ObjectStore
}

func (s *failingStore) Delete(context.Context, string) error {
	return object.ErrUnavailable
}

// scriptedRandom fills every Read with the next byte of seq, repeating the
// last one.
type scriptedRandom struct {
	mu  sync.Mutex
	seq []byte
}

func (r *scriptedRandom) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.seq[0]
	if len(r.seq) > 1 {
		r.seq = r.seq[1:]
	}
	for i := range p {
		p[i] = b
	}
	return len(p), nil
}

// ============================================================================
// Upload
// ============================================================================

func TestUpload_CreatesVersionOne(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	obj := f.upload(t, UploadRequest{
		Tenant:     "acme",
		Module:     "crm",
		EntityType: "customer",
		EntityID:   "42",
		Filename:   "Logo.PNG",
		Actor:      "alice",
		Metadata:   catalog.Metadata{Title: "Logo", Tags: []string{"brand"}},
		Body:       bytes.NewReader(pngHeader),
	})

	assert.NotEmpty(t, obj.ID)
	assert.Equal(t, obj.ID, obj.LineageID)
	assert.Equal(t, 1, obj.Version)
	assert.True(t, obj.IsLatest)
	assert.Empty(t, obj.PreviousVersionID)
	assert.Equal(t, "image/png", obj.MimeType)
	assert.Equal(t, "png", obj.Extension)
	assert.Equal(t, int64(len(pngHeader)), obj.Size)
	assert.Equal(t, "Logo", obj.Title)
	assert.Equal(t, "alice", obj.CreatedBy)
	assert.Equal(t, "alice", obj.UpdatedBy)
	assert.Equal(t, f.now, obj.CreatedAt)
	assert.Equal(t, obj.Key, obj.Path, "memory store has no absolute path")
	assert.Regexp(t, `^tenants/acme/module-files/crm/customer/42/2026-03-14/[a-z0-9]{8}_Logo\.PNG$`, obj.Key)
	assert.Equal(t, string(pngHeader), f.content(t, obj.Key))

	stored, err := f.catalog.Get(f.ctx, "acme", obj.ID)
	require.NoError(t, err)
	assert.Equal(t, obj.Key, stored.Key)
	assert.Equal(t, 1, f.metrics.uploads["success"])
}

func TestUpload_ExplicitMimeType(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	req := chatUpload("hello")
	req.MimeType = "application/x-custom"
	obj := f.upload(t, req)
	assert.Equal(t, "application/x-custom", obj.MimeType)
}

func TestUpload_SniffsText(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	obj := f.upload(t, chatUpload("plain words"))
	assert.True(t, strings.HasPrefix(obj.MimeType, "text/plain"), obj.MimeType)
	assert.Equal(t, "plain words", f.content(t, obj.Key), "sniffing must not lose bytes")
}

func TestUpload_PrivateByDefault(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	obj := f.upload(t, chatUpload("hi"))

	only := []string{"alice"}
	assert.Equal(t, only, obj.Permissions.Read)
	assert.Equal(t, only, obj.Permissions.Write)
	assert.Equal(t, only, obj.Permissions.Delete)
	assert.Equal(t, only, obj.Permissions.Share)
	assert.False(t, obj.Permissions.IsPublic)
}

func TestUpload_PublicReadPair(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	obj := f.upload(t, UploadRequest{
		Tenant:     "acme",
		Module:     "real-estate",
		EntityType: "apartment",
		EntityID:   "7",
		Filename:   "living-room.jpg",
		Actor:      "agent",
		Body:       strings.NewReader("jpeg"),
	})

	assert.Equal(t, []string{access.Wildcard}, obj.Permissions.Read)
	assert.True(t, obj.Permissions.IsPublic)

	got, err := f.service.Get(f.ctx, "acme", obj.ID, "visitor")
	require.NoError(t, err)
	assert.Equal(t, obj.ID, got.ID)
}

func TestUpload_ExplicitPermissions(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	perms := catalog.PermissionSet{Read: []string{"bob"}, Write: []string{"alice"}}
	req := chatUpload("hi")
	req.Permissions = &perms
	obj := f.upload(t, req)

	assert.Equal(t, []string{"bob"}, obj.Permissions.Read)
	assert.Empty(t, obj.Permissions.Delete)
}

func TestUpload_UsesEntityLabel(t *testing.T) {
	namer := naming.NewStaticRegistry(time.Second, map[string]map[string]string{
		"customer": {"42": "Globex Corp"},
	})
	f := newFixture(t, fixtureOptions{namer: namer})

	labelled := f.upload(t, UploadRequest{
		Tenant: "acme", Module: "crm", EntityType: "customer", EntityID: "42",
		Filename: "a.txt", Actor: "alice", Body: strings.NewReader("a"),
	})
	assert.Contains(t, labelled.Key, "/customer/Globex_Corp/")

	unlabelled := f.upload(t, UploadRequest{
		Tenant: "acme", Module: "crm", EntityType: "customer", EntityID: "99",
		Filename: "b.txt", Actor: "alice", Body: strings.NewReader("b"),
	})
	assert.Contains(t, unlabelled.Key, "/customer/99/")
	assert.Equal(t, "99", unlabelled.EntityID)
}

func TestUpload_ConcurrentSameEntity(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	const writers = 2
	bodies := []string{"first writer payload", "second writer payload"}
	results := make([]*catalog.StoredObject, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.service.Upload(f.ctx, UploadRequest{
				Tenant: "acme", Module: "crm", EntityType: "customer", EntityID: "42",
				Filename: "report.pdf", Actor: "alice", Body: strings.NewReader(bodies[i]),
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
	}
	assert.NotEqual(t, results[0].ID, results[1].ID)
	assert.NotEqual(t, results[0].Key, results[1].Key)
	assert.True(t, results[0].IsLatest)
	assert.True(t, results[1].IsLatest)
	for i := 0; i < writers; i++ {
		assert.Equal(t, bodies[i], f.content(t, results[i].Key))
	}

	rows, err := f.service.List(f.ctx, ListRequest{Tenant: "acme", Module: "crm", Actor: "alice"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestUpload_ValidationBeforeIO(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*UploadRequest)
	}{
		{"missing tenant", func(r *UploadRequest) { r.Tenant = "" }},
		{"missing module", func(r *UploadRequest) { r.Module = "" }},
		{"missing actor", func(r *UploadRequest) { r.Actor = "" }},
		{"blank filename", func(r *UploadRequest) { r.Filename = "  " }},
		{"entity id without type", func(r *UploadRequest) { r.EntityID = "42" }},
		{"missing body", func(r *UploadRequest) { r.Body = nil }},
		{"nul in tenant", func(r *UploadRequest) { r.Tenant = "acme\x00evil" }},
		{"newline in module", func(r *UploadRequest) { r.Module = "chat\nx" }},
		{"nul in entity id", func(r *UploadRequest) { r.EntityType, r.EntityID = "apartment", "7\x00" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{})
			req := chatUpload("data")
			tt.mutate(&req)

			_, err := f.service.Upload(f.ctx, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.False(t, IsRetryable(err))
			assert.Empty(t, f.storedKeys(t))
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t, fixtureOptions{cfg: Config{MaxSize: 10}})

	exact := f.upload(t, chatUpload("0123456789"))
	assert.Equal(t, int64(10), exact.Size)

	_, err := f.service.Upload(f.ctx, chatUpload("0123456789A"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []string{exact.Key}, f.storedKeys(t), "oversized bytes must not remain")
	assert.Equal(t, 1, f.metrics.uploads["too_large"])
}

func TestUpload_KeyCollisionRetriedOnce(t *testing.T) {
	// Token bytes: 0 -> "aaaaaaaa", 1 -> "bbbbbbbb".
	random := &scriptedRandom{seq: []byte{0, 0, 1}}
	f := newFixture(t, fixtureOptions{random: random})

	first := f.upload(t, chatUpload("one"))
	second := f.upload(t, chatUpload("two"))

	assert.Contains(t, first.Key, "/aaaaaaaa_notes.txt")
	assert.Contains(t, second.Key, "/bbbbbbbb_notes.txt")
	assert.Equal(t, "one", f.content(t, first.Key))
	assert.Equal(t, "two", f.content(t, second.Key))
}

func TestUpload_PersistentCollisionIsRetryable(t *testing.T) {
	f := newFixture(t, fixtureOptions{random: &scriptedRandom{seq: []byte{0}}})

	f.upload(t, chatUpload("one"))
	_, err := f.service.Upload(f.ctx, chatUpload("two"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.True(t, IsRetryable(err))
	assert.Len(t, f.storedKeys(t), 1)
}

func TestUpload_CatalogFailureRecordsOrphan(t *testing.T) {
	failing := &failingCatalog{failCreate: true}
	f := newFixture(t, fixtureOptions{catalog: func(c catalog.Catalog) catalog.Catalog {
		failing.Catalog = c
		return failing
	}})

	_, err := f.service.Upload(f.ctx, chatUpload("stranded"))
	require.Error(t, err)
	code, ok := catalog.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, catalog.ErrIOError, code)

	keys := f.storedKeys(t)
	require.Len(t, keys, 1, "bytes stay until reconciliation")

	orphans, err := f.catalog.ListOrphans(f.ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, keys[0], orphans[0].Key)
	assert.Equal(t, "acme", orphans[0].Tenant)
	assert.Equal(t, OrphanCatalogWrite, orphans[0].Reason)
	assert.Equal(t, 1, f.metrics.orphans[OrphanCatalogWrite])
}

// ============================================================================
// Replace
// ============================================================================

func TestReplace_CreatesNextVersion(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	v1 := f.upload(t, chatUpload("version one"))

	f.now = f.now.Add(time.Hour)
	v2, err := f.service.Replace(f.ctx, ReplaceRequest{
		Tenant: "acme", ID: v1.ID, Actor: "alice",
		Body: strings.NewReader("version two"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, v1.LineageID, v2.LineageID)
	assert.Equal(t, v1.ID, v2.PreviousVersionID)
	assert.Equal(t, v1.Filename, v2.Filename)
	assert.Equal(t, v1.Permissions, v2.Permissions)
	assert.NotEqual(t, v1.Key, v2.Key)
	assert.True(t, v2.IsLatest)

	old, err := f.service.Get(f.ctx, "acme", v1.ID, "alice")
	require.NoError(t, err)
	assert.False(t, old.IsLatest)
	assert.Equal(t, "version one", f.content(t, old.Key), "history keeps its bytes")

	versions, err := f.service.Versions(f.ctx, "acme", v2.ID, "alice")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, v1.ID, versions[0].ID)
	assert.Equal(t, v2.ID, versions[1].ID)
}

func TestReplace_KeepsCreatorRecordsModifier(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	req := chatUpload("one")
	req.Permissions = &catalog.PermissionSet{
		Read:   []string{"alice", "bob"},
		Write:  []string{"alice", "bob"},
		Delete: []string{"alice"},
		Share:  []string{"alice"},
	}
	v1 := f.upload(t, req)

	v2, err := f.service.Replace(f.ctx, ReplaceRequest{Tenant: "acme", ID: v1.ID, Actor: "bob", Body: strings.NewReader("two")})
	require.NoError(t, err)
	assert.Equal(t, "alice", v2.CreatedBy)
	assert.Equal(t, "bob", v2.UpdatedBy)
}

func TestUpload_FilenameCannotForgeLogLines(t *testing.T) {
	var buf bytes.Buffer
	logger.SetWriter(&buf)
	logger.SetLevel("INFO")
	t.Cleanup(func() { logger.SetWriter(os.Stdout) })

	f := newFixture(t, fixtureOptions{})
	req := chatUpload("x")
	req.Filename = "a.txt\n[2026-01-01 00:00:00] [ERROR] forged"
	f.upload(t, req)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"), "one upload, one log line: %q", out)
	assert.Contains(t, out, `a.txt\n[2026-01-01`)
}

func TestUpload_TagsAreASet(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	req := chatUpload("tagged")
	req.Metadata = catalog.Metadata{Tags: []string{"signed", "q1", "signed"}}

	obj := f.upload(t, req)
	assert.Equal(t, []string{"q1", "signed"}, obj.Tags)
}

func TestReplace_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	v1 := f.upload(t, chatUpload("one"))

	_, err := f.service.Replace(f.ctx, ReplaceRequest{Tenant: "acme", ID: v1.ID, Actor: "alice", Body: strings.NewReader("two")})
	require.NoError(t, err)

	_, err = f.service.Replace(f.ctx, ReplaceRequest{Tenant: "acme", ID: v1.ID, Actor: "alice", Body: strings.NewReader("three")})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, f.storedKeys(t), 2)
}

func TestReplace_UnauthorizedTouchesNothing(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	v1 := f.upload(t, chatUpload("one"))

	_, err := f.service.Replace(f.ctx, ReplaceRequest{Tenant: "acme", ID: v1.ID, Actor: "mallory", Body: strings.NewReader("evil")})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, []string{v1.Key}, f.storedKeys(t))
}

func TestReplace_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	v1 := f.upload(t, chatUpload("base"))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Replace(f.ctx, ReplaceRequest{
				Tenant: "acme", ID: v1.ID, Actor: "alice", Body: strings.NewReader("candidate"),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, writers-1, conflicts)

	versions, err := f.service.Versions(f.ctx, "acme", v1.ID, "alice")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	latest := 0
	for _, v := range versions {
		if v.IsLatest {
			latest++
		}
	}
	assert.Equal(t, 1, latest)
	assert.Len(t, f.storedKeys(t), 2, "losing writers remove their bytes")
}

// ============================================================================
// Reads
// ============================================================================

func TestOpen_ReturnsContentAndTouches(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	obj := f.upload(t, chatUpload("read me"))

	f.now = f.now.Add(time.Minute)
	got, rc, err := f.service.Open(f.ctx, "acme", obj.ID, "alice")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "read me", string(data))
	assert.Equal(t, obj.ID, got.ID)

	row, err := f.catalog.Get(f.ctx, "acme", obj.ID)
	require.NoError(t, err)
	require.NotNil(t, row.LastAccessedAt)
	assert.Equal(t, f.now, *row.LastAccessedAt)
}

func TestOpen_Unauthorized(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	obj := f.upload(t, chatUpload("secret"))

	_, _, err := f.service.Open(f.ctx, "acme", obj.ID, "mallory")
	assert.ErrorIs(t, err, ErrUnauthorized)

	row, err := f.catalog.Get(f.ctx, "acme", obj.ID)
	require.NoError(t, err)
	assert.Nil(t, row.LastAccessedAt)
}

func TestGet_OtherTenantIsNotFound(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	obj := f.upload(t, chatUpload("mine"))

	_, err := f.service.Get(f.ctx, "umbrella", obj.ID, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_FiltersByReadAccess(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.upload(t, chatUpload("alice's"))

	f.now = f.now.Add(time.Second)
	bobs := chatUpload("bob's")
	bobs.Actor = "bob"
	f.upload(t, bobs)

	f.now = f.now.Add(time.Second)
	public := f.upload(t, UploadRequest{
		Tenant: "acme", Module: "real-estate", EntityType: "apartment", EntityID: "1",
		Filename: "photo.jpg", Actor: "agent", Body: strings.NewReader("jpg"),
	})

	rows, err := f.service.List(f.ctx, ListRequest{Tenant: "acme", Actor: "alice"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].CreatedBy)
	assert.Equal(t, public.ID, rows[1].ID)

	_, err = f.service.List(f.ctx, ListRequest{Actor: "alice"})
	assert.ErrorIs(t, err, ErrValidation)
}

// ============================================================================
// Delete
// ============================================================================

func TestDelete_RemovesRowAndBytes(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	obj := f.upload(t, chatUpload("bye"))

	require.NoError(t, f.service.Delete(f.ctx, "acme", obj.ID, "alice"))

	_, err := f.catalog.Get(f.ctx, "acme", obj.ID)
	assert.True(t, catalog.IsNotFound(err))
	assert.Empty(t, f.storedKeys(t))

	err = f.service.Delete(f.ctx, "acme", obj.ID, "alice")
	assert.ErrorIs(t, err, ErrNotFound, "repeat delete reports the row is gone")
	assert.Equal(t, 1, f.metrics.deletes["success"])
}

func TestDelete_BytesAlreadyAbsent(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	obj := f.upload(t, chatUpload("gone already"))
	require.NoError(t, f.store.Delete(f.ctx, obj.Key))

	require.NoError(t, f.service.Delete(f.ctx, "acme", obj.ID, "alice"))

	_, err := f.catalog.Get(f.ctx, "acme", obj.ID)
	assert.True(t, catalog.IsNotFound(err))

	orphans, err := f.catalog.ListOrphans(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)
	assert.Equal(t, 1, f.metrics.deletes["success"])
}

func TestDelete_UnauthorizedTouchesNothing(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	obj := f.upload(t, chatUpload("keep"))

	err := f.service.Delete(f.ctx, "acme", obj.ID, "mallory")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.catalog.Get(f.ctx, "acme", obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep", f.content(t, obj.Key))
	assert.Equal(t, 1, f.metrics.deletes["unauthorized"])
}

func TestDelete_LatestPromotesPrevious(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	v1 := f.upload(t, chatUpload("one"))
	v2, err := f.service.Replace(f.ctx, ReplaceRequest{Tenant: "acme", ID: v1.ID, Actor: "alice", Body: strings.NewReader("two")})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(f.ctx, "acme", v2.ID, "alice"))

	got, err := f.service.Get(f.ctx, "acme", v1.ID, "alice")
	require.NoError(t, err)
	assert.True(t, got.IsLatest)
}

func TestDelete_ByteFailureRecordsOrphan(t *testing.T) {
	f := newFixture(t, fixtureOptions{store: func(s object.ObjectStore) object.ObjectStore {
		return &failingStore{ObjectStore: s}
	}})
	obj := f.upload(t, chatUpload("sticky"))

	require.NoError(t, f.service.Delete(f.ctx, "acme", obj.ID, "alice"))

	_, err := f.catalog.Get(f.ctx, "acme", obj.ID)
	assert.True(t, catalog.IsNotFound(err))

	orphans, err := f.catalog.ListOrphans(f.ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, obj.Key, orphans[0].Key)
	assert.Equal(t, OrphanByteDelete, orphans[0].Reason)
}

// ============================================================================
// Sharing
// ============================================================================

func TestShare_RoundTrip(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	obj := f.upload(t, chatUpload("shared content"))

	grant, err := f.service.Share(f.ctx, "acme", obj.ID, "alice", share.Request{
		SharedWith: "bob",
		Level:      catalog.ShareDownload,
		AccessCode: "1234",
	})
	require.NoError(t, err)

	_, err = f.service.ResolveShare(f.ctx, grant.ID, "0000")
	reason, ok := share.DenialReason(err)
	require.True(t, ok)
	assert.Equal(t, share.ReasonCodeMismatch, reason)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	res, rc, err := f.service.OpenShare(f.ctx, grant.ID, "1234")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "shared content", string(data))
	assert.Equal(t, int64(1), res.Grant.Downloads)

	grants, err := f.service.ListShares(f.ctx, "acme", obj.ID, "alice")
	require.NoError(t, err)
	require.Len(t, grants, 1)

	_, err = f.service.RevokeShare(f.ctx, "acme", obj.ID, "alice", grant.ID)
	require.NoError(t, err)

	_, err = f.service.ResolveShare(f.ctx, grant.ID, "1234")
	reason, _ = share.DenialReason(err)
	assert.Equal(t, share.ReasonRevoked, reason)
}

func TestShare_Unauthorized(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	obj := f.upload(t, chatUpload("private"))

	_, err := f.service.Share(f.ctx, "acme", obj.ID, "mallory", share.Request{Level: catalog.ShareView})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.service.Share(f.ctx, "acme", obj.ID, "alice", share.Request{Level: "own"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(Dependencies{}, Config{})
	assert.Error(t, err)
}

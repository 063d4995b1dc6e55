package share

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/dittostore/pkg/access"
	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/marmos91/dittostore/pkg/catalog/memory"
)

type fixture struct {
	ctx     context.Context
	catalog *memory.MemoryCatalog
	manager *Manager
	object  *catalog.StoredObject
	now     time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		catalog: memory.NewMemoryCatalog(),
		now:     time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if cfg.CodeHashCost == 0 {
		cfg.CodeHashCost = bcrypt.MinCost
	}

	var err error
	f.manager, err = NewManager(f.catalog, cfg, WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)

	f.object, err = f.catalog.Create(f.ctx, &catalog.StoredObject{
		ID:     "obj-1",
		Tenant: "t1",
		Module: "crm",
		Key:    "tenants/t1/module-files/crm/2026-06-01/abcd1234_contract.pdf",
		Permissions: catalog.PermissionSet{
			Read:   []string{"ownerA"},
			Write:  []string{"ownerA"},
			Delete: []string{"ownerA"},
			Share:  []string{"ownerA"},
		},
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) share(t *testing.T, req Request) *catalog.ShareGrant {
	t.Helper()
	g, err := f.manager.Share(f.ctx, f.object, "ownerA", req)
	require.NoError(t, err)
	return g
}

func assertDenied(t *testing.T, err error, want Reason) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, IsDenied(err), "expected denial, got %v", err)
	reason, ok := DenialReason(err)
	require.True(t, ok)
	assert.Equal(t, want, reason)
	assert.NotErrorIs(t, err, access.ErrUnauthorized, "denials are not authorization failures")
}

func (f *fixture) downloads(t *testing.T, id string) int64 {
	t.Helper()
	g, err := f.catalog.GetGrant(f.ctx, id)
	require.NoError(t, err)
	return g.Downloads
}

// Scenario: a download grant that expired a second ago.
func TestResolve_Expired(t *testing.T) {
	f := newFixture(t, Config{})
	past := f.now.Add(-time.Second)
	g := f.share(t, Request{SharedWith: "userB", Level: catalog.ShareDownload, ExpiresAt: &past})

	_, err := f.manager.Resolve(f.ctx, g.ID, "")
	assertDenied(t, err, ReasonExpired)
	assert.Zero(t, f.downloads(t, g.ID), "denied access must not be counted")

	// The grant is inert, not erased.
	_, err = f.catalog.GetGrant(f.ctx, g.ID)
	assert.NoError(t, err)
}

// Scenario: a view grant protected by an access code.
func TestResolve_AccessCode(t *testing.T) {
	f := newFixture(t, Config{})
	g := f.share(t, Request{SharedWith: "userB", Level: catalog.ShareView, AccessCode: "1234"})

	_, err := f.manager.Resolve(f.ctx, g.ID, "0000")
	assertDenied(t, err, ReasonCodeMismatch)

	_, err = f.manager.Resolve(f.ctx, g.ID, "")
	assertDenied(t, err, ReasonCodeRequired)

	res, err := f.manager.Resolve(f.ctx, g.ID, "1234")
	require.NoError(t, err)
	assert.Equal(t, "obj-1", res.Object.ID)
	assert.Equal(t, g.ID, res.Grant.ID)
	assert.Zero(t, res.Grant.Downloads, "view grants are not counted")
}

func TestShare_StoresOnlyCodeHash(t *testing.T) {
	f := newFixture(t, Config{})
	g := f.share(t, Request{Level: catalog.ShareView, AccessCode: "s3cret"})

	stored, err := f.catalog.GetGrant(f.ctx, g.ID)
	require.NoError(t, err)
	assert.NotContains(t, string(stored.CodeHash), "s3cret")
	assert.NoError(t, bcrypt.CompareHashAndPassword(stored.CodeHash, []byte("s3cret")))
}

func TestShare_FillsGrant(t *testing.T) {
	f := newFixture(t, Config{})
	exp := f.now.Add(24 * time.Hour)
	g := f.share(t, Request{SharedWith: "userB", Level: catalog.ShareEdit, ExpiresAt: &exp})

	assert.NotEmpty(t, g.ID)
	assert.NotEqual(t, "obj-1", g.ID, "grant ids must not reveal the object")
	assert.Equal(t, "t1", g.Tenant)
	assert.Equal(t, "obj-1", g.ObjectID)
	assert.Equal(t, "ownerA", g.SharedBy)
	assert.Equal(t, "userB", g.SharedWith)
	assert.True(t, f.now.Equal(g.CreatedAt))
	assert.False(t, g.HasCode())
}

func TestResolve_DownloadCounter(t *testing.T) {
	f := newFixture(t, Config{})
	g := f.share(t, Request{Level: catalog.ShareDownload, AccessCode: "1234"})

	for i := 0; i < 3; i++ {
		_, err := f.manager.Resolve(f.ctx, g.ID, "1234")
		require.NoError(t, err)
	}
	_, err := f.manager.Resolve(f.ctx, g.ID, "9999")
	assertDenied(t, err, ReasonCodeMismatch)

	assert.Equal(t, int64(3), f.downloads(t, g.ID))
}

func TestResolve_ConcurrentDownloadsAllCounted(t *testing.T) {
	f := newFixture(t, Config{})
	g := f.share(t, Request{Level: catalog.ShareDownload})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Resolve(f.ctx, g.ID, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), f.downloads(t, g.ID))
}

func TestResolve_ExpiryBoundary(t *testing.T) {
	f := newFixture(t, Config{})
	exp := f.now.Add(time.Minute)
	g := f.share(t, Request{Level: catalog.ShareDownload, ExpiresAt: &exp})

	_, err := f.manager.Resolve(f.ctx, g.ID, "")
	require.NoError(t, err)

	f.now = exp
	_, err = f.manager.Resolve(f.ctx, g.ID, "")
	assertDenied(t, err, ReasonExpired)
	assert.Equal(t, int64(1), f.downloads(t, g.ID))
}

func TestResolve_ExpiredWinsOverCode(t *testing.T) {
	f := newFixture(t, Config{})
	past := f.now.Add(-time.Hour)
	g := f.share(t, Request{Level: catalog.ShareView, AccessCode: "1234", ExpiresAt: &past})

	_, err := f.manager.Resolve(f.ctx, g.ID, "0000")
	assertDenied(t, err, ReasonExpired)
}

func TestResolve_UnknownGrant(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.manager.Resolve(f.ctx, "no-such-grant", "1234")
	assertDenied(t, err, ReasonNotFound)
}

func TestResolve_DeletedObject(t *testing.T) {
	f := newFixture(t, Config{})
	g := f.share(t, Request{Level: catalog.ShareDownload})
	require.NoError(t, f.catalog.Delete(f.ctx, "t1", "obj-1"))

	_, err := f.manager.Resolve(f.ctx, g.ID, "")
	assertDenied(t, err, ReasonNotFound)
	assert.Zero(t, f.downloads(t, g.ID))
}

func TestResolve_RateLimited(t *testing.T) {
	f := newFixture(t, Config{AttemptsPerSecond: 0.001, AttemptBurst: 2})
	g := f.share(t, Request{Level: catalog.ShareView, AccessCode: "1234"})

	for i := 0; i < 2; i++ {
		_, err := f.manager.Resolve(f.ctx, g.ID, "0000")
		assertDenied(t, err, ReasonCodeMismatch)
	}

	// Even the right code is refused once the bucket is empty.
	_, err := f.manager.Resolve(f.ctx, g.ID, "1234")
	assertDenied(t, err, ReasonRateLimited)
}

func TestShare_RequiresShareRight(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.manager.Share(f.ctx, f.object, "userB", Request{Level: catalog.ShareView})
	require.ErrorIs(t, err, access.ErrUnauthorized)
	assert.False(t, IsDenied(err))

	grants, err := f.catalog.ListGrants(f.ctx, "t1", "obj-1")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestShare_Validation(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.manager.Share(f.ctx, f.object, "ownerA", Request{Level: "owner"})
	assert.ErrorIs(t, err, ErrInvalidGrant)

	long := make([]byte, maxCodeLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = f.manager.Share(f.ctx, f.object, "ownerA", Request{Level: catalog.ShareView, AccessCode: string(long)})
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t, Config{})
	g := f.share(t, Request{Level: catalog.ShareDownload})

	_, err := f.manager.Revoke(f.ctx, f.object, "userB", g.ID)
	require.ErrorIs(t, err, access.ErrUnauthorized)

	revoked, err := f.manager.Revoke(f.ctx, f.object, "ownerA", g.ID)
	require.NoError(t, err)
	assert.True(t, revoked.Revoked())

	_, err = f.manager.Resolve(f.ctx, g.ID, "")
	assertDenied(t, err, ReasonRevoked)
	assert.Zero(t, f.downloads(t, g.ID))

	_, err = f.manager.Revoke(f.ctx, f.object, "ownerA", g.ID)
	assert.NoError(t, err, "revoking twice is fine")
}

func TestRevoke_GrantOfOtherObject(t *testing.T) {
	f := newFixture(t, Config{})
	g := f.share(t, Request{Level: catalog.ShareView})

	other, err := f.catalog.Create(f.ctx, &catalog.StoredObject{
		ID: "obj-2", Tenant: "t1", Module: "crm", Key: "k/2",
		Permissions: catalog.PermissionSet{Share: []string{"userB"}},
	})
	require.NoError(t, err)

	_, err = f.manager.Revoke(f.ctx, other, "userB", g.ID)
	assert.True(t, catalog.IsNotFound(err))

	_, err = f.manager.Resolve(f.ctx, g.ID, "")
	assert.NoError(t, err, "grant must still work")
}

func TestList(t *testing.T) {
	f := newFixture(t, Config{})
	f.share(t, Request{Level: catalog.ShareView})
	f.now = f.now.Add(time.Second)
	f.share(t, Request{Level: catalog.ShareDownload})

	grants, err := f.manager.List(f.ctx, f.object, "ownerA")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, catalog.ShareView, grants[0].Level)

	_, err = f.manager.List(f.ctx, f.object, "userB")
	assert.ErrorIs(t, err, access.ErrUnauthorized)
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(nil, Config{})
	assert.Error(t, err)

	_, err = NewManager(memory.NewMemoryCatalog(), Config{CodeHashCost: 99})
	assert.Error(t, err)
}

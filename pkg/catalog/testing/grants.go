package testing

import (
	"testing"
	"time"

	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunGrantTests covers share grant storage.
func (suite *CatalogTestSuite) RunGrantTests(t *testing.T) {
	t.Run("CreateAndGet", suite.testGrantCreateAndGet)
	t.Run("CreateInvalid", suite.testGrantCreateInvalid)
	t.Run("IncrementDownloads", suite.testGrantIncrement)
	t.Run("IncrementExpired", suite.testGrantIncrementExpired)
	t.Run("Revoke", suite.testGrantRevoke)
	t.Run("ListByObject", suite.testGrantList)
}

func newGrant(id, tenant, objectID string, level catalog.ShareLevel) *catalog.ShareGrant {
	return &catalog.ShareGrant{
		ID:         id,
		Tenant:     tenant,
		ObjectID:   objectID,
		SharedBy:   "alice",
		SharedWith: "bob",
		Level:      level,
	}
}

func (suite *CatalogTestSuite) testGrantCreateAndGet(t *testing.T) {
	c := suite.newCatalog(t)
	g := newGrant("g1", "t1", "obj-1", catalog.ShareView)
	g.CodeHash = []byte("$2a$04$hash")
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	g.ExpiresAt = &expires

	require.NoError(t, c.CreateGrant(testContext(), g))
	assert.False(t, g.CreatedAt.IsZero())

	got, err := c.GetGrant(testContext(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "obj-1", got.ObjectID)
	assert.Equal(t, catalog.ShareView, got.Level)
	assert.Equal(t, []byte("$2a$04$hash"), got.CodeHash)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))

	err = c.CreateGrant(testContext(), newGrant("g1", "t1", "obj-1", catalog.ShareView))
	assertCode(t, err, catalog.ErrAlreadyExists)

	_, err = c.GetGrant(testContext(), "missing")
	assertCode(t, err, catalog.ErrNotFound)
}

func (suite *CatalogTestSuite) testGrantCreateInvalid(t *testing.T) {
	c := suite.newCatalog(t)

	err := c.CreateGrant(testContext(), newGrant("g1", "t1", "obj-1", catalog.ShareLevel("admin")))
	assertCode(t, err, catalog.ErrInvalidArgument)

	err = c.CreateGrant(testContext(), newGrant("g2", "", "obj-1", catalog.ShareView))
	assertCode(t, err, catalog.ErrInvalidArgument)
}

func (suite *CatalogTestSuite) testGrantIncrement(t *testing.T) {
	c := suite.newCatalog(t)
	require.NoError(t, c.CreateGrant(testContext(), newGrant("g1", "t1", "obj-1", catalog.ShareDownload)))

	now := time.Now()
	for i := 1; i <= 3; i++ {
		g, err := c.IncrementGrantDownloads(testContext(), "g1", now)
		require.NoError(t, err)
		assert.Equal(t, int64(i), g.Downloads)
	}

	_, err := c.IncrementGrantDownloads(testContext(), "missing", now)
	assertCode(t, err, catalog.ErrNotFound)
}

func (suite *CatalogTestSuite) testGrantIncrementExpired(t *testing.T) {
	c := suite.newCatalog(t)
	g := newGrant("g1", "t1", "obj-1", catalog.ShareDownload)
	expires := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.ExpiresAt = &expires
	require.NoError(t, c.CreateGrant(testContext(), g))

	_, err := c.IncrementGrantDownloads(testContext(), "g1", expires.Add(time.Second))
	assertCode(t, err, catalog.ErrGrantInactive)

	got, err := c.GetGrant(testContext(), "g1")
	require.NoError(t, err)
	assert.Zero(t, got.Downloads, "denied access must not be counted")
}

func (suite *CatalogTestSuite) testGrantRevoke(t *testing.T) {
	c := suite.newCatalog(t)
	require.NoError(t, c.CreateGrant(testContext(), newGrant("g1", "t1", "obj-1", catalog.ShareDownload)))

	_, err := c.RevokeGrant(testContext(), "t2", "g1", time.Now())
	assertCode(t, err, catalog.ErrNotFound)

	first := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	g, err := c.RevokeGrant(testContext(), "t1", "g1", first)
	require.NoError(t, err)
	require.NotNil(t, g.RevokedAt)
	assert.True(t, first.Equal(*g.RevokedAt))

	g, err = c.RevokeGrant(testContext(), "t1", "g1", first.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, first.Equal(*g.RevokedAt), "revocation time must not move")

	_, err = c.IncrementGrantDownloads(testContext(), "g1", first)
	assertCode(t, err, catalog.ErrGrantInactive)
}

func (suite *CatalogTestSuite) testGrantList(t *testing.T) {
	c := suite.newCatalog(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"g-b", "g-a", "g-c"} {
		g := newGrant(id, "t1", "obj-1", catalog.ShareView)
		g.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, c.CreateGrant(testContext(), g))
	}
	require.NoError(t, c.CreateGrant(testContext(), newGrant("g-other", "t1", "obj-2", catalog.ShareView)))

	grants, err := c.ListGrants(testContext(), "t1", "obj-1")
	require.NoError(t, err)
	require.Len(t, grants, 3)
	assert.Equal(t, "g-b", grants[0].ID)
	assert.Equal(t, "g-a", grants[1].ID)
	assert.Equal(t, "g-c", grants[2].ID)

	grants, err = c.ListGrants(testContext(), "t2", "obj-1")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

package testing

import (
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunVersionTests covers Supersede, Versions and latest promotion.
func (suite *CatalogTestSuite) RunVersionTests(t *testing.T) {
	t.Run("SupersedeChainsVersions", suite.testSupersedeChainsVersions)
	t.Run("SupersedeInheritsScope", suite.testSupersedeInheritsScope)
	t.Run("SupersedeNonLatest", suite.testSupersedeNonLatest)
	t.Run("SupersedeOtherTenant", suite.testSupersedeOtherTenant)
	t.Run("ConcurrentSupersede", suite.testConcurrentSupersede)
	t.Run("DeleteLatestPromotes", suite.testDeleteLatestPromotes)
	t.Run("DeleteHistoryKeepsLatest", suite.testDeleteHistoryKeepsLatest)
}

func (suite *CatalogTestSuite) testSupersedeChainsVersions(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "v1"))
	v2 := mustSupersede(t, c, "t1", "v1", "v2")
	v3 := mustSupersede(t, c, "t1", "v2", "v3")

	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, "v1", v2.PreviousVersionID)
	assert.Equal(t, "v1", v2.LineageID)
	assert.Equal(t, 3, v3.Version)
	assert.Equal(t, "v2", v3.PreviousVersionID)
	assert.True(t, v3.IsLatest)

	rows, err := c.Versions(testContext(), "t1", "v1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, i+1, row.Version)
		assert.Equal(t, i == 2, row.IsLatest, "version %d", row.Version)
	}
}

func (suite *CatalogTestSuite) testSupersedeInheritsScope(t *testing.T) {
	c := suite.newCatalog(t)
	obj := newObject("t1", "real-estate", "v1")
	obj.EntityType, obj.EntityID = "apartment", "7"
	mustCreate(t, c, obj)

	next := newObject("t1", "chat", "v2")
	next.Key = "tenants/t1/module-files/real-estate/apartment/7/2026-01-03/tok11111_v2.bin"
	got, err := c.Supersede(testContext(), "t1", "v1", next)
	require.NoError(t, err)

	assert.Equal(t, "real-estate", got.Module)
	assert.Equal(t, "apartment", got.EntityType)
	assert.Equal(t, "7", got.EntityID)
}

func (suite *CatalogTestSuite) testSupersedeNonLatest(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "v1"))
	mustSupersede(t, c, "t1", "v1", "v2")

	_, err := c.Supersede(testContext(), "t1", "v1", newObject("t1", "crm", "v2b"))
	assertCode(t, err, catalog.ErrNotLatest)
	assert.True(t, catalog.IsNotLatest(err))

	_, err = c.Get(testContext(), "t1", "v2b")
	assertCode(t, err, catalog.ErrNotFound)
}

func (suite *CatalogTestSuite) testSupersedeOtherTenant(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "v1"))

	_, err := c.Supersede(testContext(), "t2", "v1", newObject("t2", "crm", "v2"))
	assertCode(t, err, catalog.ErrNotFound)
	assert.Equal(t, 1, latestCount(t, c, "t1", "v1"))
}

// testConcurrentSupersede races N writers on the same version. Exactly one
// may win; the lineage must end with exactly one latest row.
func (suite *CatalogTestSuite) testConcurrentSupersede(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "v1"))

	const writers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
	)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			next := newObject("t1", "crm", fmt.Sprintf("v2-%d", i))
			_, err := c.Supersede(testContext(), "t1", "v1", next)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case catalog.IsNotLatest(err):
				losers++
			default:
				t.Errorf("writer %d: unexpected error %v", i, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one supersede must win")
	assert.Equal(t, writers-1, losers)
	assert.Equal(t, 1, latestCount(t, c, "t1", "v1"))

	rows, err := c.Versions(testContext(), "t1", "v1")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func (suite *CatalogTestSuite) testDeleteLatestPromotes(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "v1"))
	mustSupersede(t, c, "t1", "v1", "v2")
	mustSupersede(t, c, "t1", "v2", "v3")

	require.NoError(t, c.Delete(testContext(), "t1", "v3"))

	v2, err := c.Get(testContext(), "t1", "v2")
	require.NoError(t, err)
	assert.True(t, v2.IsLatest, "newest remaining version must be promoted")
	assert.Equal(t, 1, latestCount(t, c, "t1", "v1"))

	// The promoted version can be superseded again.
	next := mustSupersede(t, c, "t1", "v2", "v3b")
	assert.Equal(t, 3, next.Version)
}

func (suite *CatalogTestSuite) testDeleteHistoryKeepsLatest(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "v1"))
	mustSupersede(t, c, "t1", "v1", "v2")

	require.NoError(t, c.Delete(testContext(), "t1", "v1"))

	rows, err := c.Versions(testContext(), "t1", "v1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "v2", rows[0].ID)
	assert.True(t, rows[0].IsLatest)
}

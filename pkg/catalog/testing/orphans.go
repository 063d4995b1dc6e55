package testing

import (
	"testing"

	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunOrphanTests covers the orphan log.
func (suite *CatalogTestSuite) RunOrphanTests(t *testing.T) {
	c := suite.newCatalog(t)

	require.NoError(t, c.RecordOrphan(testContext(), catalog.OrphanRecord{Key: "b/key", Tenant: "t1", Reason: "catalog write failed"}))
	require.NoError(t, c.RecordOrphan(testContext(), catalog.OrphanRecord{Key: "a/key", Reason: "byte delete failed"}))
	require.NoError(t, c.RecordOrphan(testContext(), catalog.OrphanRecord{Key: "b/key", Tenant: "t1", Reason: "again"}))

	recs, err := c.ListOrphans(testContext())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a/key", recs[0].Key)
	assert.Equal(t, "b/key", recs[1].Key)
	assert.Equal(t, "again", recs[1].Reason)
	assert.False(t, recs[0].RecordedAt.IsZero())

	require.NoError(t, c.RemoveOrphan(testContext(), "a/key"))
	require.NoError(t, c.RemoveOrphan(testContext(), "a/key"), "removing twice must succeed")

	recs, err = c.ListOrphans(testContext())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	err = c.RecordOrphan(testContext(), catalog.OrphanRecord{})
	assertCode(t, err, catalog.ErrInvalidArgument)
}

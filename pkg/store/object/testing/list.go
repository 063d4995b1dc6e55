package testing

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListTests verifies List reports every stored object.
func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	t.Run("EmptyStore", suite.testListEmpty)
	t.Run("ReportsKeysAndSizes", suite.testListReportsKeysAndSizes)
}

func (suite *StoreTestSuite) testListEmpty(t *testing.T) {
	store := suite.NewStore()

	infos, err := store.List(testContext())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func (suite *StoreTestSuite) testListReportsKeysAndSizes(t *testing.T) {
	store := suite.NewStore()
	objects := map[string][]byte{
		"tenants/t1/module-files/crm/2026-01-02/aaaa0001_a.txt":        []byte("a"),
		"tenants/t1/module-files/crm/deal/7/2026-01-02/bbbb0002_b.txt": []byte("bb"),
		"tenants/t2/module-files/hr/2026-01-03/cccc0003_c.txt":         []byte("ccc"),
	}
	for key, data := range objects {
		mustPut(t, store, key, data)
	}
	deleted := "tenants/t2/module-files/hr/2026-01-03/dddd0004_d.txt"
	mustPut(t, store, deleted, []byte("dddd"))
	require.NoError(t, store.Delete(testContext(), deleted))

	infos, err := store.List(testContext())
	require.NoError(t, err)

	var keys []string
	for _, info := range infos {
		keys = append(keys, info.Key)
		data, ok := objects[info.Key]
		require.True(t, ok, "unexpected key %q", info.Key)
		assert.Equal(t, int64(len(data)), info.Size, "size of %q", info.Key)
		assert.False(t, info.ModTime.IsZero(), "mod time of %q", info.Key)
	}
	sort.Strings(keys)

	want := make([]string, 0, len(objects))
	for key := range objects {
		want = append(want, key)
	}
	sort.Strings(want)
	assert.Equal(t, want, keys)
}

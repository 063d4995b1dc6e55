package testing

import (
	"testing"

	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/stretchr/testify/require"
)

// newObject builds a minimal valid row.
func newObject(tenant, module, id string) *catalog.StoredObject {
	return &catalog.StoredObject{
		ID:        id,
		Tenant:    tenant,
		Module:    module,
		Key:       "tenants/" + tenant + "/module-files/" + module + "/2026-01-02/tok00000_" + id + ".bin",
		Filename:  id + ".bin",
		MimeType:  "application/octet-stream",
		Size:      42,
		CreatedBy: "alice",
		Permissions: catalog.PermissionSet{
			Read:   []string{"alice"},
			Write:  []string{"alice"},
			Delete: []string{"alice"},
			Share:  []string{"alice"},
		},
	}
}

// mustCreate inserts a row and fails the test if it errors.
func mustCreate(t *testing.T, c catalog.Catalog, obj *catalog.StoredObject) *catalog.StoredObject {
	t.Helper()
	created, err := c.Create(testContext(), obj)
	require.NoError(t, err, "Create should succeed")
	return created
}

// mustSupersede creates the next version of oldID with the given id.
func mustSupersede(t *testing.T, c catalog.Catalog, tenant, oldID, newID string) *catalog.StoredObject {
	t.Helper()
	next := newObject(tenant, "ignored", newID)
	next.Key = next.Key + ".v"
	created, err := c.Supersede(testContext(), tenant, oldID, next)
	require.NoError(t, err, "Supersede should succeed")
	return created
}

// assertCode checks err carries the expected catalog error code.
func assertCode(t *testing.T, err error, want catalog.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	code, ok := catalog.CodeOf(err)
	require.True(t, ok, "expected a *catalog.StoreError, got %T: %v", err, err)
	require.Equal(t, want, code, "unexpected error code (err=%v)", err)
}

// latestCount returns how many rows of a lineage are flagged latest.
func latestCount(t *testing.T, c catalog.Catalog, tenant, lineageID string) int {
	t.Helper()
	rows, err := c.Versions(testContext(), tenant, lineageID)
	require.NoError(t, err)
	n := 0
	for _, row := range rows {
		if row.IsLatest {
			n++
		}
	}
	return n
}

package testing

import (
	"testing"

	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListTests covers tenant scoping and filtering of List.
func (suite *CatalogTestSuite) RunListTests(t *testing.T) {
	t.Run("ScopedToTenant", suite.testListScopedToTenant)
	t.Run("TenantNamePrefixes", suite.testListTenantNamePrefixes)
	t.Run("Filters", suite.testListFilters)
	t.Run("LatestOnlyByDefault", suite.testListLatestOnly)
	t.Run("PanicsWithoutTenant", suite.testListPanicsWithoutTenant)
}

func ids(rows []*catalog.StoredObject) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func (suite *CatalogTestSuite) testListScopedToTenant(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "a"))
	mustCreate(t, c, newObject("t2", "crm", "b"))
	mustCreate(t, c, newObject("t1", "hr", "c"))

	rows, err := c.List(testContext(), catalog.Filter{Tenant: "t1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, ids(rows))

	rows, err = c.List(testContext(), catalog.Filter{Tenant: "t3"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// Tenants whose names extend each other stay apart, and a tenant that
// would alias another through an embedded NUL is refused up front.
func (suite *CatalogTestSuite) testListTenantNamePrefixes(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("acme", "crm", "a1"))
	mustCreate(t, c, newObject("acme-evil", "crm", "e1"))

	_, err := c.Create(testContext(), newObject("acme\x00evil", "crm", "e2"))
	assertCode(t, err, catalog.ErrInvalidArgument)

	rows, err := c.List(testContext(), catalog.Filter{Tenant: "acme"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(rows))

	rows, err = c.List(testContext(), catalog.Filter{Tenant: "acme-evil"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, ids(rows))
}

func (suite *CatalogTestSuite) testListFilters(t *testing.T) {
	c := suite.newCatalog(t)

	plain := newObject("t1", "real-estate", "plain")
	mustCreate(t, c, plain)

	apt7 := newObject("t1", "real-estate", "apt7")
	apt7.EntityType, apt7.EntityID = "apartment", "7"
	mustCreate(t, c, apt7)

	apt8 := newObject("t1", "real-estate", "apt8")
	apt8.EntityType, apt8.EntityID = "apartment", "8"
	mustCreate(t, c, apt8)

	lease := newObject("t1", "real-estate", "lease")
	lease.EntityType, lease.EntityID = "lease", "7"
	mustCreate(t, c, lease)

	mustCreate(t, c, newObject("t1", "chat", "msg"))

	tests := []struct {
		name   string
		filter catalog.Filter
		want   []string
	}{
		{"module", catalog.Filter{Tenant: "t1", Module: "real-estate"}, []string{"plain", "apt7", "apt8", "lease"}},
		{"entity type", catalog.Filter{Tenant: "t1", Module: "real-estate", EntityType: "apartment"}, []string{"apt7", "apt8"}},
		{"entity", catalog.Filter{Tenant: "t1", Module: "real-estate", EntityType: "apartment", EntityID: "7"}, []string{"apt7"}},
		{"entity id across types", catalog.Filter{Tenant: "t1", EntityID: "7"}, []string{"apt7", "lease"}},
		{"other module", catalog.Filter{Tenant: "t1", Module: "chat"}, []string{"msg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := c.List(testContext(), tt.filter)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(rows))
		})
	}
}

func (suite *CatalogTestSuite) testListLatestOnly(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "v1"))
	mustSupersede(t, c, "t1", "v1", "v2")

	rows, err := c.List(testContext(), catalog.Filter{Tenant: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, ids(rows))

	rows, err = c.List(testContext(), catalog.Filter{Tenant: "t1", IncludeHistory: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, ids(rows))
}

func (suite *CatalogTestSuite) testListPanicsWithoutTenant(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "a"))

	assert.Panics(t, func() {
		_, _ = c.List(testContext(), catalog.Filter{Module: "crm"})
	})
}

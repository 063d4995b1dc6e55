package testing

import (
	"testing"
	"time"

	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunObjectTests covers Create, Get, Delete, Touch and ReferencedKeys.
func (suite *CatalogTestSuite) RunObjectTests(t *testing.T) {
	t.Run("CreateSetsVersionOne", suite.testCreateSetsVersionOne)
	t.Run("CreateDuplicate", suite.testCreateDuplicate)
	t.Run("CreateInvalid", suite.testCreateInvalid)
	t.Run("TagsAreASet", suite.testTagsAreASet)
	t.Run("GetMissing", suite.testGetMissing)
	t.Run("GetOtherTenant", suite.testGetOtherTenant)
	t.Run("ReturnedRowsAreCopies", suite.testReturnedRowsAreCopies)
	t.Run("DeleteRemovesRow", suite.testDeleteRemovesRow)
	t.Run("DeleteOtherTenant", suite.testDeleteOtherTenant)
	t.Run("Touch", suite.testTouch)
	t.Run("ReferencedKeys", suite.testReferencedKeys)
}

func (suite *CatalogTestSuite) testCreateSetsVersionOne(t *testing.T) {
	c := suite.newCatalog(t)

	obj := newObject("t1", "crm", "obj-1")
	obj.EntityType = "deal"
	obj.EntityID = "42"
	obj.Tags = []string{"q1", "signed"}

	created := mustCreate(t, c, obj)
	assert.Equal(t, 1, created.Version)
	assert.True(t, created.IsLatest)
	assert.Equal(t, "obj-1", created.LineageID)
	assert.Empty(t, created.PreviousVersionID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, "alice", created.UpdatedBy)

	got, err := c.Get(testContext(), "t1", "obj-1")
	require.NoError(t, err)
	assert.Equal(t, obj.Key, got.Key)
	assert.Equal(t, []string{"q1", "signed"}, got.Tags)
	assert.Equal(t, "deal", got.EntityType)
	assert.Equal(t, []string{"alice"}, got.Permissions.Share)
}

func (suite *CatalogTestSuite) testCreateDuplicate(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "obj-1"))

	_, err := c.Create(testContext(), newObject("t1", "crm", "obj-1"))
	assertCode(t, err, catalog.ErrAlreadyExists)
}

func (suite *CatalogTestSuite) testCreateInvalid(t *testing.T) {
	c := suite.newCatalog(t)

	cases := map[string]func(o *catalog.StoredObject){
		"missing id":     func(o *catalog.StoredObject) { o.ID = "" },
		"missing tenant": func(o *catalog.StoredObject) { o.Tenant = "" },
		"missing module": func(o *catalog.StoredObject) { o.Module = "" },
		"missing key":    func(o *catalog.StoredObject) { o.Key = "" },
		"orphan entity":  func(o *catalog.StoredObject) { o.EntityID = "7" },
		"nul in tenant":  func(o *catalog.StoredObject) { o.Tenant = "t1\x00evil" },
		"nul in module":  func(o *catalog.StoredObject) { o.Module = "crm\x00x" },
		"newline in id":  func(o *catalog.StoredObject) { o.ID = "obj\n1" },
		"nul in entity": func(o *catalog.StoredObject) {
			o.EntityType, o.EntityID = "deal", "4\x002"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			obj := newObject("t1", "crm", "obj-1")
			mutate(obj)
			_, err := c.Create(testContext(), obj)
			assertCode(t, err, catalog.ErrInvalidArgument)
		})
	}
}

func (suite *CatalogTestSuite) testTagsAreASet(t *testing.T) {
	c := suite.newCatalog(t)

	obj := newObject("t1", "crm", "obj-1")
	obj.Tags = []string{"signed", "q1", " signed ", "", "q1"}
	created := mustCreate(t, c, obj)
	assert.Equal(t, []string{"q1", "signed"}, created.Tags)
	assert.Equal(t, []string{"signed", "q1", " signed ", "", "q1"}, obj.Tags, "input must not be modified")

	next := newObject("t1", "ignored", "obj-2")
	next.Key += ".v"
	next.Tags = []string{"b", "a", "b"}
	superseding, err := c.Supersede(testContext(), "t1", "obj-1", next)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, superseding.Tags)

	got, err := c.Get(testContext(), "t1", "obj-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
}

func (suite *CatalogTestSuite) testGetMissing(t *testing.T) {
	c := suite.newCatalog(t)

	_, err := c.Get(testContext(), "t1", "nope")
	assertCode(t, err, catalog.ErrNotFound)
	assert.True(t, catalog.IsNotFound(err))
}

func (suite *CatalogTestSuite) testGetOtherTenant(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "obj-1"))

	_, err := c.Get(testContext(), "t2", "obj-1")
	assertCode(t, err, catalog.ErrNotFound)
}

func (suite *CatalogTestSuite) testReturnedRowsAreCopies(t *testing.T) {
	c := suite.newCatalog(t)
	created := mustCreate(t, c, newObject("t1", "crm", "obj-1"))

	created.Permissions.Read = append(created.Permissions.Read, "mallory")
	created.IsLatest = false

	got, err := c.Get(testContext(), "t1", "obj-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got.Permissions.Read)
	assert.True(t, got.IsLatest)
}

func (suite *CatalogTestSuite) testDeleteRemovesRow(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "obj-1"))

	require.NoError(t, c.Delete(testContext(), "t1", "obj-1"))

	_, err := c.Get(testContext(), "t1", "obj-1")
	assertCode(t, err, catalog.ErrNotFound)

	err = c.Delete(testContext(), "t1", "obj-1")
	assertCode(t, err, catalog.ErrNotFound)

	_, err = c.Versions(testContext(), "t1", "obj-1")
	assertCode(t, err, catalog.ErrNotFound)
}

func (suite *CatalogTestSuite) testDeleteOtherTenant(t *testing.T) {
	c := suite.newCatalog(t)
	mustCreate(t, c, newObject("t1", "crm", "obj-1"))

	err := c.Delete(testContext(), "t2", "obj-1")
	assertCode(t, err, catalog.ErrNotFound)

	_, err = c.Get(testContext(), "t1", "obj-1")
	assert.NoError(t, err, "row of t1 must survive a delete attempt by t2")
}

func (suite *CatalogTestSuite) testTouch(t *testing.T) {
	c := suite.newCatalog(t)
	created := mustCreate(t, c, newObject("t1", "crm", "obj-1"))
	assert.Nil(t, created.LastAccessedAt)

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, c.Touch(testContext(), "t1", "obj-1", at))

	got, err := c.Get(testContext(), "t1", "obj-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastAccessedAt)
	assert.True(t, at.Equal(*got.LastAccessedAt))
	assert.True(t, created.UpdatedAt.Equal(got.UpdatedAt), "Touch must not change UpdatedAt")

	assertCode(t, c.Touch(testContext(), "t2", "obj-1", at), catalog.ErrNotFound)
}

func (suite *CatalogTestSuite) testReferencedKeys(t *testing.T) {
	c := suite.newCatalog(t)
	a := mustCreate(t, c, newObject("t1", "crm", "obj-a"))
	b := mustCreate(t, c, newObject("t2", "hr", "obj-b"))
	v2 := mustSupersede(t, c, "t1", "obj-a", "obj-a2")

	keys, err := c.ReferencedKeys(testContext())
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	for _, k := range []string{a.Key, b.Key, v2.Key} {
		assert.Contains(t, keys, k)
	}
}

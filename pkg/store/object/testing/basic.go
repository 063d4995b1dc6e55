package testing

import (
	"errors"
	"testing"

	"github.com/marmos91/dittostore/pkg/store/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests covers Put, Get, Exists and Delete.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("PutGetRoundTrip", suite.testPutGetRoundTrip)
	t.Run("PutEmptyObject", suite.testPutEmptyObject)
	t.Run("GetMissing", suite.testGetMissing)
	t.Run("DeleteRemovesObject", suite.testDeleteRemovesObject)
	t.Run("DeleteIsIdempotent", suite.testDeleteIsIdempotent)
	t.Run("ReaderErrorLeavesNoObject", suite.testReaderErrorLeavesNoObject)
}

func (suite *StoreTestSuite) testPutGetRoundTrip(t *testing.T) {
	store := suite.NewStore()
	key := "tenants/t1/module-files/crm/2026-01-02/abcd1234_report.pdf"
	data := []byte("%PDF-1.4 quarterly numbers")

	mustPut(t, store, key, data)

	assert.Equal(t, data, mustGet(t, store, key))
	mustExist(t, store, key, true)
}

func (suite *StoreTestSuite) testPutEmptyObject(t *testing.T) {
	store := suite.NewStore()
	key := "tenants/t1/module-files/crm/2026-01-02/abcd1234_empty.txt"

	mustPut(t, store, key, []byte{})

	assert.Empty(t, mustGet(t, store, key))
}

func (suite *StoreTestSuite) testGetMissing(t *testing.T) {
	store := suite.NewStore()

	_, err := store.Get(testContext(), "tenants/t1/missing.bin")
	require.Error(t, err)
	assert.ErrorIs(t, err, object.ErrObjectNotFound)
}

func (suite *StoreTestSuite) testDeleteRemovesObject(t *testing.T) {
	store := suite.NewStore()
	key := "tenants/t1/module-files/hr/2026-01-02/zzzz0000_cv.docx"
	mustPut(t, store, key, []byte("cv"))

	require.NoError(t, store.Delete(testContext(), key))

	mustExist(t, store, key, false)
	_, err := store.Get(testContext(), key)
	assert.ErrorIs(t, err, object.ErrObjectNotFound)
}

func (suite *StoreTestSuite) testDeleteIsIdempotent(t *testing.T) {
	store := suite.NewStore()
	key := "tenants/t1/module-files/hr/2026-01-02/zzzz0000_cv.docx"
	mustPut(t, store, key, []byte("cv"))

	require.NoError(t, store.Delete(testContext(), key))
	require.NoError(t, store.Delete(testContext(), key), "second delete must succeed")
	require.NoError(t, store.Delete(testContext(), "tenants/t1/never-existed.bin"))
}

type failingReader struct{}

var errSourceBroken = errors.New("source broken")

func (failingReader) Read([]byte) (int, error) { return 0, errSourceBroken }

func (suite *StoreTestSuite) testReaderErrorLeavesNoObject(t *testing.T) {
	store := suite.NewStore()
	key := "tenants/t1/module-files/crm/2026-01-02/ffff9999_broken.bin"

	_, err := store.Put(testContext(), key, failingReader{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errSourceBroken)

	mustExist(t, store, key, false)

	// The key must be reusable after a failed write.
	mustPut(t, store, key, []byte("second try"))
	assert.Equal(t, []byte("second try"), mustGet(t, store, key))
}

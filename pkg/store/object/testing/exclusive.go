package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/dittostore/pkg/store/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunExclusiveTests verifies Put never overwrites an existing object.
func (suite *StoreTestSuite) RunExclusiveTests(t *testing.T) {
	t.Run("PutExistingKey", suite.testPutExistingKey)
	t.Run("CollisionDetectedBeforeRead", suite.testCollisionDetectedBeforeRead)
	t.Run("ConcurrentPutSameKey", suite.testConcurrentPutSameKey)
}

func (suite *StoreTestSuite) testPutExistingKey(t *testing.T) {
	store := suite.NewStore()
	key := "tenants/t1/module-files/crm/2026-01-02/aaaa1111_a.txt"
	mustPut(t, store, key, []byte("original"))

	_, err := store.Put(testContext(), key, bytes.NewReader([]byte("intruder")))
	require.Error(t, err)
	assert.ErrorIs(t, err, object.ErrKeyExists)

	assert.Equal(t, []byte("original"), mustGet(t, store, key), "original bytes must survive")
}

func (suite *StoreTestSuite) testCollisionDetectedBeforeRead(t *testing.T) {
	store := suite.NewStore()
	key := "tenants/t1/module-files/crm/2026-01-02/aaaa1111_b.txt"
	mustPut(t, store, key, []byte("original"))

	src := &countingReader{r: bytes.NewReader([]byte("never read"))}
	_, err := store.Put(testContext(), key, src)
	assert.ErrorIs(t, err, object.ErrKeyExists)
	assert.Zero(t, src.read, "reader must not be consumed on collision")
}

func (suite *StoreTestSuite) testConcurrentPutSameKey(t *testing.T) {
	store := suite.NewStore()
	key := "tenants/t1/module-files/crm/2026-01-02/race0000_c.txt"

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		winner    string
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := fmt.Sprintf("writer-%d", i)
			_, err := store.Put(testContext(), key, bytes.NewReader([]byte(payload)))
			if err == nil {
				mu.Lock()
				successes++
				winner = payload
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, object.ErrKeyExists)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, successes, "exactly one writer must win")
	assert.Equal(t, []byte(winner), mustGet(t, store, key))
}

package testing

import (
	"bytes"
	"testing"

	"github.com/marmos91/dittostore/pkg/store/object"
	"github.com/stretchr/testify/assert"
)

// RunKeyValidationTests verifies every operation rejects unsafe keys.
func (suite *StoreTestSuite) RunKeyValidationTests(t *testing.T) {
	store := suite.NewStore()

	invalid := []string{
		"",
		"/absolute/path",
		"trailing/",
		"a//b",
		"a/../b",
		"./a",
		"space in key",
		"back\\slash",
	}

	for _, key := range invalid {
		t.Run(key, func(t *testing.T) {
			_, err := store.Put(testContext(), key, bytes.NewReader([]byte("x")))
			assert.ErrorIs(t, err, object.ErrInvalidKey, "Put")

			_, err = store.Get(testContext(), key)
			assert.ErrorIs(t, err, object.ErrInvalidKey, "Get")

			assert.ErrorIs(t, store.Delete(testContext(), key), object.ErrInvalidKey, "Delete")

			_, err = store.Exists(testContext(), key)
			assert.ErrorIs(t, err, object.ErrInvalidKey, "Exists")
		})
	}
}

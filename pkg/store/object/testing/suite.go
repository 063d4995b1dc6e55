// Package testing provides a conformance suite for object.ObjectStore
// implementations.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittostore/pkg/store/object"
)

// StoreTestSuite tests the ObjectStore contract, not implementation details,
// so it runs unchanged against the filesystem, memory and S3 backends.
//
// Usage:
//
//	func TestMyObjectStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func() object.ObjectStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func() object.ObjectStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("ExclusiveCreate", suite.RunExclusiveTests)
	t.Run("KeyValidation", suite.RunKeyValidationTests)
	t.Run("Listing", suite.RunListTests)
}

func testContext() context.Context {
	return context.Background()
}

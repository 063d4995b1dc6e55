// Package testing provides a conformance suite for catalog.Catalog
// implementations.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittostore/pkg/catalog"
)

// CatalogTestSuite tests the Catalog contract so every backend is held to
// the same tenant-scoping and versioning rules.
//
// Usage:
//
//	func TestMyCatalog(t *testing.T) {
//	    suite := &testing.CatalogTestSuite{
//	        NewCatalog: func() catalog.Catalog {
//	            return mycatalog.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type CatalogTestSuite struct {
	// NewCatalog creates a fresh, empty catalog for each test.
	NewCatalog func() catalog.Catalog
}

// Run executes all tests in the suite.
func (suite *CatalogTestSuite) Run(t *testing.T) {
	t.Run("Objects", suite.RunObjectTests)
	t.Run("Listing", suite.RunListTests)
	t.Run("Versioning", suite.RunVersionTests)
	t.Run("Grants", suite.RunGrantTests)
	t.Run("Orphans", suite.RunOrphanTests)
}

func testContext() context.Context {
	return context.Background()
}

// newCatalog returns a fresh catalog closed at the end of the test.
func (suite *CatalogTestSuite) newCatalog(t *testing.T) catalog.Catalog {
	t.Helper()
	c := suite.NewCatalog()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

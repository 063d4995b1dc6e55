package memory

import (
	"testing"

	"github.com/marmos91/dittostore/pkg/catalog"
	catalogtesting "github.com/marmos91/dittostore/pkg/catalog/testing"
)

// TestMemoryCatalog runs the complete Catalog suite against the memory
// implementation.
func TestMemoryCatalog(t *testing.T) {
	suite := &catalogtesting.CatalogTestSuite{
		NewCatalog: func() catalog.Catalog {
			return NewMemoryCatalog()
		},
	}

	suite.Run(t)
}

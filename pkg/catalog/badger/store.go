// Package badger implements the catalog on BadgerDB, a fast embedded
// key-value store.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/catalog"
)

// maxConflictRetries bounds how often a transaction is replayed after
// BadgerDB reports a write conflict.
const maxConflictRetries = 10

// BadgerCatalog implements catalog.Catalog using BadgerDB for persistence.
//
// Storage Model:
// Records are JSON values under namespaced key prefixes (see keys.go).
// Secondary indexes are maintained in the same transaction as the row they
// point to.
//
// Atomicity:
// BadgerDB transactions are serializable snapshot isolated. Supersede reads
// the old row and writes both rows in one transaction; when two supersedes
// race, one commit fails with badger.ErrConflict and is replayed, and on
// replay it observes the old row as no longer latest. No in-process lock is
// needed.
//
// Thread Safety:
// Safe for concurrent use by multiple goroutines.
type BadgerCatalog struct {
	db *badger.DB
}

// BadgerCatalogConfig contains configuration for the BadgerDB catalog.
type BadgerCatalogConfig struct {
	// DBPath is the directory holding the database files.
	DBPath string `mapstructure:"path"`

	// InMemory keeps the database in memory only. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// NewBadgerCatalog opens (or creates) a BadgerDB catalog.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Database location and cache sizing
//
// Returns:
//   - *BadgerCatalog: Ready-to-use catalog
//   - error: If the database cannot be opened
func NewBadgerCatalog(ctx context.Context, cfg BadgerCatalogConfig) (*BadgerCatalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("badger catalog path is required")
		}
		opts = badger.DefaultOptions(cfg.DBPath)
	}

	// Rows are small JSON documents; compression is not worth its cost.
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	return &BadgerCatalog{db: db}, nil
}

var _ catalog.Catalog = (*BadgerCatalog)(nil)

// Close implements catalog.Catalog.
func (s *BadgerCatalog) Close() error {
	return s.db.Close()
}

// ============================================================================
// Transaction helpers
// ============================================================================

// update runs fn in a read-write transaction, replaying it on conflict.
// fn must be safe to run more than once.
func (s *BadgerCatalog) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return translate(op, err)
		}
		logger.Debug("catalog %s: transaction conflict, retrying (attempt %d)", op, attempt+1)
	}
	return translate(op, err)
}

// view runs fn in a read-only transaction.
func (s *BadgerCatalog) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(op, s.db.View(fn))
}

// translate passes domain errors through and wraps everything else as an
// I/O error.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *catalog.StoreError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return catalog.IOError(op, err)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// scanKeys returns the suffixes (after prefix) of every key under prefix.
func scanKeys(txn *badger.Txn, prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var suffixes []string
	for it.Rewind(); it.Valid(); it.Next() {
		suffixes = append(suffixes, string(it.Item().Key()[len(prefix):]))
	}
	return suffixes
}

// scanValues returns the values of every key under prefix.
func scanValues(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = true

	it := txn.NewIterator(opts)
	defer it.Close()

	var values [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		values = append(values, val)
	}
	return values, nil
}

// Package memory implements an in-process object store.
//
// Content is lost when the process exits. It backs tests and ephemeral
// deployments.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittostore/pkg/store/object"
)

type entry struct {
	data    []byte
	modTime time.Time
}

// MemoryObjectStore implements object.ObjectStore in memory.
//
// Keys being written are tracked in pending so a concurrent Put on the same
// key fails with ErrKeyExists before either writer has consumed its reader.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string]entry
	pending map[string]struct{}

	// maxSizeBytes caps the total stored bytes. Zero means unlimited.
	maxSizeBytes uint64
	usedBytes    uint64
}

// MemoryObjectStoreConfig configures the memory store.
type MemoryObjectStoreConfig struct {
	MaxSizeBytes uint64 `mapstructure:"max_size_bytes"`
}

// NewMemoryObjectStore creates an empty store.
func NewMemoryObjectStore(ctx context.Context, cfg MemoryObjectStoreConfig) (*MemoryObjectStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryObjectStore{
		objects:      make(map[string]entry),
		pending:      make(map[string]struct{}),
		maxSizeBytes: cfg.MaxSizeBytes,
	}, nil
}

// Put implements object.ObjectStore.
func (s *MemoryObjectStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := object.ValidateKey(key); err != nil {
		return 0, err
	}

	s.mu.Lock()
	_, exists := s.objects[key]
	_, writing := s.pending[key]
	if exists || writing {
		s.mu.Unlock()
		return 0, fmt.Errorf("object %s: %w", key, object.ErrKeyExists)
	}
	s.pending[key] = struct{}{}
	s.mu.Unlock()

	data, err := io.ReadAll(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)

	if err != nil {
		return 0, fmt.Errorf("object %s: read object data: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.maxSizeBytes > 0 && s.usedBytes+uint64(len(data)) > s.maxSizeBytes {
		return 0, fmt.Errorf("object %s: %w: store full (%d of %d bytes used)",
			key, object.ErrUnavailable, s.usedBytes, s.maxSizeBytes)
	}

	s.objects[key] = entry{data: data, modTime: time.Now()}
	s.usedBytes += uint64(len(data))

	return int64(len(data)), nil
}

// Get implements object.ObjectStore. The returned reader serves a copy.
func (s *MemoryObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := object.ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, object.ErrObjectNotFound)
	}

	dataCopy := make([]byte, len(e.data))
	copy(dataCopy, e.data)

	return io.NopCloser(bytes.NewReader(dataCopy)), nil
}

// Delete implements object.ObjectStore.
func (s *MemoryObjectStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := object.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.objects[key]; ok {
		s.usedBytes -= uint64(len(e.data))
		delete(s.objects, key)
	}
	return nil
}

// Exists implements object.ObjectStore.
func (s *MemoryObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := object.ValidateKey(key); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[key]
	return ok, nil
}

// List implements object.ObjectStore. Keys are returned sorted.
func (s *MemoryObjectStore) List(ctx context.Context) ([]object.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]object.ObjectInfo, 0, len(s.objects))
	for key, e := range s.objects {
		infos = append(infos, object.ObjectInfo{
			Key:     key,
			Size:    int64(len(e.data)),
			ModTime: e.modTime,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	return infos, nil
}

// UsedBytes returns the total size of stored objects.
func (s *MemoryObjectStore) UsedBytes() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usedBytes
}

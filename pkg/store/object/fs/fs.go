// Package fs implements the object store on a local or mounted filesystem.
//
// Storage keys map directly onto relative paths below the base directory, so
// the on-disk layout mirrors the key hierarchy and stays browsable by
// operators and backup tooling.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/dittostore/pkg/store/object"
)

// tempPrefix marks in-flight uploads. List skips these files.
const tempPrefix = ".upload-"

// FSObjectStore implements object.ObjectStore on the filesystem.
//
// Put reserves the final path with O_EXCL before streaming into a temporary
// file in the same directory, then renames the temporary file over the
// reservation. While a write is in flight the key reads as an empty file,
// never as a partial object, and two concurrent writers on one key cannot
// both succeed.
type FSObjectStore struct {
	basePath string
	dirMode  os.FileMode
	fileMode os.FileMode
}

// NewFSObjectStore creates the store, creating basePath if needed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - basePath: Root directory under which all keys are stored
//
// Returns:
//   - *FSObjectStore: Initialized store
//   - error: If the base directory cannot be created
func NewFSObjectStore(ctx context.Context, basePath string) (*FSObjectStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if basePath == "" {
		return nil, fmt.Errorf("base path is required")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSObjectStore{
		basePath: basePath,
		dirMode:  0755,
		fileMode: 0644,
	}, nil
}

// BasePath returns the root directory of the store.
func (s *FSObjectStore) BasePath() string {
	return s.basePath
}

// AbsolutePath returns the filesystem path for key without touching disk.
func (s *FSObjectStore) AbsolutePath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// Put implements object.ObjectStore.
func (s *FSObjectStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	// ========================================================================
	// Step 1: Validate the key
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := object.ValidateKey(key); err != nil {
		return 0, err
	}

	finalPath := s.AbsolutePath(key)
	dir := filepath.Dir(finalPath)

	// ========================================================================
	// Step 2: Reserve the key (exclusive create)
	// ========================================================================

	// A concurrent Delete may prune the directory between MkdirAll and the
	// reservation, so try twice.
	var reservation *os.File
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = os.MkdirAll(dir, s.dirMode); err != nil {
			return 0, fmt.Errorf("%w: create directory for %s: %w", object.ErrUnavailable, key, err)
		}
		reservation, err = os.OpenFile(finalPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.fileMode)
		if err == nil || !errors.Is(err, iofs.ErrNotExist) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return 0, fmt.Errorf("object %s: %w", key, object.ErrKeyExists)
		}
		return 0, fmt.Errorf("%w: reserve %s: %w", object.ErrUnavailable, key, err)
	}
	_ = reservation.Close()

	// ========================================================================
	// Step 3: Stream into a temporary file and publish it atomically
	// ========================================================================

	n, err := s.writeTemp(ctx, dir, finalPath, r)
	if err != nil {
		_ = os.Remove(finalPath)
		return 0, fmt.Errorf("object %s: %w", key, err)
	}

	return n, nil
}

func (s *FSObjectStore) writeTemp(ctx context.Context, dir, finalPath string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("%w: create temp file: %w", object.ErrUnavailable, err)
	}
	tmpPath := tmp.Name()
	published := false
	defer func() {
		if !published {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	src := &trackingReader{ctx: ctx, r: r}
	n, err := io.Copy(tmp, src)
	if err != nil {
		if src.err != nil {
			// Failure came from the caller's reader or context, not the disk.
			return 0, fmt.Errorf("read object data: %w", src.err)
		}
		return 0, fmt.Errorf("%w: write: %w", object.ErrUnavailable, err)
	}

	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("%w: sync: %w", object.ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("%w: close: %w", object.ErrUnavailable, err)
	}
	if err := os.Chmod(tmpPath, s.fileMode); err != nil {
		return 0, fmt.Errorf("%w: chmod: %w", object.ErrUnavailable, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return 0, fmt.Errorf("%w: publish: %w", object.ErrUnavailable, err)
	}

	published = true
	return n, nil
}

// Get implements object.ObjectStore.
func (s *FSObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := object.ValidateKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(s.AbsolutePath(key))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, object.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("%w: open %s: %w", object.ErrUnavailable, key, err)
	}

	return f, nil
}

// Delete implements object.ObjectStore. Missing objects are not an error.
func (s *FSObjectStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := object.ValidateKey(key); err != nil {
		return err
	}

	path := s.AbsolutePath(key)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: delete %s: %w", object.ErrUnavailable, key, err)
	}

	s.cleanupEmptyDirs(filepath.Dir(path))
	return nil
}

// Exists implements object.ObjectStore.
func (s *FSObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := object.ValidateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(s.AbsolutePath(key))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: stat %s: %w", object.ErrUnavailable, key, err)
	}
	return true, nil
}

// List implements object.ObjectStore by walking the base directory.
func (s *FSObjectStore) List(ctx context.Context) ([]object.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var infos []object.ObjectInfo
	err := filepath.WalkDir(s.basePath, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if len(infos)%100 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				return nil
			}
			return err
		}

		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		infos = append(infos, object.ObjectInfo{
			Key:     filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: list: %w", object.ErrUnavailable, err)
	}

	return infos, nil
}

// cleanupEmptyDirs removes empty directories from dir up to the base path.
// Failures stop the walk silently; leftover empty directories are harmless.
func (s *FSObjectStore) cleanupEmptyDirs(dir string) {
	base := filepath.Clean(s.basePath)
	for dir = filepath.Clean(dir); dir != base && strings.HasPrefix(dir, base); dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

// trackingReader checks the context between reads and remembers errors that
// originate from the source rather than the destination.
type trackingReader struct {
	ctx context.Context
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	if err := t.ctx.Err(); err != nil {
		t.err = err
		return 0, err
	}
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

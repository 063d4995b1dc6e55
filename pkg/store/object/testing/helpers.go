package testing

import (
	"bytes"
	"io"
	"testing"

	"github.com/marmos91/dittostore/pkg/store/object"
	"github.com/stretchr/testify/require"
)

// mustPut stores data under key and fails the test if it errors.
func mustPut(t *testing.T, store object.ObjectStore, key string, data []byte) {
	t.Helper()
	n, err := store.Put(testContext(), key, bytes.NewReader(data))
	require.NoError(t, err, "Put should succeed")
	require.Equal(t, int64(len(data)), n, "Put should report bytes written")
}

// mustGet reads the object under key and fails the test if it errors.
func mustGet(t *testing.T, store object.ObjectStore, key string) []byte {
	t.Helper()
	rc, err := store.Get(testContext(), key)
	require.NoError(t, err, "Get should succeed")
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err, "reading object should succeed")
	return data
}

// mustExist asserts the presence of key.
func mustExist(t *testing.T, store object.ObjectStore, key string, want bool) {
	t.Helper()
	exists, err := store.Exists(testContext(), key)
	require.NoError(t, err, "Exists should succeed")
	require.Equal(t, want, exists, "Exists(%q)", key)
}

// countingReader records how many bytes were pulled from it.
type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

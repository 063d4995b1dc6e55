package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/marmos91/dittostore/pkg/files"
	"github.com/marmos91/dittostore/pkg/share"
)

// cli runs dittostore against a filesystem store and a badger catalog in a
// temporary directory.
type cli struct {
	t   *testing.T
	dir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("DITTOSTORE_OBJECT_STORE_FILESYSTEM_PATH", filepath.Join(dir, "objects"))
	t.Setenv("DITTOSTORE_CATALOG_BADGER_PATH", filepath.Join(dir, "catalog"))
	t.Setenv("DITTOSTORE_SHARES_CODE_HASH_COST", "4")
	t.Setenv("DITTOSTORE_LOGGING_LEVEL", "ERROR")

	return &cli{t: t, dir: dir}
}

func (c *cli) runWithInput(stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	a := &app{stdin: strings.NewReader(stdin), stdout: &out, stderr: io.Discard}
	err := a.execute(context.Background(), args)
	return out.String(), err
}

func (c *cli) run(args ...string) (string, error) {
	return c.runWithInput("", args...)
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "dittostore %s", strings.Join(args, " "))
	return out
}

func (c *cli) file(name, content string) string {
	c.t.Helper()
	path := filepath.Join(c.dir, name)
	require.NoError(c.t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func firstField(out string) string {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func TestCLI_FileLifecycle(t *testing.T) {
	c := newCLI(t)
	who := []string{"--tenant", "acme", "--actor", "alice"}
	args := func(cmd string, rest ...string) []string {
		return append(append([]string{cmd}, who...), rest...)
	}

	// ===== Step 1: upload and read back =====
	out := c.mustRun(args("put", "--module", "hr", "--title", "Contract", c.file("contract.txt", "hello"))...)
	id := firstField(out)
	require.NotEmpty(t, id)

	var obj catalog.StoredObject
	require.NoError(t, json.Unmarshal([]byte(c.mustRun(args("get", id)...)), &obj))
	assert.Equal(t, "contract.txt", obj.Filename)
	assert.Equal(t, "txt", obj.Extension)
	assert.Equal(t, "Contract", obj.Title)
	assert.Equal(t, 1, obj.Version)

	assert.Equal(t, "hello", c.mustRun(args("open", id)...))

	_, err := c.run("open", "--tenant", "acme", "--actor", "mallory", id)
	require.ErrorIs(t, err, files.ErrUnauthorized)

	_, err = c.run("get", "--tenant", "globex", "--actor", "alice", id)
	require.ErrorIs(t, err, files.ErrNotFound)

	// ===== Step 2: new version =====
	out = c.mustRun(args("put", "--replace", id, c.file("contract-v2.txt", "hello again"))...)
	id2 := firstField(out)
	require.NotEqual(t, id, id2)
	assert.Contains(t, out, "v2")

	versions := c.mustRun(args("versions", id2)...)
	assert.Contains(t, versions, id)
	assert.Contains(t, versions, id2)

	latest := c.mustRun(args("ls")...)
	assert.Contains(t, latest, id2)
	assert.NotContains(t, latest, id+" ")
	history := c.mustRun(args("ls", "--history")...)
	assert.Contains(t, history, id)

	_, err = c.run(args("put", "--replace", id, c.file("stale.txt", "late"))...)
	require.ErrorIs(t, err, files.ErrConflict)

	// ===== Step 3: share =====
	grantID := strings.TrimSpace(c.mustRun(args("share", "--level", "download", "--code", "1234", "--with", "bob", id2)...))
	require.NotEmpty(t, grantID)

	assert.Equal(t, "hello again", c.mustRun("open", "--grant", grantID, "--code", "1234"))
	_, err = c.run("open", "--grant", grantID, "--code", "0000")
	reason, denied := share.DenialReason(err)
	require.True(t, denied)
	assert.Equal(t, share.ReasonCodeMismatch, reason)

	grants := c.mustRun(args("share", "--list", id2)...)
	assert.Contains(t, grants, grantID)
	assert.Contains(t, grants, "active")

	assert.Contains(t, c.mustRun(args("revoke", id2, grantID)...), "Revoked "+grantID)
	_, err = c.run("open", "--grant", grantID, "--code", "1234")
	reason, _ = share.DenialReason(err)
	assert.Equal(t, share.ReasonRevoked, reason)

	// ===== Step 4: delete promotes the previous version =====
	assert.Contains(t, c.mustRun(args("rm", id2)...), "Deleted "+id2)
	_, err = c.run(args("get", id2)...)
	require.ErrorIs(t, err, files.ErrNotFound)

	require.NoError(t, json.Unmarshal([]byte(c.mustRun(args("get", id)...)), &obj))
	assert.True(t, obj.IsLatest)

	// ===== Step 5: nothing is orphaned =====
	assert.Contains(t, c.mustRun("gc", "--gc-full"), "deleted=0")
}

func TestCLI_PutFromStdin(t *testing.T) {
	c := newCLI(t)

	_, err := c.runWithInput("data", "put", "--tenant", "acme", "--actor", "alice", "--module", "hr", "-")
	require.Error(t, err, "stdin needs --name")

	out, err := c.runWithInput("%PDF-1.4\n", "put", "--tenant", "acme", "--actor", "alice",
		"--module", "hr", "--name", "scan", "-")
	require.NoError(t, err)

	var obj catalog.StoredObject
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("get", "--tenant", "acme", "--actor", "alice", firstField(out))), &obj))
	assert.Equal(t, "application/pdf", obj.MimeType)
}

func TestCLI_OpenToFile(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun("put", "--tenant", "acme", "--actor", "alice", "--module", "hr", c.file("a.txt", "payload"))

	dst := filepath.Join(c.dir, "copy.txt")
	assert.Empty(t, c.mustRun("open", "--tenant", "acme", "--actor", "alice", "-o", dst, firstField(out)))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestCLI_Init(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.dir, "dittostore.yaml")

	assert.Contains(t, c.mustRun("init", "--config", path), path)
	_, err := c.run("init", "--config", path)
	require.Error(t, err)
	c.mustRun("init", "--config", path, "--force")

	// The written file is usable.
	out := c.mustRun("put", "--config", path, "--tenant", "acme", "--actor", "alice",
		"--module", "hr", c.file("x.txt", "x"))
	assert.NotEmpty(t, firstField(out))
}

func TestCLI_Usage(t *testing.T) {
	c := newCLI(t)

	_, err := c.run()
	require.Error(t, err)

	_, err = c.run("--help")
	require.NoError(t, err)

	_, err = c.run("put", "--help")
	require.NoError(t, err)

	_, err = c.run("frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	_, err = c.run("put", "--bogus")
	require.Error(t, err)

	_, err = c.run("get", "--tenant", "acme", "--actor", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 1 argument")

	_, err = c.run("get", "--actor", "alice", "some-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant is required")
}

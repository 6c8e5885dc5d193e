package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates a small directory tree for cache tests.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// TestSaveRestoreRoundTrip verifies a cached directory survives a
// save into a fresh store and a restore into a clean working directory.
func TestSaveRestoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	workA := t.TempDir()
	writeTree(t, workA, map[string]string{
		"target/debug/dep.o":      "object file",
		"target/release/sp.exe":   "executable",
		"target/.fingerprint/f.x": "fingerprint",
	})

	require.NoError(t, store.Save("spawner", []string{"target"}, workA))

	// A second run starts from a clean checkout.
	workB := t.TempDir()
	require.NoError(t, store.Restore("spawner", []string{"target"}, workB))

	data, err := os.ReadFile(filepath.Join(workB, "target", "release", "sp.exe"))
	require.NoError(t, err)
	assert.Equal(t, "executable", string(data))

	data, err = os.ReadFile(filepath.Join(workB, "target", ".fingerprint", "f.x"))
	require.NoError(t, err)
	assert.Equal(t, "fingerprint", string(data))
}

// TestRestoreMissingEntry verifies a cold restore is a silent no-op.
func TestRestoreMissingEntry(t *testing.T) {
	store := NewStore(t.TempDir())
	work := t.TempDir()

	require.NoError(t, store.Restore("spawner", []string{"target"}, work))

	_, err := os.Stat(filepath.Join(work, "target"))
	assert.True(t, os.IsNotExist(err), "nothing should be created on a cold restore")
}

// TestSaveMissingDir verifies saving a directory that was never created
// is skipped rather than failing the job.
func TestSaveMissingDir(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save("spawner", []string{"target"}, t.TempDir()))

	entries, err := store.List("spawner")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestSaveReplacesStaleFiles verifies a re-save drops files deleted from
// the source tree instead of accumulating them.
func TestSaveReplacesStaleFiles(t *testing.T) {
	store := NewStore(t.TempDir())
	work := t.TempDir()
	writeTree(t, work, map[string]string{
		"target/old.o": "stale",
		"target/new.o": "fresh",
	})

	require.NoError(t, store.Save("spawner", []string{"target"}, work))

	require.NoError(t, os.Remove(filepath.Join(work, "target", "old.o")))
	require.NoError(t, store.Save("spawner", []string{"target"}, work))

	restored := t.TempDir()
	require.NoError(t, store.Restore("spawner", []string{"target"}, restored))

	_, err := os.Stat(filepath.Join(restored, "target", "old.o"))
	assert.True(t, os.IsNotExist(err), "stale file should be gone after re-save")
	_, err = os.Stat(filepath.Join(restored, "target", "new.o"))
	assert.NoError(t, err)
}

// TestListAndClean verifies entry metadata and per-pipeline cleanup.
func TestListAndClean(t *testing.T) {
	store := NewStore(t.TempDir())
	work := t.TempDir()
	writeTree(t, work, map[string]string{
		"target/a": "x",
		"deps/b":   "y",
	})

	require.NoError(t, store.Save("spawner", []string{"target", "deps"}, work))
	require.NoError(t, store.Save("other", []string{"target"}, work))

	entries, err := store.List("spawner")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "deps", entries[0].Path, "entries sorted by path")
	assert.Equal(t, "target", entries[1].Path)
	assert.Equal(t, Key("deps"), entries[0].Key)
	assert.False(t, entries[0].SavedAt.IsZero())

	all, err := store.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.Clean("spawner"))
	entries, err = store.List("spawner")
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The other pipeline's entries are untouched.
	all, err = store.List("")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// TestResolvePathEnvExpansion verifies $NAME expansion for home-style
// cache paths.
func TestResolvePathEnvExpansion(t *testing.T) {
	t.Setenv("PW_TEST_HOME", "/home/ci")

	assert.Equal(t, "/home/ci/.cargo", resolvePath("$PW_TEST_HOME/.cargo", "/work"))
	assert.Equal(t, filepath.Join("/work", "target"), resolvePath("target", "/work"))
}

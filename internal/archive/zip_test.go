package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/internal/model"
)

// TestPackage verifies that an artifact file becomes a single-entry zip
// named after the artifact's base name, with content preserved.
func TestPackage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target", "release"), 0o755))
	content := []byte("fake executable payload")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target", "release", "sp.exe"), content, 0o755))

	art := &model.Artifact{Path: "target/release/sp.exe"}
	require.NoError(t, Package(dir, art))

	zr, err := zip.OpenReader(filepath.Join(dir, "sp.zip"))
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	require.Len(t, zr.File, 1)
	assert.Equal(t, "sp.exe", zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	got := make([]byte, len(content))
	_, err = rc.Read(got)
	if err != nil && err.Error() != "EOF" {
		require.NoError(t, err)
	}
	assert.Equal(t, content, got)
}

// TestPackage_WindowsPath verifies backslash paths from Windows-oriented
// pipeline files resolve on the host.
func TestPackage_WindowsPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target", "release"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target", "release", "sp.exe"), []byte("x"), 0o755))

	art := &model.Artifact{Path: `target\release\sp.exe`, Archive: "bundle.zip"}
	require.NoError(t, Package(dir, art))

	_, err := os.Stat(filepath.Join(dir, "bundle.zip"))
	assert.NoError(t, err)
}

// TestPackage_MissingArtifact verifies a missing build output is an error.
func TestPackage_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	err := Package(dir, &model.Artifact{Path: "target/release/sp.exe"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// TestPackage_DirectoryArtifact verifies directories are rejected.
func TestPackage_DirectoryArtifact(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target"), 0o755))

	err := Package(dir, &model.Artifact{Path: "target"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

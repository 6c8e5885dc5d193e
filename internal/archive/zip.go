// Package archive packages build artifacts into zip files.
//
// The packaging contract is deliberately small, matching the pipeline
// step it replaces (archive one named executable into one zip): each
// declared artifact becomes a single-entry zip whose entry name is the
// base name of the artifact path. The zip is written into the working
// directory so a later deploy step can find it by its declared name.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pipewright/pipewright/internal/model"
)

// Package zips the artifact's file into its archive inside workDir.
// The artifact path may use forward or backward slashes; it is
// normalized before resolution. A missing artifact file is an error:
// the build phase claimed success but produced no output.
func Package(workDir string, art *model.Artifact) error {
	srcPath := filepath.Join(workDir, normalizePath(art.Path))
	info, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("artifact %s not found: %w", art.Path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("artifact %s is a directory, expected a file", art.Path)
	}

	dstPath := filepath.Join(workDir, art.ArchiveName())
	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", art.ArchiveName(), err)
	}
	defer func() { _ = out.Close() }()

	zw := zip.NewWriter(out)

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		_ = zw.Close()
		return err
	}
	header.Name = filepath.Base(srcPath)
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		_ = zw.Close()
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		_ = zw.Close()
		return err
	}
	defer func() { _ = src.Close() }()

	if _, err := io.Copy(entry, src); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write archive %s: %w", art.ArchiveName(), err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive %s: %w", art.ArchiveName(), err)
	}
	return out.Close()
}

// normalizePath converts Windows-style separators to the host's so
// pipeline files written for Windows CI resolve on any platform.
func normalizePath(p string) string {
	return filepath.FromSlash(strings.ReplaceAll(p, `\`, "/"))
}

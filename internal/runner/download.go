package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// downloadTimeout bounds a single toolchain download when the step does
// not declare its own timeout. Installer payloads are typically a few
// megabytes; ten minutes covers slow links.
const downloadTimeout = 10 * time.Minute

// downloadFile fetches url to the destination path, relative to dir.
// Used by install-phase download steps (toolchain acquisition).
//
// The file is written with the executable bit set, since download steps
// overwhelmingly fetch installers that the next step runs.
func downloadFile(ctx context.Context, url, dir, dest string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = downloadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid download URL %q: %w", url, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	target := dest
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, dest)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	// Write to a temporary file first so an interrupted download never
	// leaves a truncated installer behind under the final name.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o755); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, target)
}

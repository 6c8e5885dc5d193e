// Package cache persists build directories across pipeline runs.
//
// Each cached path from the pipeline definition maps to one entry under
// <root>/<pipeline>/<key>, where the key is a short sha256 of the
// configured path string. The entry holds a full copy of the directory
// tree plus an entry.json describing what it is, so `pipewright cache
// list` can show human-readable paths instead of hashes.
//
// The store is deliberately forgiving: restoring an entry that does not
// exist is a no-op (a cold build), and the runner treats any cache error
// as a warning rather than a job failure.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// keyLen is the number of hex characters of the path hash used as the
// entry directory name.
const keyLen = 12

// entryFileName is the metadata file written alongside each entry's tree.
const entryFileName = "entry.json"

// treeDirName is the subdirectory holding the cached directory copy,
// kept separate from the metadata file.
const treeDirName = "tree"

// Store is a filesystem-backed cache keyed by pipeline name and path.
type Store struct {
	// Root is the cache root directory, e.g. ~/.cache/pipewright.
	Root string
}

// NewStore creates a Store rooted at the given directory. The directory
// is created lazily on first save.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

// Entry describes one cached directory, as recorded in entry.json.
type Entry struct {
	// Pipeline is the owning pipeline name.
	Pipeline string `json:"pipeline"`

	// Key is the entry directory name (path hash prefix).
	Key string `json:"key"`

	// Path is the configured cache path, unexpanded, as written in the
	// pipeline file.
	Path string `json:"path"`

	// SavedAt is when the entry was last saved.
	SavedAt time.Time `json:"savedAt"`
}

// Key computes the entry key for a configured cache path.
func Key(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:keyLen]
}

// Save copies each configured directory into the store, replacing any
// previous entry for the same path. Directories that do not exist yet
// (e.g. a build dir on a failed cold run) are skipped silently.
func (s *Store) Save(pipeline string, dirs []string, workDir string) error {
	for _, dir := range dirs {
		src := resolvePath(dir, workDir)
		info, err := os.Stat(src)
		if err != nil || !info.IsDir() {
			continue
		}

		entryDir := filepath.Join(s.Root, pipeline, Key(dir))
		// Replace wholesale so deleted files do not linger in the cache.
		if err := os.RemoveAll(entryDir); err != nil {
			return fmt.Errorf("clear cache entry for %s: %w", dir, err)
		}
		if err := copyTree(src, filepath.Join(entryDir, treeDirName)); err != nil {
			return fmt.Errorf("save cache entry for %s: %w", dir, err)
		}

		meta := Entry{
			Pipeline: pipeline,
			Key:      Key(dir),
			Path:     dir,
			SavedAt:  time.Now().UTC(),
		}
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(entryDir, entryFileName), data, 0o644); err != nil {
			return fmt.Errorf("write cache metadata for %s: %w", dir, err)
		}
	}
	return nil
}

// Restore copies cached entries back to their configured locations.
// Entries that were never saved are skipped: the build simply runs cold.
func (s *Store) Restore(pipeline string, dirs []string, workDir string) error {
	for _, dir := range dirs {
		treeDir := filepath.Join(s.Root, pipeline, Key(dir), treeDirName)
		if info, err := os.Stat(treeDir); err != nil || !info.IsDir() {
			continue
		}

		dst := resolvePath(dir, workDir)
		if err := copyTree(treeDir, dst); err != nil {
			return fmt.Errorf("restore cache entry for %s: %w", dir, err)
		}
	}
	return nil
}

// List returns all entries for the given pipeline, or for every
// pipeline when the name is empty. Entries are sorted by pipeline then
// path for stable output.
func (s *Store) List(pipeline string) ([]Entry, error) {
	var pipelines []string
	if pipeline != "" {
		pipelines = []string{pipeline}
	} else {
		dirs, err := os.ReadDir(s.Root)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, d := range dirs {
			if d.IsDir() {
				pipelines = append(pipelines, d.Name())
			}
		}
	}

	var entries []Entry
	for _, p := range pipelines {
		keyDirs, err := os.ReadDir(filepath.Join(s.Root, p))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, kd := range keyDirs {
			data, err := os.ReadFile(filepath.Join(s.Root, p, kd.Name(), entryFileName))
			if err != nil {
				// An entry without metadata is unusable; skip it.
				continue
			}
			var e Entry
			if err := json.Unmarshal(data, &e); err != nil {
				continue
			}
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Pipeline != entries[j].Pipeline {
			return entries[i].Pipeline < entries[j].Pipeline
		}
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// Clean removes all entries for the given pipeline, or the whole store
// when the name is empty.
func (s *Store) Clean(pipeline string) error {
	target := s.Root
	if pipeline != "" {
		target = filepath.Join(s.Root, pipeline)
	}
	return os.RemoveAll(target)
}

// resolvePath expands $NAME references against the process environment
// and resolves relative paths against the working directory. This lets
// pipeline files cache both project-relative dirs ("target") and home
// dirs ("$HOME/.cargo").
func resolvePath(path, workDir string) string {
	expanded := os.Expand(path, os.Getenv)
	if filepath.IsAbs(expanded) {
		return expanded
	}
	return filepath.Join(workDir, expanded)
}

// copyTree recursively copies src into dst, creating directories and
// overwriting existing files. Symlinks are skipped: cached build trees
// occasionally contain links pointing outside the tree, and copying
// their targets would balloon the cache.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

// copyFile copies a single regular file, preserving its mode.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

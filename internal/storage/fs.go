// Package storage is the local file tree used for the report inbox and the
// export archive. Every access goes through an os.Root, so no path can leave
// the directory.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tempPrefix = ".intelboard-tmp-"

// FileInfo describes one file under the root.
type FileInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FS reads and writes files relative to a directory.
type FS struct {
	dir  string
	root *os.Root
}

// NewFS opens an existing directory.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve %s: %w", dir, err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", abs, err)
	}
	return &FS{dir: abs, root: root}, nil
}

// MkdirFS creates dir if needed and opens it.
func MkdirFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return NewFS(dir)
}

// Root returns the absolute directory.
func (f *FS) Root() string {
	return f.dir
}

// Close releases the directory handle.
func (f *FS) Close() error {
	return f.root.Close()
}

// Rel converts an absolute path (as reported by a file watcher) to the
// slash-separated path used by Read and List.
func (f *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(f.dir, abs)
	if err != nil {
		return "", fmt.Errorf("storage: rel %s: %w", abs, err)
	}
	rel = filepath.ToSlash(rel)
	if !fs.ValidPath(rel) || rel == "." {
		return "", fmt.Errorf("storage: %s is outside %s", abs, f.dir)
	}
	return rel, nil
}

// List returns every file under dir whose name ends in ext. Names starting
// with a dot are skipped, directories included.
func (f *FS) List(dir, ext string) ([]FileInfo, error) {
	start := path.Clean("./" + dir)
	if !fs.ValidPath(start) {
		return nil, fmt.Errorf("storage: invalid dir %q", dir)
	}
	fsys := f.root.FS()

	var out []FileInfo
	err := fs.WalkDir(fsys, start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := p != start && strings.HasPrefix(d.Name(), ".")
		switch {
		case d.IsDir() && hidden:
			return fs.SkipDir
		case d.IsDir(), hidden, !strings.HasSuffix(d.Name(), ext):
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		out = append(out, FileInfo{Path: p, Checksum: Checksum(data), UpdatedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	return out, nil
}

// Read returns the bytes of the file at p.
func (f *FS) Read(p string) ([]byte, error) {
	data, err := f.root.ReadFile(filepath.FromSlash(p))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

// Write replaces the file at p: the content goes to a temp file in the same
// directory, is synced, then renamed over p. Parent directories are created.
func (f *FS) Write(p string, content []byte) error {
	name := filepath.FromSlash(p)
	dir := filepath.Dir(name)
	if dir != "." {
		if err := f.root.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("storage: write %s: %w", p, err)
		}
	}

	tmp := filepath.Join(dir, tempPrefix+uuid.NewString())
	file, err := f.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", p, err)
	}
	_, err = file.Write(content)
	if err == nil {
		err = file.Sync()
	}
	err = errors.Join(err, file.Close())
	if err == nil {
		err = f.root.Rename(tmp, name)
	}
	if err != nil {
		_ = f.root.Remove(tmp)
		return fmt.Errorf("storage: write %s: %w", p, err)
	}
	return nil
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

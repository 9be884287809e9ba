package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/starford/notebundle/internal/checksum"
	"github.com/starford/notebundle/internal/models"
)

const tmpPrefix = models.TempPrefix

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the root and rejects any result
// that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

// Read returns the raw bytes of a file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: cannot write to root")
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	return writeAtomic(abs, content)
}

func writeAtomic(abs string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(abs), tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a file.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// RemoveAll removes a file or directory tree. The root itself is refused.
func (f *FS) RemoveAll(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: refusing to remove root")
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}

// Entries lists the direct children of dir, skipping temp files left by
// interrupted writes.
func (f *FS) Entries(dir string) ([]models.Entry, error) {
	abs, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	out := make([]models.Entry, 0, len(des))
	for _, d := range des {
		if strings.HasPrefix(d.Name(), tmpPrefix) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", d.Name(), err)
		}
		out = append(out, models.Entry{
			Name:    d.Name(),
			IsDir:   d.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

// ReplaceDir writes files into a staging directory next to dir and swaps it
// in with renames, so readers see either the old or the new directory.
func (f *FS) ReplaceDir(dir string, files map[string][]byte) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: cannot replace root")
	}
	parent := filepath.Dir(abs)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	stage, err := os.MkdirTemp(parent, tmpPrefix+"stage-*")
	if err != nil {
		return fmt.Errorf("storage: create staging dir: %w", err)
	}
	defer os.RemoveAll(stage) // no-op once renamed into place

	for name, content := range files {
		if name != filepath.Base(name) || name == "." || name == ".." {
			return fmt.Errorf("storage: invalid file name in %s: %q", dir, name)
		}
		if err := writeAtomic(filepath.Join(stage, name), content); err != nil {
			return err
		}
	}

	var old string
	if _, err := os.Lstat(abs); err == nil {
		old = filepath.Join(parent, tmpPrefix+"old-"+filepath.Base(abs)+"-"+fmt.Sprint(time.Now().UnixNano()))
		if err := os.Rename(abs, old); err != nil {
			return fmt.Errorf("storage: move aside %s: %w", dir, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: stat %s: %w", dir, err)
	}
	if err := os.Rename(stage, abs); err != nil {
		if old != "" {
			_ = os.Rename(old, abs)
		}
		return fmt.Errorf("storage: swap in %s: %w", dir, err)
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

// Move renames a file or directory within the root.
func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

// Packages walks the root and describes every directory whose name ends in
// ext. Package directories are not descended into.
func (f *FS) Packages(ext string) ([]models.PackageMetadata, error) {
	var out []models.PackageMetadata
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() || p == f.root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, _ := filepath.Rel(f.root, p)
		meta, err := f.packageMetadata(rel)
		if err != nil {
			return err
		}
		out = append(out, meta)
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("storage: packages: %w", err)
	}
	slices.SortFunc(out, func(a, b models.PackageMetadata) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// PackageMetadata describes the package at rel.
func (f *FS) PackageMetadata(rel string) (models.PackageMetadata, error) {
	return f.packageMetadata(rel)
}

func (f *FS) packageMetadata(rel string) (models.PackageMetadata, error) {
	meta := models.PackageMetadata{Path: rel}

	textPath, err := f.safePath(filepath.Join(rel, models.TextFile))
	if err != nil {
		return meta, err
	}
	text, err := os.ReadFile(textPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return meta, err
	}
	if info, err := os.Stat(textPath); err == nil {
		meta.UpdatedAt = info.ModTime()
	}

	sizes := make(map[string]int64)
	entries, err := f.Entries(filepath.Join(rel, models.AttachmentsDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return meta, err
	}
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		sizes[e.Name] = e.Size
		if e.ModTime.After(meta.UpdatedAt) {
			meta.UpdatedAt = e.ModTime
		}
	}
	meta.Attachments = len(sizes)
	meta.Checksum = checksum.Package(text, sizes)
	return meta, nil
}

// Package storage defines the file-system abstraction for document packages
// and the libraries that contain them.
package storage

import "github.com/starford/notebundle/internal/models"

// Provider is the interface for file operations relative to a root
// directory (a package root or a library root).
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// RemoveAll removes path and everything below it. Missing paths are fine.
	RemoveAll(path string) error
	// Entries lists the direct children of dir, sorted by name.
	Entries(dir string) ([]models.Entry, error)
	// ReplaceDir swaps dir for a freshly written directory holding exactly
	// files (name → content).
	ReplaceDir(dir string, files map[string][]byte) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Packages lists every package directory with the given extension.
	Packages(ext string) ([]models.PackageMetadata, error)
	// PackageMetadata describes the single package at path.
	PackageMetadata(path string) (models.PackageMetadata, error)
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)

// Package testutil provides shared test helpers for setting up libraries,
// packages and catalogs.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/notebundle/internal/index"
	"github.com/starford/notebundle/internal/note"
	"github.com/starford/notebundle/internal/pkgcodec"
	"github.com/starford/notebundle/internal/richtext"
	"github.com/starford/notebundle/internal/storage"
)

// Ext is the package extension used by test libraries.
const Ext = ".pkg"

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notebundle-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory with a storage.Provider.
func TestLibrary(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	lib, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, lib
}

// WritePackage saves a package at rel under root holding text and the
// given attachments, and returns its absolute path.
func WritePackage(t *testing.T, root, rel, text string, attachments map[string][]byte) string {
	t.Helper()
	n := note.New()
	n.SetText(richtext.Text(text))
	for name, data := range attachments {
		if _, err := n.Attachments().Add(name, data); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	abs := filepath.Join(root, rel)
	if err := pkgcodec.Save(context.Background(), n, abs); err != nil {
		t.Fatalf("save %s: %v", rel, err)
	}
	return abs
}

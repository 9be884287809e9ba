package index

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/notebundle/internal/storage"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestPackageOf(t *testing.T) {
	cases := map[string]string{
		"doc.pkg":                       "doc.pkg",
		"doc.pkg/Text.rtf":              "doc.pkg",
		"a/b/doc.pkg/Attachments/x.png": filepath.Join("a", "b", "doc.pkg"),
		"doc.pkg/.notebundle-tmp-123":   "doc.pkg",
		"folder/readme.txt":             "",
		".trash/doc.pkg/Text.rtf":       "",
		".pkg":                          "",
	}
	for rel, want := range cases {
		if got := packageOf(filepath.FromSlash(rel), ".pkg"); got != want {
			t.Errorf("packageOf(%q) = %q, want %q", rel, got, want)
		}
	}
}

// recorder collects watcher callbacks as "kind:path".
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+path)
}

func (r *recorder) saw(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, event)
}

// startWatch runs Watch until the test ends and waits for it to settle.
func startWatch(t *testing.T, db *DB, dir string) *recorder {
	t.Helper()
	lib, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	rec := &recorder{}
	go func() {
		defer close(done)
		_ = Watch(ctx, db, lib, ".pkg", discardLogger(), rec.record)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return rec
}

func indexed(db *DB, path string) func() bool {
	return func() bool {
		cs, _ := db.GetChecksum(path)
		return cs != ""
	}
}

func TestWatcherIndexesNewPackage(t *testing.T) {
	dir, _ := testLibrary(t)
	db := testDB(t)
	rec := startWatch(t, db, dir)

	writePackage(t, dir, "new.pkg", "Fresh note", map[string]string{"a.txt": "a"})

	eventually(t, 5*time.Second, 50*time.Millisecond, indexed(db, "new.pkg"), "new package not indexed")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool { return rec.saw("created:new.pkg") },
		"expected created:new.pkg callback")
}

func TestWatcherFollowsNewFolders(t *testing.T) {
	dir, _ := testLibrary(t)
	db := testDB(t)
	startWatch(t, db, dir)

	if err := os.MkdirAll(filepath.Join(dir, "trips", "2026"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	writePackage(t, dir, "trips/2026/lisbon.pkg", "Lisbon", nil)

	eventually(t, 5*time.Second, 50*time.Millisecond, indexed(db, filepath.Join("trips", "2026", "lisbon.pkg")),
		"package in new folder not indexed")
}

func TestWatcherReindexesEditedText(t *testing.T) {
	dir, lib := testLibrary(t)
	db := testDB(t)
	writePackage(t, dir, "edit.pkg", "Before", nil)
	if err := Sync(context.Background(), db, lib, ".pkg", discardLogger()); err != nil {
		t.Fatal(err)
	}
	rec := startWatch(t, db, dir)

	writePackage(t, dir, "edit.pkg", "After", nil)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		d, err := db.GetDocument("edit.pkg")
		return err == nil && d.Title == "After"
	}, "edited package not re-indexed")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool { return rec.saw("updated:edit.pkg") },
		"expected updated:edit.pkg callback")
}

func TestWatcherSeesDroppedAttachment(t *testing.T) {
	dir, lib := testLibrary(t)
	db := testDB(t)
	writePackage(t, dir, "trip.pkg", "Trip", nil)
	if err := Sync(context.Background(), db, lib, ".pkg", discardLogger()); err != nil {
		t.Fatal(err)
	}
	startWatch(t, db, dir)

	attDir := filepath.Join(dir, "trip.pkg", "Attachments")
	if err := os.MkdirAll(attDir, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(attDir, "map.loc"), []byte(`{"lat":1,"long":2}`), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		locs, _ := db.Locations()
		return len(locs) == 1 && locs[0].Name == "map.loc"
	}, "dropped location attachment not cataloged")
}

func TestWatcherDropsDeletedPackage(t *testing.T) {
	dir, lib := testLibrary(t)
	db := testDB(t)
	writePackage(t, dir, "del.pkg", "Delete me", nil)
	if err := Sync(context.Background(), db, lib, ".pkg", discardLogger()); err != nil {
		t.Fatal(err)
	}
	rec := startWatch(t, db, dir)

	if err := os.RemoveAll(filepath.Join(dir, "del.pkg")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool { return !indexed(db, "del.pkg")() },
		"deleted package still in index")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool { return rec.saw("deleted:del.pkg") },
		"expected deleted:del.pkg callback")
}

func TestWatcherReconcilesRename(t *testing.T) {
	dir, lib := testLibrary(t)
	db := testDB(t)
	writePackage(t, dir, "old.pkg", "Rename", nil)
	if err := Sync(context.Background(), db, lib, ".pkg", discardLogger()); err != nil {
		t.Fatal(err)
	}
	startWatch(t, db, dir)

	if err := os.Rename(filepath.Join(dir, "old.pkg"), filepath.Join(dir, "renamed.pkg")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !indexed(db, "old.pkg")() && indexed(db, "renamed.pkg")()
	}, "rename not reconciled: old path should be removed and new path indexed")
}

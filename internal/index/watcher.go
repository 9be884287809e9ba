package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notebundle/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven catalog change.
// kind is one of EventCreated, EventUpdated, EventDeleted.
type EventCallback func(kind string, path string)

// settleDelay is how long a package must be quiet before it is re-indexed.
// A single save touches several files.
const settleDelay = 250 * time.Millisecond

func changeKind(known bool) string {
	if known {
		return EventUpdated
	}
	return EventCreated
}

// Watch starts an fsnotify watcher on the library root and keeps the
// catalog current until ctx is cancelled. It calls cb (if non-nil) after
// each successful catalog mutation.
//
// Changes are attributed to the enclosing package directory and debounced.
// Renames or removals outside any package trigger a full reconciliation.
func Watch(ctx context.Context, db Catalog, lib storage.Provider, ext string, logger *slog.Logger, cb EventCallback) error {
	root := lib.Root()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root), slog.String("ext", ext))

	pending := make(map[string]struct{})
	reconcile := false
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(settleDelay)
			timerCh = timer.C
		} else {
			timer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			if reconcile {
				reconcile = false
				if err := syncWith(ctx, db, lib, ext, logger, cb); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
				}
			}
			for pkg := range pending {
				refreshPackage(ctx, db, lib, pkg, logger, cb)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || rel == "." {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() && !hidden(info.Name()) {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", rel))
					}
					for _, pkg := range packagesUnder(root, ev.Name, ext) {
						pending[pkg] = struct{}{}
					}
				}
			}

			if pkg := packageOf(rel, ext); pkg != "" {
				pending[pkg] = struct{}{}
				schedule()
				continue
			}
			if ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				// A folder of packages may have moved away.
				reconcile = true
			}
			if len(pending) > 0 || reconcile {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// refreshPackage re-indexes or drops one package after it settled.
func refreshPackage(ctx context.Context, db Catalog, lib storage.Provider, pkg string, logger *slog.Logger, cb EventCallback) {
	old, err := db.GetChecksum(pkg)
	if err != nil {
		logger.Warn("watcher: checksum lookup failed", slog.String("path", pkg), slog.String("error", err.Error()))
		return
	}

	info, statErr := os.Stat(filepath.Join(lib.Root(), pkg))
	if statErr != nil || !info.IsDir() {
		if old == "" {
			return
		}
		if delErr := db.DeleteDocument(pkg); delErr != nil {
			logger.Warn("watcher: delete failed", slog.String("path", pkg), slog.String("error", delErr.Error()))
			return
		}
		logger.Debug("watcher: deleted", slog.String("path", pkg))
		if cb != nil {
			cb(EventDeleted, pkg)
		}
		return
	}

	meta, err := lib.PackageMetadata(pkg)
	if err != nil {
		logger.Warn("watcher: stat package failed", slog.String("path", pkg), slog.String("error", err.Error()))
		return
	}
	if old == meta.Checksum {
		return
	}
	if err := IndexPackage(ctx, db, lib, meta); err != nil {
		// Usually a package still being written; the next event retries.
		logger.Debug("watcher: index failed", slog.String("path", pkg), slog.String("error", err.Error()))
		return
	}
	kind := changeKind(old != "")
	logger.Debug("watcher: indexed", slog.String("path", pkg), slog.String("op", kind))
	if cb != nil {
		cb(kind, pkg)
	}
}

// packageOf returns the package directory containing rel, or "" when rel
// lies outside any package.
func packageOf(rel, ext string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		if hidden(p) && i < len(parts)-1 {
			return ""
		}
		if strings.HasSuffix(p, ext) && len(p) > len(ext) {
			return filepath.Join(parts[:i+1]...)
		}
	}
	return ""
}

// packagesUnder lists the packages inside a newly appeared directory.
func packagesUnder(root, dir, ext string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if hidden(d.Name()) {
			return filepath.SkipDir
		}
		if strings.HasSuffix(d.Name(), ext) {
			if rel, relErr := filepath.Rel(root, p); relErr == nil {
				out = append(out, rel)
			}
			return filepath.SkipDir
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its visible subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

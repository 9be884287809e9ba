package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/notebundle/internal/classify"
	"github.com/starford/notebundle/internal/models"
	"github.com/starford/notebundle/internal/note"
	"github.com/starford/notebundle/internal/parser"
	"github.com/starford/notebundle/internal/pkgcodec"
	"github.com/starford/notebundle/internal/storage"
)

// maxLocationBytes bounds how much of an attachment is read to decide
// whether it is a location.
const maxLocationBytes = 64 << 10

// Sync walks the library and brings the catalog up to date:
//   - new/changed packages are loaded and upserted
//   - packages removed from disk are deleted from the catalog
func Sync(ctx context.Context, db Catalog, lib storage.Provider, ext string, logger *slog.Logger) error {
	return syncWith(ctx, db, lib, ext, logger, nil)
}

func syncWith(ctx context.Context, db Catalog, lib storage.Provider, ext string, logger *slog.Logger, cb EventCallback) error {
	metas, err := lib.Packages(ext)
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		disk[m.Path] = struct{}{}

		old, known := checksums[m.Path]
		if known && old == m.Checksum {
			continue
		}
		if err := IndexPackage(ctx, db, lib, m); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: indexed", slog.String("path", m.Path))
		if cb != nil {
			cb(changeKind(known), m.Path)
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
				if cb != nil {
					cb(EventDeleted, p)
				}
			}
		}
	}

	return nil
}

// IndexPackage loads the package described by meta and upserts it.
func IndexPackage(ctx context.Context, db Catalog, lib storage.Provider, meta models.PackageMetadata) error {
	n, err := pkgcodec.Load(ctx, filepath.Join(lib.Root(), meta.Path))
	if err != nil {
		return err
	}
	sum := parser.Summarize(string(n.Text()))
	title := sum.Title
	if title == "" {
		base := filepath.Base(meta.Path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	var rows []AttachmentRow
	for a := range n.Attachments().All() {
		rows = append(rows, describeAttachment(meta.Path, a))
	}

	return db.UpsertDocument(DocumentRow{
		Path:        meta.Path,
		Title:       title,
		Snippet:     sum.Snippet,
		Tags:        sum.Tags,
		Checksum:    meta.Checksum,
		Attachments: len(rows),
		UpdatedAt:   meta.UpdatedAt,
	}, sum.Body, sum.Refs, rows)
}

func describeAttachment(doc string, a *note.Attachment) AttachmentRow {
	row := AttachmentRow{Document: doc, Name: a.Name()}
	row.Type, _ = classify.TypeForName(a.Name())
	if info, err := os.Stat(a.Path()); err == nil {
		row.Size = info.Size()
	}
	if row.Size <= maxLocationBytes {
		if data, err := a.Bytes(); err == nil {
			row.IsLocation = classify.IsLocationAttachment(a.Name(), data)
		}
	}
	return row
}

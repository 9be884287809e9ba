// Package pkgcodec reads and writes note document packages:
//
//	<document>.pkg/
//	  Text.rtf
//	  Attachments/
//	  QuickLook/Preview.rtf
//	  QuickLook/Thumbnail.png
//
// Save rewrites the text and the QuickLook directory every time but merges
// the Attachments directory: only entries added or removed since the last
// save are touched.
package pkgcodec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/starford/notebundle/internal/apperr"
	"github.com/starford/notebundle/internal/models"
	"github.com/starford/notebundle/internal/note"
	"github.com/starford/notebundle/internal/storage"
	"github.com/starford/notebundle/internal/thumbnail"
)

// Load reads the package at root into a note.
func Load(ctx context.Context, root string, opts ...Option) (*note.Note, error) {
	o := buildOptions(opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, apperr.E(apperr.CannotAccessDocument, "load", root, err)
	}
	if !info.IsDir() {
		return nil, apperr.E(apperr.CannotAccessDocument, "load", root, errors.New("not a package directory"))
	}
	fsys, err := storage.NewFS(root)
	if err != nil {
		return nil, apperr.E(apperr.CannotAccessDocument, "load", root, err)
	}
	abs := fsys.Root()

	entries, err := fsys.Entries("")
	if err != nil {
		return nil, apperr.E(apperr.CannotLoadFileWrappers, "load", abs, err)
	}
	var hasText, hasAttachments bool
	for _, e := range entries {
		switch {
		case e.Name == models.TextFile && !e.IsDir:
			hasText = true
		case e.Name == models.AttachmentsDir:
			hasAttachments = true
		}
	}
	if !hasText {
		return nil, apperr.E(apperr.CannotLoadText, "load", abs, fmt.Errorf("%s: %w", models.TextFile, apperr.ErrNotFound))
	}

	raw, err := fsys.Read(models.TextFile)
	if err != nil {
		return nil, apperr.E(apperr.CannotLoadText, "load", abs, err)
	}
	text, err := o.codec.Parse(raw)
	if err != nil {
		return nil, apperr.E(apperr.CannotLoadText, "load", abs, err)
	}

	store := note.NewStore()
	store.Bind(filepath.Join(abs, models.AttachmentsDir))
	if hasAttachments {
		// The store stays bound to the path, so a later Add reports
		// CannotAccessAttachments.
		if err := adoptAttachments(fsys, store, o.logger); err != nil {
			o.logger.Warn("attachments not loaded",
				slog.String("path", abs),
				slog.String("error", err.Error()),
			)
		}
	}

	o.logger.Info("package loaded",
		slog.String("path", abs),
		slog.Int("attachments", store.Len()),
	)
	return note.Restore(text, store, abs), nil
}

func adoptAttachments(fsys *storage.FS, store *note.Store, logger *slog.Logger) error {
	entries, err := fsys.Entries(models.AttachmentsDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir {
			logger.Debug("skipping non-file attachment entry", slog.String("name", e.Name))
			continue
		}
		store.Adopt(e.Name, filepath.Join(store.Dir(), e.Name))
	}
	return nil
}

// Save writes n to the package at root, creating it if needed. The note goes
// through Saving and ends Loaded on success or Dirty on failure.
//
// Save is not transactional across the package. Each file and the
// QuickLook directory are replaced atomically, so a failure leaves every
// artifact either old or new.
func Save(ctx context.Context, n *note.Note, root string, opts ...Option) error {
	o := buildOptions(opts)
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return apperr.E(apperr.CannotAccessDocument, "save", root, err)
	}
	if err := n.BeginSave(); err != nil {
		return err
	}
	start := time.Now()
	err = save(ctx, n, abs, o)
	n.FinishSave(abs, err)
	if err != nil {
		o.logger.Error("package save failed",
			slog.String("path", abs),
			slog.String("error", err.Error()),
		)
		return err
	}
	o.logger.Info("package saved",
		slog.String("path", abs),
		slog.Int("attachments", n.Attachments().Len()),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func save(ctx context.Context, n *note.Note, root string, o *options) error {
	data, err := o.codec.Serialize(n.Text())
	if err != nil {
		return apperr.E(apperr.CannotSaveText, "save", root, err)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return apperr.E(apperr.CannotAccessDocument, "save", root, err)
	}
	fsys, err := storage.NewFS(root)
	if err != nil {
		return apperr.E(apperr.CannotAccessDocument, "save", root, err)
	}

	if err := fsys.Write(models.TextFile, data); err != nil {
		return apperr.E(apperr.CannotSaveText, "save", root, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	previewErr := writeQuickLook(fsys, n, data, o)
	if previewErr != nil && !o.strictPreview {
		o.logger.Warn("quicklook preview not updated",
			slog.String("path", root),
			slog.String("error", previewErr.Error()),
		)
		previewErr = nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := writeAttachments(fsys, n, root, o.logger); err != nil {
		return err
	}
	return previewErr
}

func writeQuickLook(fsys storage.Provider, n *note.Note, text []byte, o *options) error {
	var first thumbnail.Attachment
	if list := n.Attachments().List(); len(list) > 0 {
		first = list[0]
	}
	png, err := o.thumbnails.Build(string(n.Text()), first, o.thumbnailSize)
	if err != nil {
		if !errors.Is(err, apperr.CannotSaveAttachment) {
			err = apperr.E(apperr.CannotSaveAttachment, "build thumbnail", fsys.Root(), err)
		}
		return err
	}
	err = fsys.ReplaceDir(models.QuickLookDir, map[string][]byte{
		models.PreviewFile:   text,
		models.ThumbnailFile: png,
	})
	if err != nil {
		return apperr.E(apperr.CannotSaveAttachment, "save quicklook", fsys.Root(), err)
	}
	return nil
}

// writeAttachments merges the pending attachment changes into the package.
// Saving to a package other than the note's origin copies every attachment
// into a fresh Attachments directory instead.
func writeAttachments(fsys storage.Provider, n *note.Note, root string, logger *slog.Logger) error {
	store := n.Attachments()
	if n.Origin() != root {
		return copyAttachments(fsys, store)
	}

	added, removed := store.Pending()
	for _, name := range removed {
		err := fsys.Delete(path.Join(models.AttachmentsDir, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return apperr.E(apperr.CannotSaveAttachment, "remove attachment", name, err)
		}
	}
	for _, a := range added {
		data, err := a.Bytes()
		if err != nil {
			return apperr.E(apperr.CannotSaveAttachment, "write attachment", a.Name(), err)
		}
		if err := fsys.Write(path.Join(models.AttachmentsDir, a.Name()), data); err != nil {
			return apperr.E(apperr.CannotSaveAttachment, "write attachment", a.Name(), err)
		}
	}
	if len(added)+len(removed) > 0 {
		logger.Debug("attachments merged",
			slog.Int("added", len(added)),
			slog.Int("removed", len(removed)),
		)
	}
	return nil
}

func copyAttachments(fsys storage.Provider, store *note.Store) error {
	if store.Len() == 0 {
		if err := fsys.RemoveAll(models.AttachmentsDir); err != nil {
			return apperr.E(apperr.CannotSaveAttachment, "copy attachments", fsys.Root(), err)
		}
		return nil
	}
	files := make(map[string][]byte, store.Len())
	for a := range store.All() {
		data, err := a.Bytes()
		if err != nil {
			return apperr.E(apperr.CannotSaveAttachment, "copy attachment", a.Name(), err)
		}
		files[a.Name()] = data
	}
	if err := fsys.ReplaceDir(models.AttachmentsDir, files); err != nil {
		return apperr.E(apperr.CannotSaveAttachment, "copy attachments", fsys.Root(), err)
	}
	return nil
}

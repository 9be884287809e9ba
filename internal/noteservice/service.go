package noteservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/notebundle/internal/apperr"
	"github.com/starford/notebundle/internal/index"
	"github.com/starford/notebundle/internal/richtext"
	"github.com/starford/notebundle/internal/storage"
)

// ErrInvalidPath is returned for package paths outside the library or
// without the package extension.
var ErrInvalidPath = errors.New("noteservice: invalid package path")

// DocumentDetail is the full representation of a cataloged document.
type DocumentDetail struct {
	Path        string           `json:"path"`
	Title       string           `json:"title"`
	Text        string           `json:"text"`
	Checksum    string           `json:"checksum"`
	Tags        []string         `json:"tags"`
	Attachments []AttachmentInfo `json:"attachments"`
	Backlinks   []string         `json:"backlinks"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// DocumentListItem is a lightweight item in a list response.
type DocumentListItem struct {
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Tags        []string  `json:"tags"`
	Attachments int       `json:"attachments"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LocationItem is a location attachment found in the library.
type LocationItem struct {
	Document string  `json:"document"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Long     float64 `json:"long"`
}

// Service coordinates a library of packages with the catalog.
type Service struct {
	lib  storage.Provider
	db   index.Catalog
	ext  string
	opts []Option
}

// NewService creates a library service. ext is the package directory
// extension, such as ".pkg"; opts apply to every opened Document.
func NewService(lib storage.Provider, db index.Catalog, ext string, opts ...Option) *Service {
	return &Service{lib: lib, db: db, ext: ext, opts: opts}
}

// Extension returns the package extension the library uses.
func (s *Service) Extension() string { return s.ext }

// ListDocuments returns paginated catalog entries, optionally filtered by
// tag. sort is "title" or "updated".
func (s *Service) ListDocuments(_ context.Context, limit, offset int, tag, sort string) ([]DocumentListItem, int, error) {
	rows, total, err := s.db.ListDocuments(limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]DocumentListItem, len(rows))
	for i, r := range rows {
		items[i] = DocumentListItem{
			Path:        r.Path,
			Title:       r.Title,
			Snippet:     r.Snippet,
			Tags:        nonNilSlice(r.Tags),
			Attachments: r.Attachments,
			UpdatedAt:   r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the catalog.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// GetDocument loads a cataloged package and enriches it with backlinks.
func (s *Service) GetDocument(ctx context.Context, rel string) (*DocumentDetail, error) {
	row, err := s.db.GetDocument(rel)
	if err != nil {
		return nil, err
	}
	doc, err := s.OpenDocument(ctx, rel)
	if err != nil {
		return nil, err
	}
	text, err := doc.Text()
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(row.Title)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{
		Path:        row.Path,
		Title:       row.Title,
		Text:        string(text),
		Checksum:    row.Checksum,
		Tags:        nonNilSlice(row.Tags),
		Attachments: nonNilSlice(doc.Attachments()),
		Backlinks:   nonNilSlice(bl),
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// OpenDocument starts an editing session over the package at rel.
func (s *Service) OpenDocument(ctx context.Context, rel string) (*Document, error) {
	abs, _, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("noteservice: open %s: %w", rel, apperr.ErrNotFound)
	}
	return Open(ctx, abs, s.opts...)
}

// CreateDocument writes a new package holding text, catalogs it and returns
// a session over it.
func (s *Service) CreateDocument(ctx context.Context, rel string, text richtext.Text) (*Document, error) {
	abs, key, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err == nil {
		return nil, fmt.Errorf("noteservice: create %s: %w", rel, apperr.ErrAlreadyExists)
	}
	doc := Blank(s.opts...)
	if err := doc.SetText(text); err != nil {
		return nil, err
	}
	if err := doc.SavePackageAs(ctx, abs); err != nil {
		return nil, err
	}
	if err := s.Reindex(ctx, key); err != nil {
		return nil, err
	}
	return doc, nil
}

// Reindex refreshes the catalog entry of one package, removing it when the
// package no longer exists.
func (s *Service) Reindex(ctx context.Context, rel string) error {
	abs, key, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		return s.db.DeleteDocument(key)
	}
	meta, err := s.lib.PackageMetadata(key)
	if err != nil {
		return err
	}
	return index.IndexPackage(ctx, s.db, s.lib, meta)
}

// MoveDocument renames the package at from to to and moves its catalog
// entry along. Open sessions on the old path keep their old location.
func (s *Service) MoveDocument(ctx context.Context, from, to string) error {
	fromAbs, fromKey, err := s.resolve(from)
	if err != nil {
		return err
	}
	toAbs, toKey, err := s.resolve(to)
	if err != nil {
		return err
	}
	if _, err := os.Stat(fromAbs); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("noteservice: move %s: %w", from, apperr.ErrNotFound)
	}
	if _, err := os.Stat(toAbs); err == nil {
		return fmt.Errorf("noteservice: move to %s: %w", to, apperr.ErrAlreadyExists)
	}
	if err := s.lib.Move(fromKey, toKey); err != nil {
		return fmt.Errorf("noteservice: move %s: %w", from, err)
	}
	if err := s.db.DeleteDocument(fromKey); err != nil {
		return err
	}
	return s.Reindex(ctx, toKey)
}

// Sync brings the whole catalog up to date with the library.
func (s *Service) Sync(ctx context.Context) error {
	return index.Sync(ctx, s.db, s.lib, s.ext, buildOptions(s.opts).logger)
}

// Locations lists every location attachment in the library with its
// coordinates.
func (s *Service) Locations(ctx context.Context) ([]LocationItem, error) {
	rows, err := s.db.Locations()
	if err != nil {
		return nil, err
	}
	var out []LocationItem
	for _, r := range rows {
		doc, err := s.OpenDocument(ctx, r.Document)
		if err != nil {
			continue
		}
		action, err := doc.ResolveOpenAction(r.Name)
		if err != nil {
			continue
		}
		if loc, ok := action.(OpenLocation); ok {
			out = append(out, LocationItem{Document: r.Document, Name: r.Name, Lat: loc.Lat, Long: loc.Long})
		}
	}
	return nonNilSlice(out), nil
}

// resolve validates rel and returns the absolute package path together with
// the cleaned, slash-separated path the catalog keys it by.
func (s *Service) resolve(rel string) (string, string, error) {
	if rel == "" || filepath.IsAbs(rel) || !strings.HasSuffix(rel, s.ext) || len(rel) == len(s.ext) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
		}
	}
	return filepath.Join(s.lib.Root(), clean), filepath.ToSlash(clean), nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

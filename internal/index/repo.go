package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/notebundle/internal/apperr"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path        string
	Title       string
	Snippet     string
	Tags        []string
	Checksum    string
	Attachments int
	UpdatedAt   time.Time
}

// AttachmentRow describes one attachment of an indexed document.
type AttachmentRow struct {
	Document   string
	Name       string
	Type       string
	Size       int64
	IsLocation bool
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string
	Title   string
	Snippet string
}

// UpsertDocument inserts or replaces a document with its FTS entry,
// references and attachment rows in one transaction.
func (db *DB) UpsertDocument(d DocumentRow, body string, refs []string, attachments []AttachmentRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	_, err = tx.Exec(`
		INSERT INTO documents (path, title, snippet, tags, body, checksum, attachments, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title       = excluded.title,
			snippet     = excluded.snippet,
			tags        = excluded.tags,
			body        = excluded.body,
			checksum    = excluded.checksum,
			attachments = excluded.attachments,
			updated_at  = excluded.updated_at
	`, d.Path, d.Title, d.Snippet, string(tagsJSON), body, d.Checksum, d.Attachments, d.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	d.Tags = tags
	if err := ftsUpsert(tx, d, body, attachments); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM refs WHERE source = ?`, d.Path); err != nil {
		return fmt.Errorf("index: clear refs: %w", err)
	}
	if len(refs) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO refs (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range refs {
			if _, err := stmt.Exec(d.Path, target); err != nil {
				return fmt.Errorf("index: insert ref: %w", err)
			}
		}
	}

	if _, err := tx.Exec(`DELETE FROM attachments WHERE document = ?`, d.Path); err != nil {
		return fmt.Errorf("index: clear attachments: %w", err)
	}
	if len(attachments) > 0 {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO attachments (document, name, type, size, is_location) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare attachment insert: %w", err)
		}
		defer stmt.Close()
		for _, a := range attachments {
			if _, err := stmt.Exec(d.Path, a.Name, a.Type, a.Size, a.IsLocation); err != nil {
				return fmt.Errorf("index: insert attachment: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and everything hanging off it.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM refs WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM attachments WHERE document = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or "" if unknown.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums maps every indexed path to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

const documentColumns = `path, title, snippet, tags, checksum, attachments, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (DocumentRow, error) {
	var d DocumentRow
	var tags string
	if err := s.Scan(&d.Path, &d.Title, &d.Snippet, &tags, &d.Checksum, &d.Attachments, &d.UpdatedAt); err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(tags), &d.Tags); err != nil || d.Tags == nil {
		d.Tags = []string{}
	}
	return d, nil
}

// GetDocument returns one indexed document.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	d, err := scanDocument(db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return &d, nil
}

// ListDocuments returns a page of documents and the total count. tag
// filters on an exact tag; sort is "title" or "updated" (newest first, the
// default).
func (db *DB) ListDocuments(limit, offset int, tag, sort string) ([]DocumentRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	order := "updated_at DESC, path"
	if sort == "title" {
		order = "title COLLATE NOCASE, path"
	}

	where, args := "", []any{}
	if tag != "" {
		where = `WHERE EXISTS (SELECT 1 FROM json_each(documents.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count documents: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+documentColumns+` FROM documents `+where+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// Attachments lists the indexed attachments of a document by name.
func (db *DB) Attachments(path string) ([]AttachmentRow, error) {
	return db.queryAttachments(`WHERE document = ? ORDER BY name`, path)
}

// Locations lists every location attachment in the library.
func (db *DB) Locations() ([]AttachmentRow, error) {
	return db.queryAttachments(`WHERE is_location = 1 ORDER BY document, name`)
}

func (db *DB) queryAttachments(clause string, args ...any) ([]AttachmentRow, error) {
	rows, err := db.conn.Query(`SELECT document, name, type, size, is_location FROM attachments `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("index: attachments: %w", err)
	}
	defer rows.Close()
	var out []AttachmentRow
	for rows.Next() {
		var a AttachmentRow
		if err := rows.Scan(&a.Document, &a.Name, &a.Type, &a.Size, &a.IsLocation); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Backlinks returns the paths of documents that reference title with
// [[title]].
func (db *DB) Backlinks(title string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM refs WHERE target = ? ORDER BY source`, title)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func searchLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, fmt.Errorf("index: scan search result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			path UNINDEXED,
			title,
			body,
			tags,
			attachments,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, d DocumentRow, body string, attachments []AttachmentRow) error {
	ftsDelete(tx, d.Path)
	names := make([]string, len(attachments))
	for i, a := range attachments {
		names[i] = a.Name
	}
	_, err := tx.Exec(`INSERT INTO documents_fts (path, title, body, tags, attachments) VALUES (?, ?, ?, ?, ?)`,
		d.Path, d.Title, body, strings.Join(d.Tags, " "), strings.Join(names, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM documents_fts WHERE path = ?`, path)
}

// ftsQuery turns free text into an FTS5 expression that ANDs every term as a
// quoted string, so punctuation such as "map.loc" is never parsed as syntax.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

// Search ranks documents by FTS5 relevance over title, text, tags and
// attachment names. Snippets come from the note text.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	expr := ftsQuery(query)
	if expr == "" {
		return []SearchResult{}, nil
	}
	rows, err := db.conn.Query(`
		SELECT path,
		       title,
		       snippet(documents_fts, 2, '<b>', '</b>', '...', 32)
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, expr, searchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}

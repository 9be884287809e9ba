//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(*sql.DB) error { return nil }

func ftsUpsert(*sql.Tx, DocumentRow, string, []AttachmentRow) error { return nil }

func ftsDelete(*sql.Tx, string) {}

// Search matches the query as a substring of the title, text, tags or any
// attachment name, newest first.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT d.path, d.title, d.snippet
		FROM documents d
		WHERE d.title LIKE ?1 OR d.body LIKE ?1 OR d.tags LIKE ?1
		   OR EXISTS (SELECT 1 FROM attachments a WHERE a.document = d.path AND a.name LIKE ?1)
		ORDER BY d.updated_at DESC
		LIMIT ?2
	`, like, searchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}

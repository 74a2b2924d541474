package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const sqliteSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS tax_documents USING fts5(
	doc_id UNINDEXED,
	title,
	content,
	tokenize = 'unicode61'
);`

// SQLiteSearcher ranks documents with FTS5's bm25(). It backs the offline
// deployment where no Elasticsearch cluster is available.
type SQLiteSearcher struct {
	db *sql.DB
}

func NewSQLiteSearcher(ctx context.Context, db *sql.DB) (*SQLiteSearcher, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create fts table: %w", err)
	}
	return &SQLiteSearcher{db: db}, nil
}

// Import adds documents in one transaction, replacing any with the same ID.
func (s *SQLiteSearcher) Import(ctx context.Context, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, d := range docs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tax_documents WHERE doc_id = ?`, d.ID); err != nil {
			return fmt.Errorf("replace document %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tax_documents (doc_id, title, content) VALUES (?, ?, ?)`,
			d.ID, d.Title, d.Content,
		); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteSearcher) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, title, content, bm25(tax_documents) AS rank
		FROM tax_documents
		WHERE tax_documents MATCH ?
		ORDER BY rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var rank float64
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &rank); err != nil {
			return nil, err
		}
		// bm25() is negative, lower is better.
		d.Score = -rank
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ftsQuery ORs the quoted terms of q so user text never hits FTS5 syntax.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"kra-assist/internal/common/config"

	_ "modernc.org/sqlite"
)

// SQLiteClient holds the embedded knowledge-base file.
type SQLiteClient struct {
	DB *sql.DB
}

func NewSQLite(cfg config.SQLiteConfig) (*SQLiteClient, error) {
	path := cfg.Path
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer at a time; WAL lets readers proceed.
	db.SetMaxOpenConns(1)

	return &SQLiteClient{DB: db}, nil
}

func (c *SQLiteClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *SQLiteClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

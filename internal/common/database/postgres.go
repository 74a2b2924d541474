package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kra-assist/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient holds the connection pool for taxpayer records, M-Pesa
// transactions and the KRA submission audit log.
type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Migrate creates the tables the ingestion and audit paths write to.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS taxpayers (
		pin                 VARCHAR(11) PRIMARY KEY,
		name                TEXT NOT NULL,
		declared_income     NUMERIC(18,2) NOT NULL DEFAULT 0,
		sector              TEXT,
		last_filing         DATE,
		registration_status TEXT,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS mpesa_transactions (
		transaction_id TEXT PRIMARY KEY,
		amount         NUMERIC(18,2) NOT NULL,
		phone          TEXT NOT NULL,
		paybill        TEXT,
		occurred_at    TIMESTAMPTZ NOT NULL,
		ingested_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS kra_audit_log (
		id             BIGSERIAL PRIMARY KEY,
		occurred_at    TIMESTAMPTZ NOT NULL,
		operation      TEXT NOT NULL,
		status         TEXT NOT NULL,
		pin            VARCHAR(11),
		transaction_id TEXT,
		attempt        INT NOT NULL,
		error          TEXT
	)`,
}

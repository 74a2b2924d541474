package kra

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

const (
	OperationAssessmentSubmit = "assessment_submit"

	StatusSuccess = "success"
	StatusError   = "error"
)

// AuditEntry records one attempt against the KRA API.
type AuditEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Operation     string    `json:"operation"`
	Status        string    `json:"status"`
	PIN           string    `json:"pin,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Attempt       int       `json:"attempt"`
	Error         string    `json:"error,omitempty"`
}

type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// PostgresAuditLog appends to the kra_audit_log table.
type PostgresAuditLog struct {
	db *sql.DB
}

func NewPostgresAuditLog(db *sql.DB) *PostgresAuditLog {
	return &PostgresAuditLog{db: db}
}

const insertAuditSQL = `INSERT INTO kra_audit_log
	(occurred_at, operation, status, pin, transaction_id, attempt, error)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (l *PostgresAuditLog) Record(ctx context.Context, e AuditEntry) error {
	_, err := l.db.ExecContext(ctx, insertAuditSQL,
		e.Timestamp, e.Operation, e.Status,
		nullable(e.PIN), nullable(e.TransactionID), e.Attempt, nullable(e.Error),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

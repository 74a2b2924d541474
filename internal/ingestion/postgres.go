package ingestion

import (
	"context"
	"database/sql"
	"fmt"

	"kra-assist/internal/models"
)

const upsertTaxpayerSQL = `INSERT INTO taxpayers
	(pin, name, declared_income, sector, last_filing, registration_status, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW())
	ON CONFLICT (pin) DO UPDATE SET
		name = EXCLUDED.name,
		declared_income = EXCLUDED.declared_income,
		sector = EXCLUDED.sector,
		last_filing = EXCLUDED.last_filing,
		registration_status = EXCLUDED.registration_status,
		updated_at = NOW()`

const upsertTransactionSQL = `INSERT INTO mpesa_transactions
	(transaction_id, amount, phone, paybill, occurred_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (transaction_id) DO NOTHING`

// PostgresRepository writes each batch in one transaction.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) UpsertTaxpayers(ctx context.Context, records []models.Taxpayer) (int, error) {
	return r.inTx(ctx, upsertTaxpayerSQL, len(records), func(stmt *sql.Stmt, i int) (sql.Result, error) {
		tp := records[i]
		return stmt.ExecContext(ctx, tp.PIN, tp.Name, tp.DeclaredIncome, tp.Sector, tp.LastFiling, tp.RegistrationStatus)
	})
}

// UpsertTransactions skips transactions already stored; the count returned
// covers new rows only.
func (r *PostgresRepository) UpsertTransactions(ctx context.Context, records []models.MPesaTransaction) (int, error) {
	return r.inTx(ctx, upsertTransactionSQL, len(records), func(stmt *sql.Stmt, i int) (sql.Result, error) {
		tx := records[i]
		return stmt.ExecContext(ctx, tx.TransactionID, tx.Amount, tx.Phone, tx.Paybill, tx.Timestamp)
	})
}

func (r *PostgresRepository) inTx(ctx context.Context, query string, n int, exec func(*sql.Stmt, int) (sql.Result, error)) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	stored := 0
	for i := 0; i < n; i++ {
		res, err := exec(stmt, i)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			stored += int(affected)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

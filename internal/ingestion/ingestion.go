package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	apperrors "kra-assist/internal/common/errors"
	"kra-assist/internal/common/validation"
	"kra-assist/internal/models"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type TaxpayerSource interface {
	ListTaxpayers(ctx context.Context, start, end time.Time) ([]json.RawMessage, error)
}

type TransactionSource interface {
	ListTransactions(ctx context.Context, paybill string) ([]json.RawMessage, error)
}

type Repository interface {
	UpsertTaxpayers(ctx context.Context, records []models.Taxpayer) (int, error)
	UpsertTransactions(ctx context.Context, records []models.MPesaTransaction) (int, error)
}

// Report summarizes one batch. Rejected holds one error per dropped record.
type Report struct {
	Source   string `json:"source"`
	Fetched  int    `json:"fetched"`
	Valid    int    `json:"valid"`
	Stored   int    `json:"stored"`
	Rejected error  `json:"-"`
}

func (r *Report) Dropped() int {
	return r.Fetched - r.Valid
}

type Ingestor struct {
	taxpayers    TaxpayerSource
	transactions TransactionSource
	repo         Repository
	logger       Logger
}

func NewIngestor(taxpayers TaxpayerSource, transactions TransactionSource, repo Repository, log Logger) *Ingestor {
	return &Ingestor{
		taxpayers:    taxpayers,
		transactions: transactions,
		repo:         repo,
		logger:       log.With(map[string]interface{}{"component": "ingestion"}),
	}
}

// IngestTaxpayers fetches KRA records registered in [start, end], drops the
// ones failing validation and upserts the rest.
func (i *Ingestor) IngestTaxpayers(ctx context.Context, start, end time.Time) (*Report, error) {
	if end.Before(start) {
		return nil, apperrors.NewValidationError("end date is before start date")
	}
	raw, err := i.taxpayers.ListTaxpayers(ctx, start, end)
	if err != nil {
		return nil, err
	}

	valid, rejected := validateAll(raw, validation.TaxpayerRecord, func(b []byte) (models.Taxpayer, error) {
		var tp models.Taxpayer
		err := json.Unmarshal(b, &tp)
		return tp, err
	})
	report := &Report{Source: "kra", Fetched: len(raw), Valid: len(valid), Rejected: rejected}
	i.logRejected(report)

	if len(valid) > 0 {
		if report.Stored, err = i.repo.UpsertTaxpayers(ctx, valid); err != nil {
			return report, apperrors.NewDatabaseError("upsert_taxpayers", err)
		}
	}
	i.logger.Info("taxpayer ingestion complete", reportFields(report))
	return report, nil
}

func (i *Ingestor) IngestMPesa(ctx context.Context, paybill string) (*Report, error) {
	if paybill == "" {
		return nil, apperrors.NewValidationError("paybill is required")
	}
	raw, err := i.transactions.ListTransactions(ctx, paybill)
	if err != nil {
		return nil, err
	}

	valid, rejected := validateAll(raw, validation.MPesaTransaction, func(b []byte) (models.MPesaTransaction, error) {
		var tx models.MPesaTransaction
		err := json.Unmarshal(b, &tx)
		return tx, err
	})
	report := &Report{Source: "mpesa", Fetched: len(raw), Valid: len(valid), Rejected: rejected}
	i.logRejected(report)

	if len(valid) > 0 {
		if report.Stored, err = i.repo.UpsertTransactions(ctx, valid); err != nil {
			return report, apperrors.NewDatabaseError("upsert_mpesa_transactions", err)
		}
	}
	i.logger.Info("mpesa ingestion complete", reportFields(report))
	return report, nil
}

// validateAll keeps the records passing schema and decode. Each rejected
// record adds one error naming its index.
func validateAll[T any](raw []json.RawMessage, schema *validation.Schema, decode func([]byte) (T, error)) ([]T, error) {
	var rejected *multierror.Error
	valid := make([]T, 0, len(raw))

	for idx, rec := range raw {
		if res := schema.Validate(rec); !res.Valid {
			rejected = multierror.Append(rejected, fmt.Errorf("record %d: %w", idx, res.Err()))
			continue
		}
		v, err := decode(rec)
		if err != nil {
			rejected = multierror.Append(rejected, fmt.Errorf("record %d: %w", idx, apperrors.NewValidationError(err.Error())))
			continue
		}
		valid = append(valid, v)
	}
	return valid, rejected.ErrorOrNil()
}

func (i *Ingestor) logRejected(r *Report) {
	if r.Rejected == nil {
		return
	}
	i.logger.Warn("dropped invalid records", map[string]interface{}{
		"source":  r.Source,
		"dropped": r.Dropped(),
		"errors":  r.Rejected.Error(),
	})
}

func reportFields(r *Report) map[string]interface{} {
	return map[string]interface{}{
		"source":  r.Source,
		"fetched": r.Fetched,
		"valid":   r.Valid,
		"stored":  r.Stored,
		"dropped": r.Dropped(),
	}
}

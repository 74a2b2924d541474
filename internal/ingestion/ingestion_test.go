package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "kra-assist/internal/common/errors"
	"kra-assist/internal/models"
)

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{t: l.t, fields: merged}
}

type stubTaxpayers struct {
	records    []string
	err        error
	start, end time.Time
}

func (s *stubTaxpayers) ListTaxpayers(_ context.Context, start, end time.Time) ([]json.RawMessage, error) {
	s.start, s.end = start, end
	return raws(s.records), s.err
}

type stubTransactions struct {
	records []string
	err     error
	paybill string
}

func (s *stubTransactions) ListTransactions(_ context.Context, paybill string) ([]json.RawMessage, error) {
	s.paybill = paybill
	return raws(s.records), s.err
}

type memoryRepo struct {
	taxpayers    []models.Taxpayer
	transactions []models.MPesaTransaction
	err          error
}

func (r *memoryRepo) UpsertTaxpayers(_ context.Context, records []models.Taxpayer) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.taxpayers = append(r.taxpayers, records...)
	return len(records), nil
}

func (r *memoryRepo) UpsertTransactions(_ context.Context, records []models.MPesaTransaction) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.transactions = append(r.transactions, records...)
	return len(records), nil
}

func raws(records []string) []json.RawMessage {
	if records == nil {
		return nil
	}
	out := make([]json.RawMessage, len(records))
	for i, r := range records {
		out[i] = json.RawMessage(r)
	}
	return out
}

const (
	validTaxpayer  = `{"pin":"A123456789B","name":"Wanjiku Traders","declared_income":1200000,"sector":"4711","last_filing":"2024-06-30T00:00:00Z"}`
	badPINTaxpayer = `{"pin":"123","declared_income":5000,"sector":"4711","last_filing":"2024-06-30T00:00:00Z"}`
	zeroIncome     = `{"pin":"P051234567Z","declared_income":0,"sector":"01","last_filing":"2024-06-30T00:00:00Z"}`
	validMPesa     = `{"transaction_id":"QK12ABC","amount":2500,"phone":"254712345678","paybill":"572572","timestamp":"2024-07-01T10:00:00Z"}`
	negativeAmount = `{"transaction_id":"QK12ABD","amount":-5,"phone":"0712345678","paybill":"572572","timestamp":"2024-07-01T10:00:00Z"}`
	missingPaybill = `{"transaction_id":"QK12ABE","amount":100,"phone":"0712345678","timestamp":"2024-07-01T10:00:00Z"}`
)

func TestIngestTaxpayers_DropsInvalidRecords(t *testing.T) {
	src := &stubTaxpayers{records: []string{validTaxpayer, badPINTaxpayer, zeroIncome, `not json`}}
	repo := &memoryRepo{}
	ing := NewIngestor(src, &stubTransactions{}, repo, NewTestLogger(t))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	report, err := ing.IngestTaxpayers(context.Background(), start, end)
	require.NoError(t, err)

	assert.Equal(t, start, src.start)
	assert.Equal(t, end, src.end)
	assert.Equal(t, 4, report.Fetched)
	assert.Equal(t, 1, report.Valid)
	assert.Equal(t, 1, report.Stored)
	assert.Equal(t, 3, report.Dropped())

	var merr *multierror.Error
	require.True(t, errors.As(report.Rejected, &merr))
	assert.Len(t, merr.Errors, 3)
	assert.Contains(t, merr.Errors[0].Error(), "record 1")

	require.Len(t, repo.taxpayers, 1)
	assert.Equal(t, "A123456789B", repo.taxpayers[0].PIN)
	assert.Equal(t, 1200000.0, repo.taxpayers[0].DeclaredIncome)
}

func TestIngestTaxpayers_AllValidHasNoRejections(t *testing.T) {
	ing := NewIngestor(&stubTaxpayers{records: []string{validTaxpayer}}, &stubTransactions{}, &memoryRepo{}, NewTestLogger(t))
	report, err := ing.IngestTaxpayers(context.Background(), time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)
	assert.NoError(t, report.Rejected)
}

func TestIngestTaxpayers_Errors(t *testing.T) {
	now := time.Now()

	t.Run("end before start", func(t *testing.T) {
		ing := NewIngestor(&stubTaxpayers{}, &stubTransactions{}, &memoryRepo{}, NewTestLogger(t))
		_, err := ing.IngestTaxpayers(context.Background(), now, now.Add(-time.Hour))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})

	t.Run("source fails", func(t *testing.T) {
		boom := apperrors.NewUpstreamError("kra", errors.New("502"))
		ing := NewIngestor(&stubTaxpayers{err: boom}, &stubTransactions{}, &memoryRepo{}, NewTestLogger(t))
		_, err := ing.IngestTaxpayers(context.Background(), now.Add(-time.Hour), now)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUpstream))
	})

	t.Run("repository fails", func(t *testing.T) {
		ing := NewIngestor(&stubTaxpayers{records: []string{validTaxpayer}}, &stubTransactions{},
			&memoryRepo{err: errors.New("connection reset")}, NewTestLogger(t))
		report, err := ing.IngestTaxpayers(context.Background(), now.Add(-time.Hour), now)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
		require.NotNil(t, report)
		assert.Equal(t, 0, report.Stored)
	})

	t.Run("nothing valid skips repository", func(t *testing.T) {
		repo := &memoryRepo{err: errors.New("must not be called")}
		ing := NewIngestor(&stubTaxpayers{records: []string{badPINTaxpayer}}, &stubTransactions{}, repo, NewTestLogger(t))
		report, err := ing.IngestTaxpayers(context.Background(), now.Add(-time.Hour), now)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Stored)
	})
}

func TestIngestMPesa(t *testing.T) {
	src := &stubTransactions{records: []string{validMPesa, negativeAmount, missingPaybill}}
	repo := &memoryRepo{}
	ing := NewIngestor(&stubTaxpayers{}, src, repo, NewTestLogger(t))

	report, err := ing.IngestMPesa(context.Background(), "572572")
	require.NoError(t, err)
	assert.Equal(t, "572572", src.paybill)
	assert.Equal(t, "mpesa", report.Source)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 1, report.Stored)
	assert.Equal(t, 2, report.Dropped())
	require.Len(t, repo.transactions, 1)
	assert.Equal(t, "QK12ABC", repo.transactions[0].TransactionID)

	_, err = ing.IngestMPesa(context.Background(), "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestMPesaClient_ListTransactions(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    int
		wantErr bool
	}{
		{name: "bare array", status: http.StatusOK, body: `[` + validMPesa + `,` + validMPesa + `]`, want: 2},
		{name: "wrapped", status: http.StatusOK, body: `{"transactions":[` + validMPesa + `]}`, want: 1},
		{name: "unexpected shape", status: http.StatusOK, body: `{"data":1}`, wantErr: true},
		{name: "server error", status: http.StatusBadGateway, body: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transactions", r.URL.Path)
				assert.Equal(t, "572572", r.URL.Query().Get("paybill"))
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewMPesaClient(srv.URL+"/", "secret", time.Second)
			got, err := client.ListTransactions(context.Background(), "572572")
			if tt.wantErr {
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUpstream))
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestPostgresRepository_UpsertTaxpayers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	filed := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	records := []models.Taxpayer{
		{PIN: "A123456789B", Name: "Wanjiku Traders", DeclaredIncome: 1200000, Sector: "4711", LastFiling: filed},
		{PIN: "P051234567Z", DeclaredIncome: 50000, Sector: "01", LastFiling: filed},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO taxpayers")
	prep.ExpectExec().WithArgs("A123456789B", "Wanjiku Traders", 1200000.0, "4711", filed, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("P051234567Z", "", 50000.0, "01", filed, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	stored, err := NewPostgresRepository(db).UpsertTaxpayers(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpsertTransactionsRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	records := []models.MPesaTransaction{
		{TransactionID: "QK1", Amount: 10, Phone: "254712345678", Paybill: "572572", Timestamp: at},
		{TransactionID: "QK2", Amount: 20, Phone: "254712345678", Paybill: "572572", Timestamp: at},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO mpesa_transactions")
	prep.ExpectExec().WithArgs("QK1", 10.0, "254712345678", "572572", at).WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WithArgs("QK2", 20.0, "254712345678", "572572", at).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = NewPostgresRepository(db).UpsertTransactions(context.Background(), records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_DuplicatesNotCounted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("ON CONFLICT \\(transaction_id\\) DO NOTHING")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	stored, err := NewPostgresRepository(db).UpsertTransactions(context.Background(),
		[]models.MPesaTransaction{{TransactionID: "QK1", Amount: 1}})
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
}

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
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

type stubSearcher struct {
	docs []Document
	err  error
}

func (s stubSearcher) Search(context.Context, string, int) ([]Document, error) {
	return s.docs, s.err
}

func TestAnswer(t *testing.T) {
	long := strings.Repeat("ü", 600)

	tests := []struct {
		name     string
		searcher Searcher
		query    string
		want     string
	}{
		{"best match", stubSearcher{docs: []Document{{Content: "VAT hulipwa tarehe 20."}, {Content: "other"}}}, "vat", "VAT hulipwa tarehe 20."},
		{"no match", stubSearcher{}, "vat", DefaultAnswer},
		{"search error", stubSearcher{err: errors.New("index missing")}, "vat", DefaultAnswer},
		{"empty query", stubSearcher{docs: []Document{{Content: "x"}}}, "  ", DefaultAnswer},
		{"truncated", stubSearcher{docs: []Document{{Content: long}}}, "vat", strings.Repeat("ü", MaxAnswerRunes) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.searcher, NewTestLogger(t))
			assert.Equal(t, tt.want, svc.Answer(context.Background(), tt.query))
		})
	}
}

func TestExcerpt_ExactLimitUntouched(t *testing.T) {
	s := strings.Repeat("a", MaxAnswerRunes)
	assert.Equal(t, s, Excerpt(s))
}

func TestElasticsearchSearcher(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"p9a-1","_score":3.2,"_source":{"title":"P9A","content":"Fomu ya P9A hutolewa na mwajiri."}},
			{"_id":"vat-1","_score":1.1,"_source":{"title":"VAT","content":"VAT ni asilimia 16."}}
		]}}`))
	}))
	defer server.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)

	docs, err := NewElasticsearchSearcher(client, "tax_documents").Search(context.Background(), "fomu p9a", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "/tax_documents/_search", gotPath)
	assert.Equal(t, float64(2), gotBody["size"])
	assert.Equal(t, "p9a-1", docs[0].ID)
	assert.Equal(t, "Fomu ya P9A hutolewa na mwajiri.", docs[0].Content)
	assert.InDelta(t, 3.2, docs[0].Score, 1e-9)
}

func TestElasticsearchSearcher_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"reason":"no such index [tax_documents]"}}`))
	}))
	defer server.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)

	_, err = NewElasticsearchSearcher(client, "tax_documents").Search(context.Background(), "vat", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such index")
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteSearcher_RanksBestMatchFirst(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteSearcher(ctx, openSQLite(t))
	require.NoError(t, err)

	require.NoError(t, s.Import(ctx, []Document{
		{ID: "vat", Title: "VAT", Content: "VAT returns are due on the 20th of every month."},
		{ID: "p9a", Title: "P9A", Content: "The P9A form deadline is 30 June. Employers issue the P9A form."},
		{ID: "paye", Title: "PAYE", Content: "PAYE is deducted by the employer."},
	}))

	docs, err := s.Search(ctx, "p9a deadline", 2)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "p9a", docs[0].ID)
	assert.Greater(t, docs[0].Score, 0.0)
}

func TestSQLiteSearcher_ImportReplacesByID(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteSearcher(ctx, openSQLite(t))
	require.NoError(t, err)

	require.NoError(t, s.Import(ctx, []Document{{ID: "vat", Title: "VAT", Content: "old rate"}}))
	require.NoError(t, s.Import(ctx, []Document{{ID: "vat", Title: "VAT", Content: "new rate sixteen"}}))

	docs, err := s.Search(ctx, "rate", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "new rate sixteen", docs[0].Content)
}

func TestSQLiteSearcher_QuotesUserInput(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteSearcher(ctx, openSQLite(t))
	require.NoError(t, err)

	docs, err := s.Search(ctx, `vat" OR NEAR(`, 1)
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = s.Search(ctx, "   ", 1)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

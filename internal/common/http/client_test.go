package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"text":"vat"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := NewClient(2*time.Second).WithHeader("X-API-KEY", "secret")
	data, status, err := c.PostJSON(context.Background(), server.URL, map[string]string{"text": "vat"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestClient_StatusError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		temporary bool
	}{
		{"server error", http.StatusServiceUnavailable, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"not found", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
			}))
			defer server.Close()

			_, status, err := NewClient(time.Second).GetJSON(context.Background(), server.URL)
			require.Error(t, err)
			assert.Equal(t, tt.status, status)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.temporary, se.Temporary())
			assert.Len(t, se.Body, 256)
		})
	}
}

func TestClient_AcceptStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, _, err := NewClient(time.Second).PostJSON(context.Background(), server.URL, struct{}{}, http.StatusCreated)
	assert.Error(t, err)
}

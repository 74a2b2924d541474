package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
)

const DefaultAPIKeyHeader = "X-API-KEY"

var (
	ErrMissingAPIKey = errors.New("MISSING_API_KEY")
	ErrInvalidAPIKey = errors.New("INVALID_API_KEY")
)

type contextKey struct{}

// KeyFromContext returns the API key accepted for this request.
func KeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(contextKey{}).(string)
	return key, ok
}

// ErrorWriter renders an authentication or rate-limit failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// APIKeyAuthenticator compares a request header with one shared secret.
type APIKeyAuthenticator struct {
	header string
	key    []byte
}

func NewAPIKeyAuthenticator(header, key string) *APIKeyAuthenticator {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKeyAuthenticator{header: header, key: []byte(key)}
}

// Authenticate returns the presented key when it matches in constant time.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (string, error) {
	presented := r.Header.Get(a.header)
	if presented == "" {
		return "", ErrMissingAPIKey
	}
	if len(a.key) == 0 || subtle.ConstantTimeCompare([]byte(presented), a.key) != 1 {
		return "", ErrInvalidAPIKey
	}
	return presented, nil
}

// Middleware rejects unauthenticated requests before next runs.
func (a *APIKeyAuthenticator) Middleware(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := a.Authenticate(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, key)))
		})
	}
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kra-assist/internal/common/auth"
	"kra-assist/internal/handler/assist"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Checker is a dependency probed by /ready.
type Checker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	ServiceName    string
	APIKeyHeader   string
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	ReadyTimeout   time.Duration
	// Limiter is built from RateLimitRPS and RateLimitBurst when nil.
	Limiter *auth.KeyedLimiter
}

// NewRouter mounts the public API. Only /assist requires an API key.
func NewRouter(cfg RouterConfig, assistHandler *assist.Handler, checks map[string]Checker, metrics http.Handler, log Logger) http.Handler {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}
	log = log.With(map[string]interface{}{"component": "http"})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		assist.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"service":   cfg.ServiceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.Get("/ready", readyHandler(checks, cfg.ReadyTimeout))
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	authenticator := auth.NewAPIKeyAuthenticator(cfg.APIKeyHeader, cfg.APIKey)
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = auth.NewKeyedLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	r.Group(func(api chi.Router) {
		api.Use(authenticator.Middleware(assist.WriteAuthError))
		api.Use(limiter.Middleware(assist.WriteAuthError))
		assistHandler.RegisterRoutes(api)
	})

	return r
}

func readyHandler(checks map[string]Checker, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, c := range checks {
			if err := c.Ping(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		assist.RespondJSON(w, status, map[string]interface{}{
			"status": state,
			"checks": results,
		})
	}
}

func requestLogger(log Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.Info("http request", map[string]interface{}{
				"requestId":  middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"durationMs": time.Since(start).Milliseconds(),
			})
		})
	}
}

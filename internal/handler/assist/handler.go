package assist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apperrors "kra-assist/internal/common/errors"
	"kra-assist/internal/common/validation"
	"kra-assist/internal/models"
	"kra-assist/internal/pipeline"
)

const maxRequestBytes = 64 << 10

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Responder answers one query, usually the dialogue manager.
type Responder interface {
	Respond(ctx context.Context, query models.Query) (*models.Response, error)
}

// Recorder receives per-request outcomes. Optional.
type Recorder interface {
	RecordQuery(language models.Language, action string, duration time.Duration)
	RecordFallback(kind string)
}

type Request struct {
	Query    string `json:"query"`
	Language string `json:"language,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

type Response struct {
	Response       string               `json:"response"`
	Suggestions    []string             `json:"suggestions"`
	ActionRequired models.Action        `json:"action_required"`
	PendingAction  models.PendingAction `json:"pending_action,omitempty"`
}

type Handler struct {
	responder Responder
	recorder  Recorder
	logger    Logger
}

func New(responder Responder, recorder Recorder, log Logger) *Handler {
	return &Handler{
		responder: responder,
		recorder:  recorder,
		logger:    log.With(map[string]interface{}{"component": "assist_handler"}),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/assist", h.handleAssist)
}

func (h *Handler) handleAssist(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.GetReqID(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		RespondError(w, r, apperrors.NewValidationError("request body too large or unreadable"), "")
		return
	}
	if result := validation.AssistRequest.Validate(body); !result.Valid {
		RespondError(w, r, result.Err(), "")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		RespondError(w, r, apperrors.NewValidationError(err.Error()), "")
		return
	}
	query, err := models.NewQuery(req.Query, req.Language, req.UserID)
	if err != nil {
		RespondError(w, r, err, "")
		return
	}

	resp, err := h.responder.Respond(r.Context(), query)
	if err != nil {
		h.respondFailure(w, r, query, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordQuery(query.Language, string(resp.Action), time.Since(start))
	}
	h.logger.Info("assist interaction", map[string]interface{}{
		"requestId":     requestID,
		"anonymous":     query.Anonymous(),
		"language":      string(query.Language),
		"action":        string(resp.Action),
		"pendingAction": string(resp.PendingAction),
		"queryLength":   len(query.Text),
		"durationMs":    time.Since(start).Milliseconds(),
	})

	suggestions := resp.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	RespondJSON(w, http.StatusOK, Response{
		Response:       resp.Message,
		Suggestions:    suggestions,
		ActionRequired: resp.Action,
		PendingAction:  resp.PendingAction,
	})
}

// respondFailure renders a pipeline failure with its localized fallback.
// Unsupported languages are the caller's fault and get 400.
func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, query models.Query, err error) {
	var perr *pipeline.ProcessingError
	if !errors.As(err, &perr) {
		h.logger.Error("assist request failed", map[string]interface{}{
			"requestId": middleware.GetReqID(r.Context()),
			"error":     err.Error(),
		})
		RespondError(w, r, err, "")
		return
	}

	if h.recorder != nil {
		h.recorder.RecordFallback(string(perr.Kind))
	}
	h.logger.Warn("assist request fell back", map[string]interface{}{
		"requestId": middleware.GetReqID(r.Context()),
		"stage":     perr.Stage,
		"kind":      string(perr.Kind),
		"language":  string(query.Language),
		"error":     perr.Cause.Error(),
	})

	if perr.Kind == pipeline.KindUnsupportedLanguage {
		RespondErrorStatus(w, r, http.StatusBadRequest, apperrors.NewUnsupportedLanguageError(string(perr.Language)), perr.FallbackMessage())
		return
	}
	RespondErrorStatus(w, r, http.StatusServiceUnavailable, apperrors.NewProcessingError(perr.Stage, perr.Cause), perr.FallbackMessage())
}

package assist

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"kra-assist/internal/common/auth"
	apperrors "kra-assist/internal/common/errors"
)

type ErrorDetail struct {
	Code      string `json:"code"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorBody is the only error shape the API writes.
type ErrorBody struct {
	Error      ErrorDetail `json:"error"`
	StatusCode int         `json:"status_code"`
	// Response carries the localized fallback when processing failed.
	Response string `json:"response,omitempty"`
}

func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// RespondError writes err using the status of its error code.
func RespondError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	stdErr := apperrors.From(err)
	RespondErrorStatus(w, r, apperrors.HTTPStatus(stdErr.Code), stdErr, fallback)
}

func RespondErrorStatus(w http.ResponseWriter, r *http.Request, status int, stdErr *apperrors.StandardError, fallback string) {
	details := stdErr.Details
	if stdErr.Code == apperrors.ErrCodeInternal {
		details = ""
	}
	RespondJSON(w, status, ErrorBody{
		Error: ErrorDetail{
			Code:      string(stdErr.Code),
			Type:      apperrors.TypeName(stdErr.Code),
			Message:   stdErr.Message,
			Details:   details,
			RequestID: middleware.GetReqID(r.Context()),
		},
		StatusCode: status,
		Response:   fallback,
	})
}

// WriteAuthError renders failures from the auth middleware.
func WriteAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		RespondError(w, r, apperrors.NewRateLimitedError("per-key request rate exceeded"), "")
	case errors.Is(err, auth.ErrMissingAPIKey):
		RespondError(w, r, apperrors.NewAuthenticationError("missing API key header"), "")
	default:
		RespondError(w, r, apperrors.NewAuthenticationError("API key mismatch"), "")
	}
}

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeAuthentication      ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeRateLimited         ErrorCode = "RATE_LIMITED"
	ErrCodeUpstream            ErrorCode = "UPSTREAM_ERROR"
	ErrCodeAssessmentSubmit    ErrorCode = "ASSESSMENT_SUBMIT_FAILED"
	ErrCodeProcessing          ErrorCode = "PROCESSING_ERROR"
	ErrCodeUnsupportedLanguage ErrorCode = "UNSUPPORTED_LANGUAGE"
	ErrCodeModelNotTrained     ErrorCode = "MODEL_NOT_TRAINED"
	ErrCodeFraudSuspected      ErrorCode = "FRAUD_SUSPECTED"
	ErrCodeDatabase            ErrorCode = "DATABASE_ERROR"
	ErrCodeNotificationSend    ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e after merging kv into its metadata.
func (e *StandardError) WithMetadata(kv map[string]interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{}, len(kv))
	}
	for k, v := range kv {
		e.Metadata[k] = v
	}
	return e
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidation, "Invalid input", details, false, nil)
}

// WrapValidationError is NewValidationError for a sentinel that callers
// still match with errors.Is.
func WrapValidationError(err error) *StandardError {
	return newError(ErrCodeValidation, "Invalid input", err.Error(), false, err)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthentication, "Invalid or missing API key", details, false, nil)
}

func NewRateLimitedError(details string) *StandardError {
	return newError(ErrCodeRateLimited, "Too many requests", details, true, nil)
}

func NewUpstreamError(service string, err error) *StandardError {
	return newError(ErrCodeUpstream, fmt.Sprintf("External service '%s' error", service), err.Error(), false, err)
}

func NewAssessmentSubmitError(err error) *StandardError {
	return newError(ErrCodeAssessmentSubmit, "Tax assessment submission failed", err.Error(), true, err)
}

func NewProcessingError(stage string, err error) *StandardError {
	return newError(ErrCodeProcessing, "Query processing failed", fmt.Sprintf("stage: %s, error: %s", stage, err.Error()), false, err)
}

func NewUnsupportedLanguageError(language string) *StandardError {
	return newError(ErrCodeUnsupportedLanguage, "Unsupported language", fmt.Sprintf("language: %s", language), false, nil)
}

func NewModelNotTrainedError() *StandardError {
	return newError(ErrCodeModelNotTrained, "Model not trained", "inference attempted before training", false, nil)
}

func NewFraudSuspectedError(pin string, score float64) *StandardError {
	return newError(ErrCodeFraudSuspected, "Assessment flagged for fraud review", fmt.Sprintf("pin: %s, score: %.3f", pin, score), false, nil)
}

func NewDatabaseError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabase, "Database operation failed", fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true, err)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSend, "Notification delivery failed", fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// From returns the StandardError in err's chain, or wraps err as an internal error.
func From(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// HasCode reports whether err's chain carries a StandardError with code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// GetRetryCount returns the job retries for code. Only assessment submission
// and infrastructure failures are retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeAssessmentSubmit:
		return 3
	case ErrCodeDatabase, ErrCodeNotificationSend:
		return 2
	case ErrCodeRateLimited:
		return 1
	default:
		return 0
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "AUTHENTICATION") || strings.Contains(codeStr, "RATE"):
		return "AUTH"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "LANGUAGE"):
		return "VALIDATION"
	case strings.Contains(codeStr, "UPSTREAM") || strings.Contains(codeStr, "ASSESSMENT"):
		return "UPSTREAM"
	case strings.Contains(codeStr, "PROCESSING") || strings.Contains(codeStr, "MODEL") || strings.Contains(codeStr, "FRAUD"):
		return "AI"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}

// HTTPStatus maps a code to the status written at the HTTP edge.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation, ErrCodeUnsupportedLanguage:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeProcessing, ErrCodeModelNotTrained:
		return http.StatusServiceUnavailable
	case ErrCodeUpstream, ErrCodeAssessmentSubmit:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// TypeName is the "type" field of the HTTP error body.
func TypeName(code ErrorCode) string {
	switch code {
	case ErrCodeValidation, ErrCodeUnsupportedLanguage:
		return "ValidationError"
	case ErrCodeAuthentication:
		return "AuthenticationError"
	case ErrCodeRateLimited:
		return "RateLimitError"
	case ErrCodeUpstream, ErrCodeAssessmentSubmit:
		return "UpstreamError"
	case ErrCodeProcessing:
		return "ProcessingError"
	case ErrCodeModelNotTrained:
		return "ModelNotTrainedError"
	default:
		return "UnexpectedError"
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

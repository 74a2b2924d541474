package processquery

import "kra-assist/internal/models"

type Input struct {
	Query    string `json:"query"`
	Language string `json:"language"`
	UserID   string `json:"userId"`
}

type Output struct {
	Response       string               `json:"response"`
	Suggestions    []string             `json:"suggestions"`
	ActionRequired models.Action        `json:"actionRequired"`
	PendingAction  models.PendingAction `json:"pendingAction,omitempty"`
	// Fallback is set when the pipeline failed and Response is the
	// localized fallback text.
	Fallback bool `json:"fallback"`
}

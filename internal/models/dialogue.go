package models

import "time"

type Action string

const (
	ActionRespond  Action = "respond"
	ActionEscalate Action = "escalate"
)

// PendingAction marks a Response whose next user message answers a question
// the assistant asked.
type PendingAction string

const (
	PendingNone       PendingAction = ""
	PendingProvidePIN PendingAction = "provide_kra_pin"
)

const (
	IntentPaymentIssue        = "payment_issue"
	IntentDeadlineQuery       = "deadline_query"
	IntentFormHelp            = "form_help"
	IntentComplaint           = "complaint"
	IntentPolicyClarification = "policy_clarification"
	IntentFollowUp            = "follow_up"
)

type Response struct {
	Action        Action        `json:"action"`
	Message       string        `json:"message"`
	Suggestions   []string      `json:"suggestions"`
	PendingAction PendingAction `json:"pending_action,omitempty"`
}

func NewResponse(action Action, message string, suggestions []string, pending PendingAction) Response {
	s := make([]string, len(suggestions))
	copy(s, suggestions)
	return Response{
		Action:        action,
		Message:       message,
		Suggestions:   s,
		PendingAction: pending,
	}
}

// Analysis is the orchestrator's standard-path result.
type Analysis struct {
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Entities   EntityBag `json:"entities"`
	Sentiment  string    `json:"sentiment"`
	Language   Language  `json:"language"`
}

type Turn struct {
	ID         string    `json:"id"`
	Query      Query     `json:"query"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Entities   EntityBag `json:"entities"`
	Response   Response  `json:"response"`
	CreatedAt  time.Time `json:"created_at"`
}

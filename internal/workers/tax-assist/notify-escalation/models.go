package notifyescalation

type Input struct {
	UserID   string `json:"userId"`
	Query    string `json:"query"`
	Language string `json:"language,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// Email overrides the configured support desk address.
	Email string `json:"email,omitempty"`
}

type Output struct {
	MessageID string `json:"messageId"`
	Notified  bool   `json:"notified"`
}

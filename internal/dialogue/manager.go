package dialogue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kra-assist/internal/models"
	"kra-assist/internal/nlp"
	"kra-assist/internal/pipeline"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Processor runs the NLP pipeline for one query.
type Processor interface {
	Process(ctx context.Context, query models.Query) (*pipeline.Outcome, error)
}

// Answerer returns knowledge-base text for a question.
type Answerer interface {
	Answer(ctx context.Context, query string) string
}

// TaxpayerLookup resolves a KRA PIN to its registration record.
type TaxpayerLookup interface {
	GetTaxpayer(ctx context.Context, pin string) (*models.Taxpayer, error)
}

// Escalation describes a conversation handed to a human agent.
type Escalation struct {
	UserID     string          `json:"user_id,omitempty"`
	Query      string          `json:"query"`
	Language   models.Language `json:"language"`
	Intent     string          `json:"intent"`
	Confidence float64         `json:"confidence"`
	Reason     string          `json:"reason"`
}

type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, esc Escalation) error
}

const (
	ReasonLowConfidence = "low_confidence"
	ReasonComplaint     = "complaint"

	defaultNotifyTimeout = 3 * time.Second
)

type Option func(*Manager)

func WithNotifier(n EscalationNotifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithTaxpayerLookup(t TaxpayerLookup) Option {
	return func(m *Manager) { m.taxpayers = t }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager answers queries with per-user history. Calls for the same user are
// serialized; different users never wait on each other.
type Manager struct {
	store     Store
	processor Processor
	answers   Answerer
	taxpayers TaxpayerLookup
	notifier  EscalationNotifier
	locks     *keyedMutex
	logger    Logger
	now       func() time.Time
}

func NewManager(store Store, processor Processor, answers Answerer, log Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		processor: processor,
		answers:   answers,
		locks:     newKeyedMutex(),
		logger:    log.With(map[string]interface{}{"component": "dialogue"}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Respond produces the reply for query. A *pipeline.ProcessingError is
// returned unchanged so callers can render its fallback message.
func (m *Manager) Respond(ctx context.Context, query models.Query) (*models.Response, error) {
	if query.Anonymous() {
		resp, _, err := m.answer(ctx, query)
		return resp, err
	}

	unlock := m.locks.Lock(query.UserID)
	defer unlock()

	history, err := m.store.GetHistory(ctx, query.UserID)
	if err != nil {
		m.logger.Warn("failed to load dialogue history", map[string]interface{}{
			"userId": query.UserID,
			"error":  err.Error(),
		})
		history = nil
	}

	var resp *models.Response
	var turn models.Turn
	handled := false
	// An unsupported language always takes the pipeline so it is rejected the
	// same way with or without a pending question.
	if n := len(history); n > 0 && history[n-1].Response.PendingAction != models.PendingNone && nlp.IsSupported(query.Language) {
		resp, turn, handled = m.followUp(ctx, query, history[n-1])
	}
	if !handled {
		resp, turn, err = m.answer(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	if err := m.store.AppendTurn(ctx, query.UserID, turn); err != nil {
		m.logger.Warn("failed to record dialogue turn", map[string]interface{}{
			"userId": query.UserID,
			"error":  err.Error(),
		})
	}
	return resp, nil
}

func (m *Manager) answer(ctx context.Context, query models.Query) (*models.Response, models.Turn, error) {
	outcome, err := m.processor.Process(ctx, query)
	if err != nil {
		return nil, models.Turn{}, err
	}

	if outcome.Escalated() {
		resp := *outcome.Escalation
		m.notify(ctx, query, outcome.Intent, outcome.Confidence, ReasonLowConfidence)
		return &resp, m.newTurn(query, outcome.Intent, outcome.Confidence, models.NewEntityBag(nil), resp), nil
	}

	a := outcome.Analysis
	resp := m.selectResponse(ctx, query, a)
	if a.Intent == models.IntentComplaint {
		m.notify(ctx, query, a.Intent, a.Confidence, ReasonComplaint)
	}
	return &resp, m.newTurn(query, a.Intent, a.Confidence, a.Entities, resp), nil
}

func (m *Manager) selectResponse(ctx context.Context, query models.Query, a *models.Analysis) models.Response {
	suggestions := QuickReplies(a.Intent)

	switch a.Intent {
	case models.IntentPaymentIssue:
		if !a.Entities.Has(models.EntityKRAPin) {
			return models.NewResponse(models.ActionRespond, localized(askPIN, a.Language), suggestions, models.PendingProvidePIN)
		}
		return models.NewResponse(models.ActionRespond, m.answers.Answer(ctx, query.Text), suggestions, models.PendingNone)
	case models.IntentComplaint:
		return pipeline.EscalationResponse(a.Language)
	default:
		return models.NewResponse(models.ActionRespond, m.answers.Answer(ctx, query.Text), suggestions, models.PendingNone)
	}
}

func (m *Manager) notify(ctx context.Context, query models.Query, intent string, confidence float64, reason string) {
	if m.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultNotifyTimeout)
	defer cancel()

	err := m.notifier.NotifyEscalation(nctx, Escalation{
		UserID:     query.UserID,
		Query:      query.Text,
		Language:   query.Language,
		Intent:     intent,
		Confidence: confidence,
		Reason:     reason,
	})
	if err != nil {
		m.logger.Warn("escalation notification failed", map[string]interface{}{
			"userId": query.UserID,
			"reason": reason,
			"error":  err.Error(),
		})
	}
}

func (m *Manager) newTurn(query models.Query, intent string, confidence float64, entities models.EntityBag, resp models.Response) models.Turn {
	return models.Turn{
		ID:         uuid.NewString(),
		Query:      query,
		Intent:     intent,
		Confidence: confidence,
		Entities:   entities,
		Response:   resp,
		CreatedAt:  m.now().UTC(),
	}
}

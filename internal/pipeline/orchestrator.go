package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kra-assist/internal/models"
	"kra-assist/internal/nlp"
)

const (
	// DefaultEscalationThreshold is the minimum intent confidence for the
	// automated path.
	DefaultEscalationThreshold = 0.65
	DefaultStageTimeout        = 5 * time.Second
)

const (
	StageNormalize = "normalize"
	StageIntent    = "intent"
	StageEntities  = "entities"
	StageSentiment = "sentiment"
)

// ProcessingError aborts a Process call. No partial result accompanies it.
type ProcessingError struct {
	Kind     ErrorKind
	Language models.Language
	Stage    string
	Cause    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("pipeline %s stage failed (%s): %v", e.Stage, e.Kind, e.Cause)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// FallbackMessage is the localized text for this failure.
func (e *ProcessingError) FallbackMessage() string {
	return Fallback(e.Language, e.Kind)
}

// Outcome holds exactly one of Analysis or Escalation.
type Outcome struct {
	Analysis   *models.Analysis
	Escalation *models.Response
	// Intent and Confidence are set on both paths.
	Intent     string
	Confidence float64
}

func (o *Outcome) Escalated() bool {
	return o.Escalation != nil
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Recorder receives per-call measurements. Optional.
type Recorder interface {
	RecordPipeline(ctx context.Context, outcome string, language models.Language, duration time.Duration)
}

type Config struct {
	EscalationThreshold float64
	StageTimeout        time.Duration
}

func LoadConfig() *Config {
	return &Config{
		EscalationThreshold: DefaultEscalationThreshold,
		StageTimeout:        DefaultStageTimeout,
	}
}

type Orchestrator struct {
	config    *Config
	intents   nlp.IntentClassifier
	entities  nlp.EntityExtractor
	sentiment nlp.SentimentAnalyzer
	recorder  Recorder
	logger    Logger
}

func NewOrchestrator(config *Config, intents nlp.IntentClassifier, entities nlp.EntityExtractor,
	sentiment nlp.SentimentAnalyzer, recorder Recorder, log Logger) *Orchestrator {
	if config.EscalationThreshold == 0 {
		config.EscalationThreshold = DefaultEscalationThreshold
	}
	if config.StageTimeout == 0 {
		config.StageTimeout = DefaultStageTimeout
	}
	return &Orchestrator{
		config:    config,
		intents:   intents,
		entities:  entities,
		sentiment: sentiment,
		recorder:  recorder,
		logger:    log.With(map[string]interface{}{"component": "orchestrator"}),
	}
}

// Process runs normalize, intent, entities and sentiment in that order.
// Below the escalation threshold it returns an escalation and never calls
// the entity or sentiment collaborators.
func (o *Orchestrator) Process(ctx context.Context, query models.Query) (*Outcome, error) {
	start := time.Now()
	outcome, err := o.process(ctx, query)

	label := "analysis"
	switch {
	case err != nil:
		label = "error"
	case outcome.Escalated():
		label = "escalation"
	}
	if o.recorder != nil {
		o.recorder.RecordPipeline(ctx, label, query.Language, time.Since(start))
	}
	return outcome, err
}

func (o *Orchestrator) process(ctx context.Context, query models.Query) (*Outcome, error) {
	normalized, err := nlp.Normalize(query.Text, query.Language)
	if err != nil {
		return nil, o.fail(query.Language, StageNormalize, KindUnsupportedLanguage, err)
	}

	var intent nlp.Intent
	if err := o.stage(ctx, query.Language, StageIntent, func(sctx context.Context) error {
		var cerr error
		intent, cerr = o.intents.Classify(sctx, normalized)
		return cerr
	}); err != nil {
		return nil, err
	}

	if intent.Confidence < o.config.EscalationThreshold {
		o.logger.Info("low intent confidence, escalating", map[string]interface{}{
			"intent":     intent.Label,
			"confidence": intent.Confidence,
			"threshold":  o.config.EscalationThreshold,
			"language":   string(query.Language),
		})
		resp := EscalationResponse(query.Language)
		return &Outcome{Escalation: &resp, Intent: intent.Label, Confidence: intent.Confidence}, nil
	}

	var raw []models.RawEntity
	if err := o.stage(ctx, query.Language, StageEntities, func(sctx context.Context) error {
		var cerr error
		raw, cerr = o.entities.Extract(sctx, normalized)
		return cerr
	}); err != nil {
		return nil, err
	}

	var sentiment string
	if err := o.stage(ctx, query.Language, StageSentiment, func(sctx context.Context) error {
		var cerr error
		sentiment, cerr = o.sentiment.Analyze(sctx, normalized)
		return cerr
	}); err != nil {
		return nil, err
	}

	analysis := &models.Analysis{
		Intent:     intent.Label,
		Confidence: intent.Confidence,
		Entities:   models.NewEntityBag(raw),
		Sentiment:  sentiment,
		Language:   query.Language,
	}
	return &Outcome{Analysis: analysis, Intent: intent.Label, Confidence: intent.Confidence}, nil
}

// stage runs fn under the per-stage timeout and converts any failure,
// including a panic in the collaborator, into a ProcessingError.
func (o *Orchestrator) stage(ctx context.Context, lang models.Language, name string, fn func(context.Context) error) (err error) {
	sctx, cancel := context.WithTimeout(ctx, o.config.StageTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = o.fail(lang, name, KindCollaboratorFailure, fmt.Errorf("panic: %v", r))
		}
	}()

	if cerr := fn(sctx); cerr != nil {
		kind := KindCollaboratorFailure
		if errors.Is(cerr, context.DeadlineExceeded) || errors.Is(cerr, nlp.ErrModelServiceTimeout) || sctx.Err() == context.DeadlineExceeded {
			kind = KindTimeout
		}
		return o.fail(lang, name, kind, cerr)
	}
	return nil
}

func (o *Orchestrator) fail(lang models.Language, stageName string, kind ErrorKind, cause error) *ProcessingError {
	o.logger.Error("pipeline stage failed", map[string]interface{}{
		"stage":    stageName,
		"kind":     string(kind),
		"language": string(lang),
		"error":    cause.Error(),
	})
	return &ProcessingError{Kind: kind, Language: lang, Stage: stageName, Cause: cause}
}

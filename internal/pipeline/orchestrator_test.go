package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kra-assist/internal/models"
	"kra-assist/internal/nlp"
)

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	return &TestLogger{t: l.t, fields: l.mergeFields(fields)}
}

func (l *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	return all
}

type MockIntentClassifier struct{ mock.Mock }

func (m *MockIntentClassifier) Classify(ctx context.Context, text string) (nlp.Intent, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(nlp.Intent), args.Error(1)
}

type MockEntityExtractor struct{ mock.Mock }

func (m *MockEntityExtractor) Extract(ctx context.Context, text string) ([]models.RawEntity, error) {
	args := m.Called(ctx, text)
	raw, _ := args.Get(0).([]models.RawEntity)
	return raw, args.Error(1)
}

type MockSentimentAnalyzer struct{ mock.Mock }

func (m *MockSentimentAnalyzer) Analyze(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingRecorder) RecordPipeline(_ context.Context, outcome string, _ models.Language, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type fixture struct {
	intents   *MockIntentClassifier
	entities  *MockEntityExtractor
	sentiment *MockSentimentAnalyzer
	recorder  *recordingRecorder
	orch      *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		intents:   &MockIntentClassifier{},
		entities:  &MockEntityExtractor{},
		sentiment: &MockSentimentAnalyzer{},
		recorder:  &recordingRecorder{},
	}
	f.orch = NewOrchestrator(&Config{StageTimeout: time.Second}, f.intents, f.entities, f.sentiment, f.recorder, NewTestLogger(t))
	return f
}

func mustQuery(t *testing.T, text, lang string) models.Query {
	q, err := models.NewQuery(text, lang, "user-1")
	require.NoError(t, err)
	return q
}

func TestProcess_StandardPath(t *testing.T) {
	f := newFixture(t)
	normalized := "nahitaji msaada na malipo ya vat"

	var order []string
	f.intents.On("Classify", mock.Anything, normalized).
		Run(func(mock.Arguments) { order = append(order, StageIntent) }).
		Return(nlp.Intent{Label: models.IntentPaymentIssue, Confidence: 0.92}, nil).Once()
	f.entities.On("Extract", mock.Anything, normalized).
		Run(func(mock.Arguments) { order = append(order, StageEntities) }).
		Return([]models.RawEntity{{Kind: models.EntityTaxType, Value: "VAT"}, {Kind: "ORG", Value: "KRA"}}, nil).Once()
	f.sentiment.On("Analyze", mock.Anything, normalized).
		Run(func(mock.Arguments) { order = append(order, StageSentiment) }).
		Return("neutral", nil).Once()

	outcome, err := f.orch.Process(context.Background(), mustQuery(t, "Nahitaji msaada na malipo ya VAT", "sw"))
	require.NoError(t, err)
	require.False(t, outcome.Escalated())
	require.NotNil(t, outcome.Analysis)

	a := outcome.Analysis
	assert.Equal(t, models.IntentPaymentIssue, a.Intent)
	assert.Equal(t, 0.92, a.Confidence)
	assert.Equal(t, "neutral", a.Sentiment)
	assert.Equal(t, models.LanguageSwahili, a.Language)
	assert.Empty(t, a.Entities.Get(models.EntityKRAPin))
	assert.Equal(t, []string{"VAT"}, a.Entities.Get(models.EntityTaxType))
	assert.Equal(t, []string{StageIntent, StageEntities, StageSentiment}, order)
	assert.Equal(t, []string{"analysis"}, f.recorder.outcomes)

	f.intents.AssertExpectations(t)
	f.entities.AssertNumberOfCalls(t, "Extract", 1)
	f.sentiment.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestProcess_EscalatesBelowThreshold(t *testing.T) {
	confidences := []float64{0, 0.1, 0.5, 0.6499}
	for _, c := range confidences {
		f := newFixture(t)
		f.intents.On("Classify", mock.Anything, mock.Anything).
			Return(nlp.Intent{Label: models.IntentFormHelp, Confidence: c}, nil)

		outcome, err := f.orch.Process(context.Background(), mustQuery(t, "swali", "sw"))
		require.NoError(t, err)
		require.True(t, outcome.Escalated(), "confidence %v", c)
		assert.Nil(t, outcome.Analysis)
		assert.Equal(t, models.ActionEscalate, outcome.Escalation.Action)
		assert.Equal(t, "Samahani, tafadhali eleza swali lako kwa undani zaidi.", outcome.Escalation.Message)

		f.entities.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
		f.sentiment.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
	}
}

func TestProcess_AtThresholdRunsFullPipeline(t *testing.T) {
	for _, c := range []float64{0.65, 0.7, 1} {
		f := newFixture(t)
		f.intents.On("Classify", mock.Anything, mock.Anything).Return(nlp.Intent{Label: "deadline_query", Confidence: c}, nil)
		f.entities.On("Extract", mock.Anything, mock.Anything).Return([]models.RawEntity(nil), nil)
		f.sentiment.On("Analyze", mock.Anything, mock.Anything).Return("neutral", nil)

		outcome, err := f.orch.Process(context.Background(), mustQuery(t, "deadline", "en"))
		require.NoError(t, err)
		assert.False(t, outcome.Escalated())
		f.entities.AssertNumberOfCalls(t, "Extract", 1)
		f.sentiment.AssertNumberOfCalls(t, "Analyze", 1)
	}
}

func TestProcess_CollaboratorFailure(t *testing.T) {
	boom := errors.New("ner model crashed")

	tests := []struct {
		name      string
		setup     func(f *fixture)
		wantStage string
		wantKind  ErrorKind
	}{
		{
			name: "intent fails",
			setup: func(f *fixture) {
				f.intents.On("Classify", mock.Anything, mock.Anything).Return(nlp.Intent{}, boom)
			},
			wantStage: StageIntent,
			wantKind:  KindCollaboratorFailure,
		},
		{
			name: "entities fail",
			setup: func(f *fixture) {
				f.intents.On("Classify", mock.Anything, mock.Anything).Return(nlp.Intent{Label: "form_help", Confidence: 0.9}, nil)
				f.entities.On("Extract", mock.Anything, mock.Anything).Return(nil, boom)
			},
			wantStage: StageEntities,
			wantKind:  KindCollaboratorFailure,
		},
		{
			name: "sentiment times out",
			setup: func(f *fixture) {
				f.intents.On("Classify", mock.Anything, mock.Anything).Return(nlp.Intent{Label: "form_help", Confidence: 0.9}, nil)
				f.entities.On("Extract", mock.Anything, mock.Anything).Return([]models.RawEntity(nil), nil)
				f.sentiment.On("Analyze", mock.Anything, mock.Anything).Return("", context.DeadlineExceeded)
			},
			wantStage: StageSentiment,
			wantKind:  KindTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			outcome, err := f.orch.Process(context.Background(), mustQuery(t, "Fomu ya P9A", "en"))
			assert.Nil(t, outcome)

			var perr *ProcessingError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.wantStage, perr.Stage)
			assert.Equal(t, tt.wantKind, perr.Kind)
			assert.Equal(t, models.LanguageEnglish, perr.Language)
			assert.Equal(t, "Sorry, we're experiencing technical difficulties. Please try again later.", perr.FallbackMessage())
			assert.Equal(t, []string{"error"}, f.recorder.outcomes)
		})
	}
}

func TestProcess_UnsupportedLanguage(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Process(context.Background(), mustQuery(t, "bonjour", "fr"))
	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindUnsupportedLanguage, perr.Kind)
	assert.True(t, errors.Is(err, nlp.ErrUnsupportedLanguage))
	assert.Equal(t, Fallback(models.LanguageSwahili, KindCollaboratorFailure), perr.FallbackMessage())
	f.intents.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

type panickingClassifier struct{}

func (panickingClassifier) Classify(context.Context, string) (nlp.Intent, error) {
	panic("model not loaded")
}

func TestProcess_RecoversCollaboratorPanic(t *testing.T) {
	orch := NewOrchestrator(LoadConfig(), panickingClassifier{}, &MockEntityExtractor{}, &MockSentimentAnalyzer{}, nil, NewTestLogger(t))
	_, err := orch.Process(context.Background(), mustQuery(t, "vat", "sw"))

	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StageIntent, perr.Stage)
}

type slowClassifier struct{}

func (slowClassifier) Classify(ctx context.Context, _ string) (nlp.Intent, error) {
	<-ctx.Done()
	return nlp.Intent{}, ctx.Err()
}

func TestProcess_StageTimeout(t *testing.T) {
	orch := NewOrchestrator(&Config{StageTimeout: 20 * time.Millisecond}, slowClassifier{}, &MockEntityExtractor{}, &MockSentimentAnalyzer{}, nil, NewTestLogger(t))
	_, err := orch.Process(context.Background(), mustQuery(t, "vat", "sw"))

	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindTimeout, perr.Kind)
}

func TestFallback(t *testing.T) {
	assert.Equal(t, "Samahani, kuna tatizo la kiufundi. Tafadhali jaribu tena baadaye.", Fallback(models.LanguageSwahili, KindCollaboratorFailure))
	assert.Equal(t, "Sorry, we're experiencing technical difficulties. Please try again later.", Fallback(models.LanguageEnglish, KindTimeout))
	assert.Equal(t, Fallback(models.LanguageSwahili, KindTimeout), Fallback("fr", KindCollaboratorFailure))
	assert.Equal(t, Fallback(models.LanguageSwahili, KindTimeout), Fallback(models.LanguageEnglish, KindUnsupportedLanguage))
	assert.Equal(t, "Sorry, please describe your question in more detail.", EscalationMessage(models.LanguageEnglish))
}

package submitassessment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "kra-assist/internal/common/errors"
	"kra-assist/internal/common/logger"
	"kra-assist/internal/fraud"
	"kra-assist/internal/models"
)

type MockScorer struct{ mock.Mock }

func (m *MockScorer) Score(ctx context.Context, sample fraud.Sample) (fraud.Assessment, error) {
	args := m.Called(ctx, sample)
	return args.Get(0).(fraud.Assessment), args.Error(1)
}

type MockSubmitter struct{ mock.Mock }

func (m *MockSubmitter) SubmitAssessment(ctx context.Context, a models.Assessment) (string, error) {
	args := m.Called(ctx, a)
	return args.String(0), args.Error(1)
}

func createTestInput() *Input {
	return &Input{
		PIN:            "A123456789B",
		TaxYear:        2024,
		Amount:         15000,
		Frequency:      3,
		DeclaredIncome: 600000,
		AssetValue:     2500000,
	}
}

func newTestHandler(t *testing.T) (*Handler, *MockScorer, *MockSubmitter) {
	scorer, submitter := &MockScorer{}, &MockSubmitter{}
	return NewHandler(LoadConfig(), scorer, submitter, logger.NewTestLogger(t)), scorer, submitter
}

func TestExecute_Success(t *testing.T) {
	h, scorer, submitter := newTestHandler(t)
	scorer.On("Score", mock.Anything, fraud.Sample{Amount: 15000, Frequency: 3, DeclaredIncome: 600000, AssetValue: 2500000}).
		Return(fraud.Assessment{Score: 0.12}, nil).Once()
	submitter.On("SubmitAssessment", mock.Anything, models.Assessment{PIN: "A123456789B", TaxYear: 2024, Amount: 15000}).
		Return("TX-2024-0001", nil).Once()

	out, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, "TX-2024-0001", out.TransactionID)
	assert.Equal(t, 0.12, out.FraudScore)
	scorer.AssertExpectations(t)
	submitter.AssertExpectations(t)
}

func TestExecute_FraudSuspected(t *testing.T) {
	h, scorer, submitter := newTestHandler(t)
	scorer.On("Score", mock.Anything, mock.Anything).Return(fraud.Assessment{Score: 0.91, Suspected: true}, nil)

	_, err := h.Execute(context.Background(), createTestInput())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeFraudSuspected))

	bpmn := apperrors.ConvertToBPMNError(apperrors.From(err))
	assert.Equal(t, "FRAUD_SUSPECTED", bpmn.Code)
	assert.Equal(t, 0, bpmn.Retries, "business errors are thrown, not retried")
	submitter.AssertNotCalled(t, "SubmitAssessment", mock.Anything, mock.Anything)
}

func TestExecute_ModelNotTrainedAborts(t *testing.T) {
	h, scorer, submitter := newTestHandler(t)
	scorer.On("Score", mock.Anything, mock.Anything).Return(fraud.Assessment{}, fraud.ErrModelNotTrained)

	_, err := h.Execute(context.Background(), createTestInput())
	assert.ErrorIs(t, err, fraud.ErrModelNotTrained)
	submitter.AssertNotCalled(t, "SubmitAssessment", mock.Anything, mock.Anything)
}

func TestExecute_SubmissionFailureIsRetryable(t *testing.T) {
	h, scorer, submitter := newTestHandler(t)
	scorer.On("Score", mock.Anything, mock.Anything).Return(fraud.Assessment{Score: 0.2}, nil)
	submitter.On("SubmitAssessment", mock.Anything, mock.Anything).
		Return("", apperrors.NewAssessmentSubmitError(errors.New("503 after 3 attempts")))

	_, err := h.Execute(context.Background(), createTestInput())
	require.Error(t, err)
	bpmn := apperrors.ConvertToBPMNError(apperrors.From(err))
	assert.Equal(t, 3, bpmn.Retries)
}

func TestExecute_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"bad pin", func(in *Input) { in.PIN = "12345" }},
		{"zero amount", func(in *Input) { in.Amount = 0 }},
		{"negative amount", func(in *Input) { in.Amount = -10 }},
		{"ancient year", func(in *Input) { in.TaxYear = 1990 }},
		{"future year", func(in *Input) { in.TaxYear = 3000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, scorer, _ := newTestHandler(t)
			input := createTestInput()
			tt.mutate(input)

			_, err := h.Execute(context.Background(), input)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
			scorer.AssertNotCalled(t, "Score", mock.Anything, mock.Anything)
		})
	}
}

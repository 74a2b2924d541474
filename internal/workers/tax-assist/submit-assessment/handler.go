package submitassessment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"kra-assist/internal/common/camunda"
	apperrors "kra-assist/internal/common/errors"
	"kra-assist/internal/common/logger"
	"kra-assist/internal/common/validation"
	"kra-assist/internal/fraud"
	"kra-assist/internal/models"
)

const TaskType = "submit-assessment"

type FraudScorer interface {
	Score(ctx context.Context, sample fraud.Sample) (fraud.Assessment, error)
}

type Submitter interface {
	SubmitAssessment(ctx context.Context, a models.Assessment) (string, error)
}

type Handler struct {
	config       *Config
	scorer       FraudScorer
	submitter    Submitter
	errorHandler *apperrors.JobErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, scorer FraudScorer, submitter Submitter, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		scorer:       scorer,
		submitter:    submitter,
		errorHandler: apperrors.NewJobErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		err = apperrors.NewValidationError(fmt.Sprintf("parse job variables: %v", err))
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return err
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return err
	}
	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
		return apperrors.NewInternalError(err)
	}
	h.logger.Info("assessment submitted", map[string]interface{}{
		"jobKey":        job.Key,
		"pin":           input.PIN,
		"transactionId": output.TransactionID,
	})
	return nil
}

// Execute screens the assessment with the fraud model and submits it to KRA
// when it is not suspected. An untrained model aborts the submission.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	verdict, err := h.scorer.Score(ctx, fraud.Sample{
		Amount:         input.Amount,
		Frequency:      input.Frequency,
		DeclaredIncome: input.DeclaredIncome,
		AssetValue:     input.AssetValue,
	})
	if err != nil {
		return nil, err
	}
	if verdict.Suspected {
		h.logger.Warn("assessment flagged for fraud review", map[string]interface{}{
			"pin":   input.PIN,
			"score": verdict.Score,
		})
		return nil, apperrors.NewFraudSuspectedError(input.PIN, verdict.Score).
			WithMetadata(map[string]interface{}{"fraudScore": verdict.Score})
	}

	txID, err := h.submitter.SubmitAssessment(ctx, models.Assessment{
		PIN:            input.PIN,
		TaxYear:        input.TaxYear,
		Amount:         input.Amount,
		AssessmentType: input.AssessmentType,
	})
	if err != nil {
		return nil, err
	}
	return &Output{TransactionID: txID, FraudScore: verdict.Score}, nil
}

func validate(input *Input) error {
	if !validation.ValidatePIN(input.PIN) {
		return apperrors.NewValidationError(fmt.Sprintf("invalid KRA PIN %q", input.PIN))
	}
	if input.Amount <= 0 {
		return apperrors.NewValidationError("amount must be positive")
	}
	if input.TaxYear < 2000 || input.TaxYear > time.Now().Year() {
		return apperrors.NewValidationError(fmt.Sprintf("tax year %d out of range", input.TaxYear))
	}
	return nil
}

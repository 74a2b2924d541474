package notifyescalation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"kra-assist/internal/common/camunda"
	apperrors "kra-assist/internal/common/errors"
	"kra-assist/internal/common/logger"
	"kra-assist/internal/common/validation"
	"kra-assist/internal/dialogue"
	"kra-assist/internal/notify"
)

const TaskType = "notify-escalation"

type Mailer interface {
	SendSupportEmail(ctx context.Context, e notify.SupportEmail) (string, error)
}

type Handler struct {
	config       *Config
	mailer       Mailer
	errorHandler *apperrors.JobErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, mailer Mailer, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		mailer:       mailer,
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
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, apperrors.NewValidationError("query is required")
	}
	if input.Email != "" && !validation.ValidateEmail(input.Email) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid email %q", input.Email))
	}
	reason := input.Reason
	if reason == "" {
		reason = dialogue.ReasonLowConfidence
	}

	id, err := h.mailer.SendSupportEmail(ctx, notify.SupportEmail{
		To:       input.Email,
		UserID:   input.UserID,
		Query:    input.Query,
		Language: input.Language,
		Reason:   reason,
	})
	if err != nil {
		return nil, err
	}
	h.logger.Info("support desk notified", map[string]interface{}{
		"userId":    input.UserID,
		"reason":    reason,
		"messageId": id,
	})
	return &Output{MessageID: id, Notified: true}, nil
}

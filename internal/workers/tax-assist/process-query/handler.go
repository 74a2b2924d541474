package processquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"kra-assist/internal/common/camunda"
	apperrors "kra-assist/internal/common/errors"
	"kra-assist/internal/common/logger"
	"kra-assist/internal/models"
	"kra-assist/internal/pipeline"
)

const TaskType = "process-query"

type Responder interface {
	Respond(ctx context.Context, query models.Query) (*models.Response, error)
}

type Handler struct {
	config       *Config
	responder    Responder
	errorHandler *apperrors.JobErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, responder Responder, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		responder:    responder,
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
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":   job.Key,
		"action":   string(output.ActionRequired),
		"fallback": output.Fallback,
	})
	return nil
}

// Execute answers the query through the dialogue manager. A pipeline
// failure completes with the localized fallback rather than failing the job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	query, err := models.NewQuery(input.Query, input.Language, input.UserID)
	if err != nil {
		return nil, err
	}

	resp, err := h.responder.Respond(ctx, query)
	if err != nil {
		var perr *pipeline.ProcessingError
		if !errors.As(err, &perr) {
			return nil, err
		}
		h.logger.Warn("pipeline failed, returning fallback", map[string]interface{}{
			"stage": perr.Stage,
			"kind":  string(perr.Kind),
		})
		return &Output{
			Response:       perr.FallbackMessage(),
			Suggestions:    []string{},
			ActionRequired: models.ActionEscalate,
			Fallback:       true,
		}, nil
	}

	suggestions := resp.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	return &Output{
		Response:       resp.Message,
		Suggestions:    suggestions,
		ActionRequired: resp.Action,
		PendingAction:  resp.PendingAction,
	}, nil
}

package camunda

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	apperrors "kra-assist/internal/common/errors"
	"kra-assist/internal/common/logger"
)

// JobHandler settles the job with the broker itself and returns the error it
// reported, or nil once the job is completed.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

type JobRecorder interface {
	RecordJob(taskType, errorCode string, duration time.Duration)
}

type WorkerOptions struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

type Worker struct {
	options  WorkerOptions
	handler  JobHandler
	recorder JobRecorder
	logger   logger.Logger
	worker   worker.JobWorker
}

func NewWorker(options WorkerOptions, handler JobHandler, recorder JobRecorder, log logger.Logger) *Worker {
	if options.MaxJobsActive <= 0 {
		options.MaxJobsActive = 5
	}
	if options.Timeout <= 0 {
		options.Timeout = 30 * time.Second
	}
	return &Worker{
		options:  options,
		handler:  handler,
		recorder: recorder,
		logger:   log.WithFields(map[string]interface{}{"taskType": options.TaskType}),
	}
}

// Start opens the job worker on client. Close stops polling.
func (w *Worker) Start(client zbc.Client) {
	w.worker = client.NewJobWorker().
		JobType(w.options.TaskType).
		Handler(w.handle).
		MaxJobsActive(w.options.MaxJobsActive).
		Timeout(w.options.Timeout).
		Open()
	w.logger.Info("worker started", map[string]interface{}{"maxJobsActive": w.options.MaxJobsActive})
}

func (w *Worker) Close() {
	if w.worker == nil {
		return
	}
	w.worker.Close()
	w.worker.AwaitClose()
	w.logger.Info("worker stopped", nil)
}

func (w *Worker) handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	err := w.invoke(client, job)

	code := ""
	if err != nil {
		code = string(apperrors.From(err).Code)
	}
	if w.recorder != nil {
		w.recorder.RecordJob(w.options.TaskType, code, time.Since(start))
	}
}

// invoke fails the job with no retries when the handler panics.
func (w *Worker) invoke(client worker.JobClient, job entities.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewInternalError(fmt.Errorf("panic: %v", r))
			w.logger.Error("handler panicked", map[string]interface{}{"jobKey": job.Key, "panic": fmt.Sprint(r)})
			if _, ferr := client.NewFailJobCommand().JobKey(job.Key).Retries(0).
				ErrorMessage(err.Error()).Send(context.Background()); ferr != nil {
				w.logger.Error("failed to send fail job command", map[string]interface{}{"jobKey": job.Key, "error": ferr.Error()})
			}
		}
	}()
	return w.handler.Handle(client, job)
}

// CompleteJob completes job with vars as its output variables.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, vars interface{}) error {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(vars)
	if err != nil {
		return fmt.Errorf("encode job variables: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("send complete job command: %w", err)
	}
	return nil
}

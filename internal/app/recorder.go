package app

import (
	"context"
	"time"

	"kra-assist/internal/common/metrics"
	"kra-assist/internal/common/observability"
)

// JobRecorder feeds worker outcomes to both the Prometheus collectors and the
// OpenTelemetry instruments.
type JobRecorder struct {
	Metrics *metrics.Recorder
	Obs     *observability.Observability
}

func (r JobRecorder) RecordJob(taskType, errorCode string, duration time.Duration) {
	r.Metrics.RecordJob(taskType, errorCode, duration)
	if r.Obs == nil {
		return
	}
	status := "completed"
	if errorCode != "" {
		status = errorCode
	}
	r.Obs.RecordJob(context.Background(), taskType, status, duration)
}

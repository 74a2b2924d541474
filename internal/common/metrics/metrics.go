package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kra-assist/internal/models"
)

var (
	AssistQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assist_queries_total",
			Help: "Answered /assist queries by language and action",
		},
		[]string{"language", "action"},
	)

	AssistEscalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assist_escalations_total",
			Help: "Queries handed to a human agent",
		},
		[]string{"language"},
	)

	AssistFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assist_fallbacks_total",
			Help: "Queries answered with the fallback message, by failure kind",
		},
		[]string{"kind"},
	)

	AssistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assist_pipeline_duration_seconds",
			Help:    "End-to-end /assist latency for answered queries",
			Buckets: prometheus.DefBuckets,
		},
	)

	KRARequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kra_api_requests_total",
			Help: "KRA API attempts by operation and status",
		},
		[]string{"operation", "status"},
	)

	KRAErrors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kra_api_errors",
			Help: "Failed KRA API calls since start",
		},
	)

	KRADuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kra_api_request_duration_seconds",
			Help:    "KRA API attempt latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	SystemMemory = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "system_memory_usage",
			Help: "Heap in use (MB)",
		},
	)

	SystemGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "system_goroutines",
			Help: "Live goroutines",
		},
	)

	DialogueUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialogue_users",
			Help: "Users with an in-memory dialogue history",
		},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)
)

// Recorder feeds the HTTP edge and KRA client measurements into the
// package-level vectors.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (Recorder) RecordQuery(language models.Language, action string, duration time.Duration) {
	AssistQueries.WithLabelValues(string(language), action).Inc()
	if action == string(models.ActionEscalate) {
		AssistEscalations.WithLabelValues(string(language)).Inc()
	}
	AssistDuration.Observe(duration.Seconds())
}

func (Recorder) RecordFallback(kind string) {
	AssistFallbacks.WithLabelValues(kind).Inc()
}

func (Recorder) RecordKRARequest(operation, status string, duration time.Duration) {
	KRARequests.WithLabelValues(operation, status).Inc()
	KRADuration.WithLabelValues(operation).Observe(duration.Seconds())
	if status != "success" {
		KRAErrors.Inc()
	}
}

func (Recorder) RecordJob(taskType, errorCode string, duration time.Duration) {
	WorkerJobDuration.WithLabelValues(taskType).Observe(duration.Seconds())
	if errorCode == "" {
		WorkerJobsCompleted.WithLabelValues(taskType).Inc()
		return
	}
	WorkerJobsFailed.WithLabelValues(taskType, errorCode).Inc()
}

// SampleRuntime updates the system gauges once.
func SampleRuntime() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	SystemMemory.Set(float64(m.HeapInuse) / (1 << 20))
	SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}

// RunRuntimeSampler calls SampleRuntime every interval until ctx is done.
func RunRuntimeSampler(ctx context.Context, interval time.Duration) {
	SampleRuntime()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			SampleRuntime()
		}
	}
}

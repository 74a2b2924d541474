package observability

import (
	"context"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/otlptranslator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"kra-assist/internal/models"
)

// Observability exports OpenTelemetry instruments through the Prometheus
// registry served on /metrics.
type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	pipelineRuns    otelmetric.Int64Counter
	pipelineLatency otelmetric.Float64Histogram
	jobCounter      otelmetric.Int64Counter
	jobDuration     otelmetric.Float64Histogram
}

// New builds a meter provider. A nil registerer means the default registry.
// Instrument names are exported with underscores ("assist.pipeline.runs"
// becomes assist_pipeline_runs_total).
func New(serviceName string, registerer promclient.Registerer) (*Observability, error) {
	opts := []prometheus.Option{
		prometheus.WithTranslationStrategy(otlptranslator.UnderscoreEscapingWithSuffixes),
	}
	if registerer != nil {
		opts = append(opts, prometheus.WithRegisterer(registerer))
	}
	exporter, err := prometheus.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	o := &Observability{meterProvider: provider, meter: meter}

	if o.pipelineRuns, err = meter.Int64Counter(
		"assist.pipeline.runs",
		otelmetric.WithDescription("Orchestrator runs by outcome and language"),
	); err != nil {
		return nil, err
	}
	if o.pipelineLatency, err = meter.Float64Histogram(
		"assist.pipeline.latency",
		otelmetric.WithDescription("Orchestrator latency"),
		otelmetric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if o.jobCounter, err = meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	); err != nil {
		return nil, err
	}
	if o.jobDuration, err = meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return o, nil
}

// RecordPipeline implements the orchestrator's Recorder.
func (o *Observability) RecordPipeline(ctx context.Context, outcome string, language models.Language, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("language", string(language)),
	)
	o.pipelineRuns.Add(ctx, 1, attrs)
	o.pipelineLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (o *Observability) RecordJob(ctx context.Context, taskType, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	)
	o.jobCounter.Add(ctx, 1, attrs)
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o.meterProvider == nil {
		return nil
	}
	return o.meterProvider.Shutdown(ctx)
}

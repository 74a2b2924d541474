package observability

import (
	"context"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kra-assist/internal/models"
)

func TestRecordPipeline_Exported(t *testing.T) {
	reg := promclient.NewRegistry()
	o, err := New("kra_nlp", reg)
	require.NoError(t, err)
	defer o.Shutdown(context.Background()) //nolint:errcheck

	ctx := context.Background()
	o.RecordPipeline(ctx, "analysis", models.LanguageSwahili, 12*time.Millisecond)
	o.RecordPipeline(ctx, "escalation", models.LanguageEnglish, 3*time.Millisecond)
	o.RecordJob(ctx, "process-query", "completed", 5*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	var runs float64
	for _, mf := range families {
		names = append(names, mf.GetName())
		if mf.GetName() == "assist_pipeline_runs_total" {
			for _, m := range mf.GetMetric() {
				runs += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, runs, names)
	assert.Contains(t, names, "assist_pipeline_latency_milliseconds")
	assert.Contains(t, names, "jobs_processed_total")
	assert.Contains(t, names, "jobs_duration_milliseconds")
	assert.False(t, hasPrefix(names, "assist."), names)
}

func hasPrefix(names []string, prefix string) bool {
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

package tracebuilder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"

	"gha-exporter/internal/logparse"
	"gha-exporter/internal/models"
)

func TestStatusPropagatorFail(t *testing.T) {
	h := newHarness()
	ctx, job := h.tracer.Start(context.Background(), "build")
	_, step := h.tracer.Start(ctx, "Run tests")

	p := newStatusPropagator(step, job, "Run tests")
	assert.False(t, p.failed())

	p.fail("first")
	p.fail("second")
	assert.True(t, p.failed())

	step.End()
	job.End()

	stepSpan := h.span(t, "Run tests")
	assert.Equal(t, codes.Error, stepSpan.Status().Code)
	assert.Equal(t, "second", stepSpan.Status().Description)

	jobSpan := h.span(t, "build")
	assert.Equal(t, codes.Error, jobSpan.Status().Code)
	assert.Equal(t, "STEP: Run tests failed", jobSpan.Status().Description)
}

func TestSeverityNumber(t *testing.T) {
	tests := []struct {
		severity logparse.Severity
		want     otellog.Severity
	}{
		{logparse.SeverityInfo, otellog.SeverityInfo},
		{logparse.SeverityDebug, otellog.SeverityDebug},
		{logparse.SeverityNotice, otellog.SeverityInfo4},
		{logparse.SeverityWarning, otellog.SeverityWarn},
		{logparse.SeverityError, otellog.SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.severity.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, severityNumber(tt.severity))
		})
	}
}

func TestCompactDropsEmptyValues(t *testing.T) {
	kvs := compact(
		attribute.String("a", "x"),
		attribute.String("b", ""),
		attribute.StringSlice("c", nil),
		attribute.Int("d", 0),
		instant("e", time.Time{}),
	)

	require.Len(t, kvs, 2)
	assert.Equal(t, attribute.Key("a"), kvs[0].Key)
	assert.Equal(t, attribute.Key("d"), kvs[1].Key)
}

func TestStepAttributes(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	job := models.Job{ID: 9, Name: "build"}
	step := models.Step{Number: 2, Name: "Run tests", Status: "completed", Conclusion: models.ConclusionSuccess, StartedAt: started}

	got := map[attribute.Key]attribute.Value{}
	for _, kv := range stepAttributes(job, step) {
		got[kv.Key] = kv.Value
	}

	assert.Equal(t, int64(9), got["job.id"].AsInt64())
	assert.Equal(t, int64(2), got["step.number"].AsInt64())
	assert.Equal(t, "success", got["step.conclusion"].AsString())
	assert.Equal(t, "2024-03-01T09:00:00Z", got["step.started_at"].AsString())
	assert.NotContains(t, got, attribute.Key("step.completed_at"))
}

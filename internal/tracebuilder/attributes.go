package tracebuilder

import (
	"time"

	"go.opentelemetry.io/otel/attribute"

	"gha-exporter/internal/models"
)

func workflowAttributes(run models.WorkflowRun) []attribute.KeyValue {
	return compact(
		attribute.Int64("workflow.id", run.ID),
		attribute.String("workflow.name", run.Name),
		attribute.Int("workflow.run_number", run.RunNumber),
		attribute.Int("workflow.run_attempt", run.RunAttempt),
		attribute.String("workflow.event", run.Event),
		attribute.String("workflow.status", run.Status),
		attribute.String("workflow.conclusion", string(run.Conclusion)),
		attribute.String("workflow.head_sha", run.HeadSHA),
		attribute.String("workflow.head_branch", run.HeadBranch),
		attribute.String("workflow.html_url", run.HTMLURL),
		attribute.String("workflow.actor", run.Actor),
		instant("workflow.run_started_at", run.StartedAt),
		instant("workflow.updated_at", run.UpdatedAt),
	)
}

func jobAttributes(job models.Job) []attribute.KeyValue {
	return compact(
		attribute.Int64("job.id", job.ID),
		attribute.Int64("job.run_id", job.RunID),
		attribute.String("job.name", job.Name),
		attribute.String("job.status", job.Status),
		attribute.String("job.conclusion", string(job.Conclusion)),
		attribute.String("job.head_sha", job.HeadSHA),
		attribute.String("job.head_branch", job.HeadBranch),
		attribute.String("job.runner_name", job.RunnerName),
		attribute.StringSlice("job.labels", job.Labels),
		attribute.String("job.html_url", job.HTMLURL),
		instant("job.started_at", job.StartedAt),
		instant("job.completed_at", job.CompletedAt),
		attribute.Int("job.steps", len(job.Steps)),
	)
}

func stepAttributes(job models.Job, step models.Step) []attribute.KeyValue {
	return compact(
		attribute.Int64("job.id", job.ID),
		attribute.String("job.name", job.Name),
		attribute.Int64("step.number", step.Number),
		attribute.String("step.name", step.Name),
		attribute.String("step.status", step.Status),
		attribute.String("step.conclusion", string(step.Conclusion)),
		instant("step.started_at", step.StartedAt),
		instant("step.completed_at", step.CompletedAt),
	)
}

func instant(key string, t time.Time) attribute.KeyValue {
	if t.IsZero() {
		return attribute.String(key, "")
	}
	return attribute.String(key, t.UTC().Format(time.RFC3339))
}

// compact drops empty strings and empty slices.
func compact(kvs ...attribute.KeyValue) []attribute.KeyValue {
	out := kvs[:0]
	for _, kv := range kvs {
		switch kv.Value.Type() {
		case attribute.STRING:
			if kv.Value.AsString() == "" {
				continue
			}
		case attribute.STRINGSLICE:
			if len(kv.Value.AsStringSlice()) == 0 {
				continue
			}
		}
		out = append(out, kv)
	}
	return out
}

// merge prefixes the resource-level attributes to an entity projection.
func merge(resource, entity []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(resource)+len(entity))
	out = append(out, resource...)
	return append(out, entity...)
}

// Package tracebuilder turns a finished workflow run into a workflow → job → step span tree with
// step log records attached.
//
// Processing is sequential. Each job and step is failure-isolated: a unit that cannot be
// exported is recorded in the Report and its siblings are still processed.
package tracebuilder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"

	"gha-exporter/internal/logparse"
	"gha-exporter/internal/logs"
	"gha-exporter/internal/models"
	"gha-exporter/internal/timeline"
)

// SkippedSuffix is appended to the span name of a step that never ran.
const SkippedSuffix = "-SKIPPED"

// ErrMissingJobTimes means a job lacks a usable start or completion instant.
var ErrMissingJobTimes = errors.New("job has no usable start/completion time")

// Options configures a Builder.
type Options struct {
	// RootSpanName names the workflow span. Defaults to the run name.
	RootSpanName string
	// Attributes are merged into every span.
	Attributes []attribute.KeyValue
	// Logs provides step log text. Nil disables log parsing.
	Logs   logs.Source
	Logger *slog.Logger
}

// Builder creates the span tree for one workflow run.
type Builder struct {
	tracer  trace.Tracer
	emitter *Emitter
	opts    Options
	logger  *slog.Logger
}

// NewBuilder creates a Builder. records receives the step log records.
func NewBuilder(tracer trace.Tracer, records otellog.Logger, opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		tracer:  tracer,
		emitter: NewEmitter(records),
		opts:    opts,
		logger:  logger,
	}
}

// RootSpanName returns the workflow span name, optionally suffixed with the run ID.
func RootSpanName(runName string, runID int64, includeID bool) string {
	if includeID {
		return runName + " - run: " + strconv.FormatInt(runID, 10)
	}
	return runName
}

// Build exports run and its jobs, in the order given, and reports per-unit outcomes.
// The workflow span is always ended.
func (b *Builder) Build(ctx context.Context, run models.WorkflowRun, jobs []models.Job) *Report {
	report := &Report{RunID: run.ID}

	name := b.opts.RootSpanName
	if name == "" {
		name = run.Name
	}

	start := run.StartedAt
	if start.IsZero() && len(jobs) > 0 {
		start = jobs[0].StartedAt
	}

	rootCtx, root := b.tracer.Start(ctx, name,
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(merge(b.opts.Attributes, workflowAttributes(run))...),
	)

	var finishedAt time.Time
	for _, job := range jobs {
		b.logger.Info("Processing job", "job", job.Name)

		res := b.buildJob(rootCtx, job)
		report.Jobs = append(report.Jobs, res)
		report.Spans += res.Spans

		if res.Err != nil {
			b.logger.Error("Unable to process job", "job", job.Name, "error", res.Err)
			continue
		}
		finishedAt = job.CompletedAt
		b.logger.Info("Finished processing job", "job", job.Name)
	}

	if finishedAt.IsZero() {
		finishedAt = run.UpdatedAt
	}
	root.End(trace.WithTimestamp(finishedAt))
	report.Spans++

	return report
}

func (b *Builder) buildJob(ctx context.Context, job models.Job) JobResult {
	res := JobResult{ID: job.ID, Name: job.Name}

	if job.StartedAt.IsZero() || job.CompletedAt.IsZero() || job.CompletedAt.Before(job.StartedAt) {
		res.Err = ErrMissingJobTimes
		return res
	}

	jobCtx, span := b.tracer.Start(ctx, job.Name,
		trace.WithTimestamp(job.StartedAt),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(merge(b.opts.Attributes, jobAttributes(job))...),
	)

	intervals := timeline.Resolve(job)
	for i, step := range job.OrderedSteps() {
		sr := b.buildStep(jobCtx, span, job, step, intervals[i])
		if sr.Err != nil {
			b.logger.Error("Unable to process step", "job", job.Name, "step", step.Name, "error", sr.Err)
		} else {
			res.Spans++
		}
		res.Steps = append(res.Steps, sr)
	}

	span.End(trace.WithTimestamp(job.CompletedAt))
	res.Spans++

	return res
}

func (b *Builder) buildStep(ctx context.Context, jobSpan trace.Span, job models.Job, step models.Step, iv timeline.Interval) StepResult {
	res := StepResult{Number: step.Number, Name: step.Name, Inferred: iv.Inferred}

	if err := iv.Validate(); err != nil {
		res.Err = err
		return res
	}

	b.logger.Debug("Processing step", "job", job.Name, "step", step.Name, "conclusion", step.Conclusion)

	stepCtx, span := b.tracer.Start(ctx, step.Name,
		trace.WithTimestamp(iv.Start),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(merge(b.opts.Attributes, stepAttributes(job, step))...),
	)
	status := newStatusPropagator(span, jobSpan, step.Name)

	if b.opts.Logs != nil {
		b.emitLogs(stepCtx, job, step, status, &res)
	}

	if step.Conclusion == models.ConclusionFailure && !status.failed() {
		status.fail(FailedConclusionDescription)
	}

	if iv.Inferred {
		span.SetName(step.Name + SkippedSuffix)
	}
	span.End(trace.WithTimestamp(iv.End))

	return res
}

// emitLogs classifies the step's log lines in file order, emitting a record for each usable
// line and failing the step on error lines.
func (b *Builder) emitLogs(ctx context.Context, job models.Job, step models.Step, status *statusPropagator, res *StepResult) {
	rc, err := b.opts.Logs.Open(job.Name, step.Number, step.Name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && step.Conclusion.NotExecuted() {
			b.logger.Debug("Log file not expected for this step", "step", step.Name, "conclusion", step.Conclusion)
			return
		}
		res.LogErr = err
		b.logger.Error("Log file does not exist", "path", logs.StepPath(job.Name, step.Number, step.Name), "error", err)
		return
	}
	defer rc.Close()

	err = logs.Lines(rc, func(raw string) {
		line, err := logparse.Classify(raw)
		if err != nil {
			if errors.Is(err, logparse.ErrInvalidTimestamp) {
				b.logger.Debug("Line does not start with a date, skipping", "step", step.Name)
			}
			res.skip(logparse.SkipReason(err))
			return
		}

		if line.Severity == logparse.SeverityError {
			status.fail(line.Message)
		}
		b.emitter.Emit(ctx, job.Name, step, line)
		res.record(line.Severity)
	})
	if err != nil {
		res.LogErr = fmt.Errorf("failed to read log for step %q: %w", step.Name, err)
		b.logger.Error("Error exporting step log", "step", step.Name, "error", err)
	}
}

// Package exporter drives the export of one finished workflow run: it gathers the run, its jobs,
// commits and step logs, then hands them to the trace builder.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"

	"gha-exporter/internal/config"
	"gha-exporter/internal/logs"
	"gha-exporter/internal/models"
	"gha-exporter/internal/telemetry"
	"gha-exporter/internal/tracebuilder"
)

// ErrNothingToExport means every job of the run was excluded, typically because the run only
// contains the exporter job itself.
var ErrNothingToExport = errors.New("no data to export")

// GitHub is the subset of the GitHub client the exporter needs.
type GitHub interface {
	GetWorkflowRun(ctx context.Context, owner, repo string, runID int64) (models.WorkflowRun, error)
	ListJobs(ctx context.Context, owner, repo string, runID int64) ([]models.Job, error)
	CommitsIncluded(ctx context.Context, owner, repo string, run models.WorkflowRun, branch string) ([]string, error)
	DownloadRunLogs(ctx context.Context, owner, repo string, runID int64) ([]byte, error)
}

// Telemetry is a trace and log pipeline that is flushed once the run has been exported.
type Telemetry interface {
	Tracer() trace.Tracer
	Logger() otellog.Logger
	Shutdown(ctx context.Context) error
}

// TelemetryFactory creates the pipeline for one run, tagged with its resource attributes.
type TelemetryFactory func(ctx context.Context, attrs []attribute.KeyValue) (Telemetry, error)

// NewTelemetryFactory returns a factory exporting over OTLP/HTTP.
func NewTelemetryFactory(s telemetry.Settings) TelemetryFactory {
	return func(ctx context.Context, attrs []attribute.KeyValue) (Telemetry, error) {
		p, err := telemetry.Setup(ctx, s, attrs)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Request identifies the run to export.
type Request struct {
	Owner   string
	Repo    string
	RunID   int64
	RunName string
}

// Repository returns "owner/repo".
func (r Request) Repository() string {
	return r.Owner + "/" + r.Repo
}

// Exporter coordinates data collection and trace building for workflow runs.
type Exporter struct {
	github    GitHub
	telemetry TelemetryFactory
	cfg       config.ExportConfig
	logger    *slog.Logger
}

// New creates a new exporter
func New(gh GitHub, tf TelemetryFactory, cfg config.ExportConfig, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		github:    gh,
		telemetry: tf,
		cfg:       cfg,
		logger:    logger,
	}
}

// Export exports one run. The returned report lists the units that could not be exported;
// an error is returned only when nothing, or not everything, reached the telemetry pipeline.
func (e *Exporter) Export(ctx context.Context, req Request) (*tracebuilder.Report, error) {
	all, err := e.github.ListJobs(ctx, req.Owner, req.Repo, req.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]models.Job, 0, len(all))
	for _, job := range all {
		if e.cfg.IsExcluded(job.Name) {
			e.logger.Debug("Skipping excluded job", "job", job.Name)
			continue
		}
		jobs = append(jobs, job)
	}
	if len(jobs) == 0 {
		return nil, ErrNothingToExport
	}

	// Fetch the run and the step logs concurrently
	type result struct {
		run  *models.WorkflowRun
		logs logs.Source
		err  error
	}

	resultCh := make(chan result, 2)

	go func() {
		run, err := e.github.GetWorkflowRun(ctx, req.Owner, req.Repo, req.RunID)
		resultCh <- result{run: &run, err: err}
	}()

	go func() {
		resultCh <- result{logs: e.logSource(ctx, req)}
	}()

	var run models.WorkflowRun
	var source logs.Source
	for i := 0; i < 2; i++ {
		r := <-resultCh
		if r.err != nil {
			return nil, fmt.Errorf("failed to get workflow run: %w", r.err)
		}
		if r.run != nil {
			run = *r.run
		}
		if r.logs != nil {
			source = r.logs
		}
	}

	branch := jobs[0].HeadBranch
	commits, err := e.github.CommitsIncluded(ctx, req.Owner, req.Repo, run, branch)
	if err != nil {
		e.logger.Warn("Unable to determine commits included in run", "run_id", req.RunID, "error", err)
	}

	attrs := telemetry.ResourceAttributes(telemetry.RunResource{
		Repository:  req.Repository(),
		RunID:       req.RunID,
		HeadBranch:  branch,
		CommitCount: len(commits),
	})

	tel, err := e.telemetry(ctx, attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	runName := req.RunName
	if runName == "" {
		runName = run.Name
	}
	e.logger.Info("Processing workflow", "name", runName, "run_id", req.RunID, "jobs", len(jobs))

	builder := tracebuilder.NewBuilder(tel.Tracer(), tel.Logger(), tracebuilder.Options{
		RootSpanName: tracebuilder.RootSpanName(runName, req.RunID, e.cfg.IncludeIDInParentSpanName),
		Attributes:   attrs,
		Logs:         source,
		Logger:       e.logger,
	})
	report := builder.Build(ctx, run, jobs)

	for _, f := range report.Failures() {
		e.logger.Warn("Unit not fully exported", "level", f.Level, "unit", f.Unit, "error", f.Err)
	}

	if err := tel.Shutdown(ctx); err != nil {
		return report, fmt.Errorf("failed to flush telemetry: %w", err)
	}

	e.logger.Info("Exported workflow run", "run_id", req.RunID, "spans", report.Spans)
	return report, nil
}

// logSource returns nil when log parsing is off or the logs cannot be obtained, in which case
// only spans are exported.
func (e *Exporter) logSource(ctx context.Context, req Request) logs.Source {
	if !e.cfg.ParseLogs {
		return nil
	}
	if e.cfg.LogsDir != "" {
		return logs.NewDirSource(e.cfg.LogsDir)
	}

	data, err := e.github.DownloadRunLogs(ctx, req.Owner, req.Repo, req.RunID)
	if err != nil {
		e.logger.Error("Unable to download run logs, exporting spans only", "run_id", req.RunID, "error", err)
		return nil
	}

	archive, err := logs.NewArchiveSource(data)
	if err != nil {
		e.logger.Error("Unable to open run log archive, exporting spans only", "run_id", req.RunID, "error", err)
		return nil
	}
	e.logger.Debug("Opened run log archive", "entries", archive.Len())
	return archive
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gha-exporter/internal/db"
	"gha-exporter/internal/exporter"
	"gha-exporter/internal/metrics"
	"gha-exporter/internal/tracebuilder"
)

// Exporter exports one workflow run.
type Exporter interface {
	Export(ctx context.Context, req exporter.Request) (*tracebuilder.Report, error)
}

// Ledger remembers which run attempts were exported.
type Ledger interface {
	HasExport(ctx context.Context, repository string, runID int64, attempt int) (bool, error)
	RecordExport(ctx context.Context, e db.Export) (string, error)
	ListExports(ctx context.Context, limit int) ([]db.Export, error)
	PingContext(ctx context.Context) error
}

// Job is a queued export.
type Job struct {
	Request exporter.Request
	Attempt int
}

// Queue runs webhook-triggered exports one at a time in the background.
type Queue struct {
	jobs     chan Job
	exporter Exporter
	ledger   Ledger
	metrics  *metrics.Metrics
	timeout  time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue holding up to size pending jobs. ledger may be nil.
func NewQueue(exp Exporter, ledger Ledger, m *metrics.Metrics, size int, timeout time.Duration, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 1
	}
	return &Queue{
		jobs:     make(chan Job, size),
		exporter: exp,
		ledger:   ledger,
		metrics:  m,
		timeout:  timeout,
		logger:   logger,
	}
}

// Enqueue adds a job without blocking. It returns false when the queue is full.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

// Start processes jobs until Stop is called or ctx is done.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-q.jobs:
				q.process(ctx, job)
			}
		}
	}()
}

// Stop cancels the running export, if any, and waits for the worker to exit.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *Queue) process(ctx context.Context, job Job) {
	req := job.Request
	logger := q.logger.With("repository", req.Repository(), "run_id", req.RunID, "attempt", job.Attempt)

	if q.ledger != nil {
		done, err := q.ledger.HasExport(ctx, req.Repository(), req.RunID, job.Attempt)
		if err != nil {
			logger.Warn("Unable to check export ledger", "error", err)
		}
		if done {
			logger.Info("Run already exported, skipping")
			q.metrics.Skipped()
			return
		}
	}

	exportCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	start := time.Now()
	report, err := q.exporter.Export(exportCtx, req)
	if errors.Is(err, exporter.ErrNothingToExport) {
		logger.Info("No data to export")
		q.metrics.Skipped()
		return
	}
	q.metrics.Observe(report, err, time.Since(start))
	if err != nil {
		logger.Error("Export failed", "error", err)
	}

	if q.ledger == nil {
		return
	}
	entry := db.Export{
		Repository: req.Repository(),
		RunID:      req.RunID,
		RunAttempt: job.Attempt,
		Result:     metrics.Result(report, err),
	}
	if report != nil {
		entry.Spans = report.Spans
	}
	if err != nil {
		entry.Error = err.Error()
	}
	// Record even when the export context expired.
	if _, err := q.ledger.RecordExport(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("Unable to record export", "error", err)
	}
}

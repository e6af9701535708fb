// Package metrics exposes Prometheus counters describing the exporter's own work.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gha-exporter/internal/tracebuilder"
)

const namespace = "gha_exporter"

// Export results.
const (
	ResultSuccess = "success"
	// ResultPartial means the trace was sent but some units were left out.
	ResultPartial = "partial"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics holds the exporter collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	exports      *prometheus.CounterVec
	duration     prometheus.Histogram
	spans        prometheus.Counter
	logRecords   *prometheus.CounterVec
	skippedLines *prometheus.CounterVec
	unitFailures *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Workflow run exports by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Time spent exporting a workflow run",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		spans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_total",
			Help:      "Spans exported for workflows, jobs and steps",
		}),
		logRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_records_total",
			Help:      "Step log records exported by severity",
		}, []string{"severity"}),
		skippedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_lines_skipped_total",
			Help:      "Step log lines dropped as unparsable or blank",
		}, []string{"reason"}),
		unitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_failures_total",
			Help:      "Jobs, steps and step logs that could not be exported",
		}, []string{"level"}),
	}

	m.registry.MustRegister(
		m.exports,
		m.duration,
		m.spans,
		m.logRecords,
		m.skippedLines,
		m.unitFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records the outcome of one export. report may be nil when the export failed early.
func (m *Metrics) Observe(report *tracebuilder.Report, err error, elapsed time.Duration) {
	m.duration.Observe(elapsed.Seconds())
	m.exports.WithLabelValues(Result(report, err)).Inc()

	if report == nil {
		return
	}

	m.spans.Add(float64(report.Spans))
	for severity, n := range report.Records() {
		m.logRecords.WithLabelValues(severity.String()).Add(float64(n))
	}
	for reason, n := range report.Skipped() {
		m.skippedLines.WithLabelValues(reason).Add(float64(n))
	}
	for _, f := range report.Failures() {
		m.unitFailures.WithLabelValues(f.Level).Inc()
	}
}

// Result classifies an export outcome.
func Result(report *tracebuilder.Report, err error) string {
	switch {
	case report == nil:
		return ResultFailed
	case err != nil || len(report.Failures()) > 0:
		return ResultPartial
	default:
		return ResultSuccess
	}
}

// Skipped records a run that was deliberately not exported.
func (m *Metrics) Skipped() {
	m.exports.WithLabelValues(ResultSkipped).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

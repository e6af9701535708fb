// Package telemetry wires the OTLP/HTTP trace and log pipelines that receive an exported run.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "gha-exporter"

	// Source identifies this exporter on every span.
	Source = "github-exporter"
	// UnknownBranch is reported when no job carries a head branch.
	UnknownBranch = "unknown"
)

// Settings configures the OTLP destination.
type Settings struct {
	// Endpoint is a URL such as https://otlp.nr-data.net. A bare host:port is sent insecure.
	Endpoint string
	// LicenseKey is sent as the api-key header when set.
	LicenseKey string
}

// Providers owns the trace and log pipelines for one export.
type Providers struct {
	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
}

// Setup creates batching OTLP/HTTP trace and log pipelines tagged with attrs.
func Setup(ctx context.Context, s Settings, attrs []attribute.KeyValue) (*Providers, error) {
	ep, err := parseEndpoint(s.Endpoint)
	if err != nil {
		return nil, err
	}

	var headers map[string]string
	if s.LicenseKey != "" {
		headers = map[string]string{"api-key": s.LicenseKey}
	}

	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(ep.host),
		otlptracehttp.WithURLPath(ep.path + "/v1/traces"),
		otlptracehttp.WithHeaders(headers),
	}
	logOpts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(ep.host),
		otlploghttp.WithURLPath(ep.path + "/v1/logs"),
		otlploghttp.WithHeaders(headers),
	}
	if ep.insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		logOpts = append(logOpts, otlploghttp.WithInsecure())
	}

	spanExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	logExporter, err := otlploghttp.New(ctx, logOpts...)
	if err != nil {
		_ = spanExporter.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	return NewProviders(res,
		sdktrace.NewBatchSpanProcessor(spanExporter),
		sdklog.NewBatchProcessor(logExporter),
	), nil
}

// NewProviders assembles providers from ready-made processors. Tests pass synchronous ones.
func NewProviders(res *resource.Resource, spans sdktrace.SpanProcessor, logs sdklog.Processor) *Providers {
	return &Providers{
		tracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithResource(res),
			sdktrace.WithSpanProcessor(spans),
		),
		loggerProvider: sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(logs),
		),
	}
}

// Tracer returns the tracer used for workflow, job and step spans.
func (p *Providers) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer(instrumentationName)
}

// Logger returns the logger used for step log records.
func (p *Providers) Logger() otellog.Logger {
	return p.loggerProvider.Logger(instrumentationName)
}

// Shutdown flushes and stops both pipelines.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.tracerProvider.Shutdown(ctx),
		p.loggerProvider.Shutdown(ctx),
	)
}

// RunResource describes the run-wide attributes attached to every span.
type RunResource struct {
	Repository  string
	RunID       int64
	HeadBranch  string
	CommitCount int
}

// ResourceAttributes returns the attribute set shared by the resource and every span.
// commit_count is only present when at least one commit was found.
func ResourceAttributes(r RunResource) []attribute.KeyValue {
	branch := r.HeadBranch
	if branch == "" {
		branch = UnknownBranch
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", r.Repository),
		attribute.Int64("workflow_run_id", r.RunID),
		attribute.String("github.source", Source),
		attribute.String("github.resource.type", "span"),
		attribute.String("head_branch", branch),
	}
	if r.CommitCount > 0 {
		attrs = append(attrs, attribute.Int("commit_count", r.CommitCount))
	}
	return attrs
}

type endpoint struct {
	host     string
	path     string
	insecure bool
}

func parseEndpoint(raw string) (endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return endpoint{}, errors.New("otlp endpoint is empty")
	}

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return endpoint{host: raw, insecure: true}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, fmt.Errorf("invalid otlp endpoint: %w", err)
	}
	return endpoint{
		host:     u.Host,
		path:     strings.TrimSuffix(u.Path, "/"),
		insecure: u.Scheme != "https",
	}, nil
}

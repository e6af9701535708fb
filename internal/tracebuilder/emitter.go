package tracebuilder

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"

	"gha-exporter/internal/logparse"
	"gha-exporter/internal/models"
)

// Log record attribute keys carrying the line's own timestamp.
const (
	AttrLogTimestamp = "log.timestamp"
	AttrLogTime      = "log.time"
)

// Emitter turns classified log lines into OpenTelemetry log records.
type Emitter struct {
	logger otellog.Logger
}

// NewEmitter creates an Emitter writing to logger.
func NewEmitter(logger otellog.Logger) *Emitter {
	return &Emitter{logger: logger}
}

// Emit writes one record. ctx must carry the step span so the record is attributed to it.
func (e *Emitter) Emit(ctx context.Context, job string, step models.Step, line logparse.Line) {
	var rec otellog.Record
	rec.SetTimestamp(line.Time)
	rec.SetSeverity(severityNumber(line.Severity))
	rec.SetSeverityText(line.Severity.String())
	rec.SetBody(otellog.StringValue(line.Message))
	rec.AddAttributes(
		otellog.Int64(AttrLogTimestamp, line.UnixMilli()),
		otellog.String(AttrLogTime, line.RawTimestamp),
		otellog.String("github.job.name", job),
		otellog.String("github.step.name", step.Name),
		otellog.Int64("github.step.number", step.Number),
	)

	e.logger.Emit(ctx, rec)
}

func severityNumber(s logparse.Severity) otellog.Severity {
	switch s {
	case logparse.SeverityError:
		return otellog.SeverityError
	case logparse.SeverityWarning:
		return otellog.SeverityWarn
	case logparse.SeverityNotice:
		// Sits between INFO and WARN.
		return otellog.SeverityInfo4
	case logparse.SeverityDebug:
		return otellog.SeverityDebug
	default:
		return otellog.SeverityInfo
	}
}

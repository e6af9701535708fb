package tracebuilder

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FailedConclusionDescription is used for a failed step that logged no error line.
const FailedConclusionDescription = "step concluded with failure"

// JobFailureDescription is the job span status description for a failure caused by step.
func JobFailureDescription(step string) string {
	return "STEP: " + step + " failed"
}

// statusPropagator marks a step span and its job span as failed. It never touches the
// workflow span and never sets OK, so an error status cannot be downgraded.
type statusPropagator struct {
	step    trace.Span
	job     trace.Span
	name    string
	errored bool
}

func newStatusPropagator(step, job trace.Span, name string) *statusPropagator {
	return &statusPropagator{step: step, job: job, name: name}
}

// fail sets both spans to ERROR. Repeated calls overwrite the step description.
func (p *statusPropagator) fail(description string) {
	p.step.SetStatus(codes.Error, description)
	p.job.SetStatus(codes.Error, JobFailureDescription(p.name))
	p.errored = true
}

func (p *statusPropagator) failed() bool {
	return p.errored
}

// Package timeline computes the effective start and end instants of a job's steps.
package timeline

import (
	"errors"
	"fmt"
	"time"

	"gha-exporter/internal/models"
)

var (
	// ErrMissingInstant means a step that ran has no start or completion time.
	ErrMissingInstant = errors.New("missing step timestamp")
	// ErrNegativeInterval means a step completed before it started.
	ErrNegativeInterval = errors.New("step completed before it started")
)

// Interval is the resolved span boundary of a step. Inferred intervals are synthesized from the
// preceding step because the step never ran.
type Interval struct {
	Start    time.Time
	End      time.Time
	Inferred bool
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Validate reports whether the interval can be used to open and close a span.
func (iv Interval) Validate() error {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return ErrMissingInstant
	}
	if iv.End.Before(iv.Start) {
		return fmt.Errorf("%w: start %s, end %s", ErrNegativeInterval,
			iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	return nil
}

// Resolve returns one interval per step of job.OrderedSteps(), in the same order.
//
// Steps that were skipped or cancelled collapse to a zero-length interval at the previous step's
// resolved end, or at the job's start for the first step. All other steps use their own timestamps.
func Resolve(job models.Job) []Interval {
	steps := job.OrderedSteps()
	intervals := make([]Interval, len(steps))

	prev := job.StartedAt
	for i, step := range steps {
		if step.Conclusion.NotExecuted() {
			intervals[i] = Interval{Start: prev, End: prev, Inferred: true}
		} else {
			intervals[i] = Interval{Start: step.StartedAt, End: step.CompletedAt}
		}
		prev = intervals[i].End
	}

	return intervals
}

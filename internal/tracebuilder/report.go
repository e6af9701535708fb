package tracebuilder

import (
	"fmt"

	"gha-exporter/internal/logparse"
)

// Failure levels reported by Report.Failures.
const (
	LevelJob  = "job"
	LevelStep = "step"
	LevelLog  = "log"
)

// Report collects the outcome of every job and step processed for one workflow run.
type Report struct {
	RunID int64
	Spans int
	Jobs  []JobResult
}

// JobResult is the outcome of processing a single job. Err is set when no job span was created.
type JobResult struct {
	ID    int64
	Name  string
	Spans int
	Err   error
	Steps []StepResult
}

// StepResult is the outcome of processing a single step.
type StepResult struct {
	Number   int64
	Name     string
	Inferred bool
	Records  map[logparse.Severity]int
	Skipped  map[string]int
	// LogErr is a non-fatal problem reading the step log. The step span is still exported.
	LogErr error
	// Err is set when no step span was created.
	Err error
}

func (r *StepResult) record(s logparse.Severity) {
	if r.Records == nil {
		r.Records = make(map[logparse.Severity]int)
	}
	r.Records[s]++
}

func (r *StepResult) skip(reason string) {
	if r.Skipped == nil {
		r.Skipped = make(map[string]int)
	}
	r.Skipped[reason]++
}

// UnitFailure describes one job, step or step log that could not be fully exported.
type UnitFailure struct {
	Level string
	Unit  string
	Err   error
}

func (f UnitFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Level, f.Unit, f.Err)
}

func (f UnitFailure) Unwrap() error {
	return f.Err
}

// Failures lists every unit error in processing order.
func (r *Report) Failures() []UnitFailure {
	var failures []UnitFailure
	for _, job := range r.Jobs {
		if job.Err != nil {
			failures = append(failures, UnitFailure{Level: LevelJob, Unit: job.Name, Err: job.Err})
			continue
		}
		for _, step := range job.Steps {
			unit := job.Name + "/" + step.Name
			if step.Err != nil {
				failures = append(failures, UnitFailure{Level: LevelStep, Unit: unit, Err: step.Err})
			}
			if step.LogErr != nil {
				failures = append(failures, UnitFailure{Level: LevelLog, Unit: unit, Err: step.LogErr})
			}
		}
	}
	return failures
}

// Records sums emitted log records by severity.
func (r *Report) Records() map[logparse.Severity]int {
	total := make(map[logparse.Severity]int)
	for _, job := range r.Jobs {
		for _, step := range job.Steps {
			for s, n := range step.Records {
				total[s] += n
			}
		}
	}
	return total
}

// Skipped sums skipped log lines by reason.
func (r *Report) Skipped() map[string]int {
	total := make(map[string]int)
	for _, job := range r.Jobs {
		for _, step := range job.Steps {
			for reason, n := range step.Skipped {
				total[reason] += n
			}
		}
	}
	return total
}

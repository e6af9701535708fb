// Package models defines the workflow run, job and step records shared across the exporter.
package models

import (
	"sort"
	"time"
)

// Conclusion is the terminal outcome of a job or step as reported by GitHub.
type Conclusion string

const (
	ConclusionSuccess        Conclusion = "success"
	ConclusionFailure        Conclusion = "failure"
	ConclusionSkipped        Conclusion = "skipped"
	ConclusionCancelled      Conclusion = "cancelled"
	ConclusionNeutral        Conclusion = "neutral"
	ConclusionTimedOut       Conclusion = "timed_out"
	ConclusionActionRequired Conclusion = "action_required"
)

// NotExecuted reports whether the unit never ran, which makes its own timestamps meaningless.
func (c Conclusion) NotExecuted() bool {
	return c == ConclusionSkipped || c == ConclusionCancelled
}

// WorkflowRun represents one execution of a workflow
type WorkflowRun struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	RunNumber  int        `json:"run_number"`
	RunAttempt int        `json:"run_attempt"`
	Event      string     `json:"event"`
	Status     string     `json:"status"`
	Conclusion Conclusion `json:"conclusion"`
	HeadSHA    string     `json:"head_sha"`
	HeadBranch string     `json:"head_branch"`
	HTMLURL    string     `json:"html_url"`
	Actor      string     `json:"actor"`
	StartedAt  time.Time  `json:"run_started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Job represents a workflow job and its steps
type Job struct {
	ID          int64      `json:"id"`
	RunID       int64      `json:"run_id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  Conclusion `json:"conclusion"`
	HeadSHA     string     `json:"head_sha"`
	HeadBranch  string     `json:"head_branch"`
	RunnerName  string     `json:"runner_name"`
	Labels      []string   `json:"labels"`
	HTMLURL     string     `json:"html_url"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Steps       []Step     `json:"steps"`
}

// Step represents a single step within a job. Number is 1-based.
type Step struct {
	Number      int64      `json:"number"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  Conclusion `json:"conclusion"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
}

// OrderedSteps returns the job's steps sorted by number. Steps sharing a number keep their received order.
func (j *Job) OrderedSteps() []Step {
	steps := make([]Step, len(j.Steps))
	copy(steps, j.Steps)
	sort.SliceStable(steps, func(a, b int) bool {
		return steps[a].Number < steps[b].Number
	})
	return steps
}

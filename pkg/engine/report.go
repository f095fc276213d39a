package engine

import (
	"sync"
	"time"
)

// Summary counts outcomes by status.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Changed   int `json:"changed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// RunReport aggregates task outcomes. It is safe for concurrent use;
// accessors return copies.
type RunReport struct {
	runID string

	mu         sync.RWMutex
	outcomes   map[string]TaskOutcome
	order      []string
	startedAt  time.Time
	finishedAt time.Time
	cancelled  bool
}

// NewRunReport creates an empty report for runID.
func NewRunReport(runID string) *RunReport {
	return &RunReport{
		runID:     runID,
		outcomes:  make(map[string]TaskOutcome),
		startedAt: time.Now(),
	}
}

// RunID returns the id of the run.
func (r *RunReport) RunID() string {
	return r.runID
}

// Record stores the outcome of a task. Recording the same task twice keeps
// its original position and replaces the outcome.
func (r *RunReport) Record(o TaskOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.outcomes[o.TaskID]; !exists {
		r.order = append(r.order, o.TaskID)
	}
	r.outcomes[o.TaskID] = o
}

// Outcome returns the outcome recorded for a task.
func (r *RunReport) Outcome(taskID string) (TaskOutcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.outcomes[taskID]
	return o, ok
}

// Outcomes returns every outcome in the order it was recorded.
func (r *RunReport) Outcomes() []TaskOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TaskOutcome, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.outcomes[id])
	}
	return out
}

// Failures returns the failed outcomes in record order.
func (r *RunReport) Failures() []TaskOutcome {
	var failed []TaskOutcome
	for _, o := range r.Outcomes() {
		if o.Status == OutcomeFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// Summary counts the recorded outcomes.
func (r *RunReport) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Summary{Total: len(r.outcomes)}
	for _, o := range r.outcomes {
		switch o.Status {
		case OutcomeSucceeded:
			s.Succeeded++
			if o.Changed {
				s.Changed++
			}
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
	}
	return s
}

// Success reports whether no task failed.
func (r *RunReport) Success() bool {
	return r.Summary().Failed == 0
}

// Exit codes returned by ExitCode.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// ExitCode maps the report to a process exit code.
func (r *RunReport) ExitCode() int {
	switch r.Status() {
	case RunStatusFailed:
		return ExitFailure
	case RunStatusCancelled:
		return ExitInterrupted
	default:
		return ExitSuccess
	}
}

// Status returns the overall run status.
func (r *RunReport) Status() RunStatus {
	r.mu.RLock()
	cancelled := r.cancelled
	r.mu.RUnlock()
	switch {
	case !r.Success():
		return RunStatusFailed
	case cancelled:
		return RunStatusCancelled
	default:
		return RunStatusSucceeded
	}
}

// Duration returns how long the run took, or has taken so far.
func (r *RunReport) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.finishedAt.IsZero() {
		return time.Since(r.startedAt)
	}
	return r.finishedAt.Sub(r.startedAt)
}

func (r *RunReport) finish(cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishedAt = time.Now()
	r.cancelled = cancelled
}

package engine

import "fmt"

// OutcomeStatus is the final status of a single task.
type OutcomeStatus string

const (
	// OutcomeSucceeded indicates the task ran and reached its target state.
	OutcomeSucceeded OutcomeStatus = "succeeded"

	// OutcomeSkipped indicates the task did not run, or its run_if command
	// asked for it to be skipped.
	OutcomeSkipped OutcomeStatus = "skipped"

	// OutcomeFailed indicates the task ran and failed.
	OutcomeFailed OutcomeStatus = "failed"
)

// Validate checks if the outcome status is valid.
func (s OutcomeStatus) Validate() error {
	switch s {
	case OutcomeSucceeded, OutcomeSkipped, OutcomeFailed:
		return nil
	default:
		return fmt.Errorf("invalid outcome status: %s", s)
	}
}

// RunStatus represents the overall status of a run.
type RunStatus string

const (
	// RunStatusSucceeded indicates no task failed.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates at least one task failed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was interrupted before every task
	// could run.
	RunStatusCancelled RunStatus = "cancelled"
)

// Skip reasons recorded on skipped outcomes.
const (
	ReasonUpstreamFailure = "upstream bootstrap failure"
	ReasonCancelled       = "cancelled"
	ReasonRunIf           = "run_if command requested skip"
)

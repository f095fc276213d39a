package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/up/pkg/merge"
	"github.com/openfroyo/up/pkg/ops/command"
	"github.com/openfroyo/up/pkg/ops/git"
	"github.com/openfroyo/up/pkg/ops/link"
)

// ErrorClass represents the classification of an error.
type ErrorClass string

const (
	// ErrorClassConfig indicates invalid task definitions or options. Config
	// errors are raised before any task runs.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassTransient indicates a failure that may go away on its own,
	// such as an unreachable git remote. Tasks are never retried
	// automatically; the class only informs the report.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates that the machine is in a state the task
	// refuses to overwrite: an occupied link destination or a diverged branch.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a failure that will repeat until the
	// task or the machine changes.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassCancelled indicates the run was interrupted.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// Common error codes.
const (
	ErrCodeConfig               = "CONFIG_ERROR"
	ErrCodeUnknownTaskReference = "UNKNOWN_TASK_REFERENCE"
	ErrCodeLinkConflict         = "LINK_CONFLICT"
	ErrCodeGitSync              = "GIT_SYNC_ERROR"
	ErrCodeMergeTypeMismatch    = "MERGE_TYPE_MISMATCH"
	ErrCodeTaskExecution        = "TASK_EXECUTION_ERROR"
	ErrCodeCancelled            = "CANCELLED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Task is the id of the task that failed, if applicable.
	Task string `json:"task,omitempty"`

	// Operation is the operation kind of the task.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Task != "" && e.Operation != "":
		msg += fmt.Sprintf(" (task=%s, operation=%s)", e.Task, e.Operation)
	case e.Task != "":
		msg += fmt.Sprintf(" (task=%s)", e.Task)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConfigError creates a new config error.
func NewConfigError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConfig,
		Code:    ErrCodeConfig,
		Message: message,
		Err:     err,
	}
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// NewCancelledError creates a new cancellation error.
func NewCancelledError(err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassCancelled,
		Code:    ErrCodeCancelled,
		Message: "cancelled",
		Err:     err,
	}
}

// WithTask adds task context to an error.
func (e *EngineError) WithTask(taskID string) *EngineError {
	e.Task = taskID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsConfig returns true if the error is classified as a config error.
func IsConfig(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConfig
	}
	return false
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsCancelled returns true if the error is classified as a cancellation.
func IsCancelled(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassCancelled
	}
	return false
}

// ErrorCode returns the code of a classified error, or "" for other errors.
func ErrorCode(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Classify converts an operation error into an EngineError for the given
// task. Errors that are already classified only gain the task context.
func Classify(err error, taskID, operation string) *EngineError {
	if err == nil {
		return nil
	}

	var (
		engineErr   *EngineError
		conflictErr *link.ConflictError
		syncErr     *git.SyncError
		mismatchErr *merge.TypeMismatchError
		execErr     *command.ExecutionError
		classified  *EngineError
	)

	switch {
	case errors.As(err, &engineErr):
		classified = engineErr
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		classified = NewCancelledError(err)
	case errors.As(err, &conflictErr):
		classified = NewConflictError("link conflict", err).
			WithCode(ErrCodeLinkConflict).
			WithDetail("paths", conflictErr.Paths)
	case errors.As(err, &syncErr):
		switch syncErr.Kind {
		case git.KindNetwork:
			classified = NewTransientError("git sync failed", err)
		case git.KindNonFastForward:
			classified = NewConflictError("git sync failed", err)
		default:
			classified = NewPermanentError("git sync failed", err)
		}
		classified.WithCode(ErrCodeGitSync).WithDetail("kind", string(syncErr.Kind))
	case errors.As(err, &mismatchErr):
		classified = NewPermanentError("merge type mismatch", err).WithCode(ErrCodeMergeTypeMismatch)
	case errors.As(err, &execErr):
		classified = NewPermanentError("command failed", err).WithCode(ErrCodeTaskExecution)
	default:
		classified = NewPermanentError("task failed", err).WithCode(ErrCodeTaskExecution)
	}

	return classified.WithTask(taskID).WithOperation(operation)
}

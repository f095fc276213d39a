// Package engine selects and runs the tasks that converge a machine.
//
// # Overview
//
// A run goes through three steps:
//
//  1. Select - Filter task definitions into a TaskSet (Select)
//  2. Schedule - Run bootstrap tasks serially, then the rest on a worker pool (Scheduler)
//  3. Report - Collect one TaskOutcome per selected task (RunReport)
//
// # Operations
//
// Every task carries exactly one Operation:
//
//   - RunCommand: runs an external command; exit 204 means "nothing changed"
//   - Link: keeps a tree of symbolic links pointing into a source tree
//   - GitSync: clones or fast-forwards repositories, optionally pruning branches
//   - DefaultsWrite: merges structured values into a preference store
//
// The Dispatcher maps each operation onto its implementation in pkg/ops.
// A task may also carry a run_if command which decides whether the
// operation runs at all.
//
// # Bootstrap Phase
//
// Bootstrap tasks run one at a time in definition order before anything
// else. A failing bootstrap task halts the run: every task that has not
// started is recorded as skipped with ReasonUpstreamFailure. With
// RunOptions.KeepGoing the failure is recorded and the run continues.
//
// # Output
//
// When a single task runs, or when RunOptions.Console is true, task output
// goes straight to the console. Otherwise each task's stdout and stderr are
// captured and written as one block once the task finishes, so concurrent
// tasks never interleave.
//
// # Error Handling
//
// Task failures are converted to EngineError by Classify and recorded in
// the report; Scheduler.Run never returns them. Classes:
//
//   - Config: invalid definitions or options, raised before any task runs
//   - Transient: failures that may go away, such as network errors
//   - Conflict: the machine is in a state the task refuses to overwrite
//   - Permanent: failures that repeat until something changes
//   - Cancelled: the run was interrupted
//
// # Thread Safety
//
// RunReport is safe for concurrent use. A Scheduler may run several task
// sets, but not concurrently with the same output writers.
package engine

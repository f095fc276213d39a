package engine

import (
	"time"

	"github.com/openfroyo/up/pkg/ops/defaults"
	"github.com/openfroyo/up/pkg/ops/git"
	"github.com/openfroyo/up/pkg/ops/link"
)

// Operation is the work a task performs. The set of operations is closed;
// the Dispatcher handles each one.
type Operation interface {
	// Kind is a short name for logs, metrics and reports.
	Kind() string
	isOperation()
}

// RunCommand runs an external command.
type RunCommand struct {
	Run []string
}

// Link synchronizes a tree of symbolic links.
type Link struct {
	Options link.Options
}

// GitSync clones or updates repositories in order.
type GitSync struct {
	Repos []git.Options
}

// GenerateGit writes task files listing existing checkouts.
type GenerateGit struct {
	Targets []git.GenerateOptions
}

// DefaultsWrite writes preference values in order.
type DefaultsWrite struct {
	Writes []defaults.Write
}

// Kind implements Operation.
func (RunCommand) Kind() string { return "run" }

// Kind implements Operation.
func (Link) Kind() string { return "link" }

// Kind implements Operation.
func (GitSync) Kind() string { return "git" }

// Kind implements Operation.
func (GenerateGit) Kind() string { return "generate_git" }

// Kind implements Operation.
func (DefaultsWrite) Kind() string { return "defaults" }

func (RunCommand) isOperation()    {}
func (Link) isOperation()          {}
func (GitSync) isOperation()       {}
func (GenerateGit) isOperation()   {}
func (DefaultsWrite) isOperation() {}

// TaskDefinition is one named unit of work.
type TaskDefinition struct {
	// ID uniquely identifies the task.
	ID string `json:"id"`

	// Description is shown by list.
	Description string `json:"description,omitempty"`

	// Bootstrap marks the task for the serial first phase.
	Bootstrap bool `json:"bootstrap,omitempty"`

	// AutoRun controls whether the task runs when no include list is given.
	// Nil means true.
	AutoRun *bool `json:"auto_run,omitempty"`

	// RunIf is a command gating the operation: exit 0 runs it, exit 204
	// skips the task, anything else fails it.
	RunIf []string `json:"run_if,omitempty"`

	// Operation is the work to perform.
	Operation Operation `json:"-"`

	// Dir is the working directory for commands.
	Dir string `json:"dir,omitempty"`

	// Env is the complete environment for commands.
	Env map[string]string `json:"-"`
}

// AutoRuns reports whether the task is selected without being named.
func (t TaskDefinition) AutoRuns() bool {
	return t.AutoRun == nil || *t.AutoRun
}

// OperationKind returns the kind of the task's operation.
func (t TaskDefinition) OperationKind() string {
	if t.Operation == nil {
		return ""
	}
	return t.Operation.Kind()
}

// TaskSet is the selected tasks split by phase.
type TaskSet struct {
	// Bootstrap runs serially, in order, before everything else.
	Bootstrap []TaskDefinition
	// Parallel runs on the worker pool.
	Parallel []TaskDefinition
}

// Len returns the number of selected tasks.
func (ts TaskSet) Len() int {
	return len(ts.Bootstrap) + len(ts.Parallel)
}

// TaskOutcome is the recorded result of one task.
type TaskOutcome struct {
	TaskID    string        `json:"task_id"`
	Operation string        `json:"operation"`
	Bootstrap bool          `json:"bootstrap,omitempty"`
	Status    OutcomeStatus `json:"status"`

	// Changed is true when the task modified the machine.
	Changed bool `json:"changed"`

	// Reason explains a skip.
	Reason string `json:"reason,omitempty"`

	// Err is set for failed outcomes.
	Err *EngineError `json:"error,omitempty"`

	// Output is the task's captured output, empty when output was passed
	// through to the console.
	Output []byte `json:"-"`

	StartedAt time.Time     `json:"started_at,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// RunOptions controls selection and execution of a run.
type RunOptions struct {
	// KeepGoing continues past failed bootstrap tasks.
	KeepGoing bool

	// Bootstrap runs bootstrap tasks first, bypassing Include and Exclude.
	Bootstrap bool

	// Include, when non-empty, limits the run to these task ids.
	Include []string

	// Exclude removes task ids from the run. It wins over Include.
	Exclude []string

	// Concurrency bounds the parallel phase. Zero means the number of CPUs.
	Concurrency int

	// Console forces live output on or off. Nil passes output through only
	// when a single task runs.
	Console *bool
}

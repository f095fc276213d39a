package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/openfroyo/up/pkg/ops/command"
	"github.com/openfroyo/up/pkg/ops/defaults"
	"github.com/openfroyo/up/pkg/ops/git"
	"github.com/openfroyo/up/pkg/ops/link"
	"github.com/openfroyo/up/pkg/telemetry"
)

// TaskIO is where a task writes its output.
type TaskIO struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Dispatcher runs the operation of a task.
type Dispatcher struct {
	gitRunner git.Runner
	store     defaults.Store
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithGitRunner sets the runner used for git operations.
func WithGitRunner(r git.Runner) DispatcherOption {
	return func(d *Dispatcher) {
		d.gitRunner = r
	}
}

// WithDefaultsStore sets the store used by defaults operations.
func WithDefaultsStore(s defaults.Store) DispatcherOption {
	return func(d *Dispatcher) {
		d.store = s
	}
}

// NewDispatcher creates a dispatcher. Git runs through the git binary unless
// a runner is given; defaults operations fail without a store.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{gitRunner: &git.ExecRunner{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs the task's operation and reports whether it changed anything.
func (d *Dispatcher) Execute(ctx context.Context, task TaskDefinition, out TaskIO, log *telemetry.Logger) (bool, error) {
	switch op := task.Operation.(type) {
	case RunCommand:
		result, err := command.Run(ctx, command.Command{
			Args:   op.Run,
			Dir:    task.Dir,
			Env:    task.Env,
			Stdout: out.Stdout,
			Stderr: out.Stderr,
		}, log)
		return result.Changed, err

	case Link:
		result, err := link.Sync(ctx, op.Options, log)
		return result.Changed, err

	case GitSync:
		return git.NewSyncerWithRunner(d.gitRunner, log).SyncAll(ctx, op.Repos)

	case GenerateGit:
		return git.NewSyncerWithRunner(d.gitRunner, log).GenerateAll(ctx, op.Targets)

	case DefaultsWrite:
		if d.store == nil {
			return false, NewConfigError("no defaults store configured", nil)
		}
		return defaults.NewWriter(d.store, log).ApplyAll(ctx, op.Writes)

	default:
		return false, NewConfigError(fmt.Sprintf("unsupported operation %T", op), nil)
	}
}

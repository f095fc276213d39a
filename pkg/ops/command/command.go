// Package command runs external commands for tasks and maps their exit
// codes onto task results.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/openfroyo/up/pkg/telemetry"
)

// ExitNoChange is the exit code a command uses to say it had nothing to do.
// For a run_if command it means the task should be skipped.
const ExitNoChange = 204

// Command is a single external command invocation.
type Command struct {
	// Args is the program followed by its arguments. No shell is involved.
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is the complete environment of the command. Nil inherits the
	// environment of this process.
	Env map[string]string
	// Stdout and Stderr receive the command's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of a command that exited with 0 or ExitNoChange.
type Result struct {
	// Changed is false when the command exited with ExitNoChange.
	Changed  bool
	Duration time.Duration
}

// Run executes c and waits for it to exit. A cancelled context stops the
// command from starting but never kills one that is already running.
func Run(ctx context.Context, c Command, log *telemetry.Logger) (Result, error) {
	if log == nil {
		log = telemetry.Nop()
	}
	if len(c.Args) == 0 {
		return Result{}, fmt.Errorf("command is required")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(context.WithoutCancel(ctx), c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = EnvList(c.Env)
	}
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	log.Debugf("running %s", strings.Join(c.Args, " "))
	start := time.Now()
	err := cmd.Run()
	result := Result{Duration: time.Since(start)}

	if err == nil {
		result.Changed = true
		return result, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return result, &ExecutionError{Args: c.Args, ExitCode: -1, Err: err}
	}
	switch code := exitErr.ExitCode(); code {
	case ExitNoChange:
		log.Debugf("%s reported nothing to do", c.Args[0])
		return result, nil
	case -1:
		return result, &ExecutionError{Args: c.Args, ExitCode: code, Signaled: true, Err: err}
	default:
		return result, &ExecutionError{Args: c.Args, ExitCode: code, Err: err}
	}
}

// Gate runs a run_if command. It returns true when the guarded work should
// run and false when the command asked for it to be skipped.
func Gate(ctx context.Context, c Command, log *telemetry.Logger) (bool, error) {
	result, err := Run(ctx, c, log)
	if err != nil {
		return false, err
	}
	return result.Changed, nil
}

// EnvList renders an environment map as sorted KEY=VALUE pairs.
func EnvList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

package git

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
)

// Runner runs git subcommands in a directory and returns trimmed stdout.
// A failed invocation returns a *CommandError carrying stderr.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs the git binary found on PATH. Credential helpers and SSH
// configuration of the host apply as they would on the command line.
type ExecRunner struct {
	// Binary is the git executable. Empty means "git".
	Binary string
	// Env is appended to the process environment.
	Env []string
}

// Run implements Runner. The command is not killed when ctx is cancelled;
// callers check the context between steps instead.
func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	binary := r.Binary
	if binary == "" {
		binary = "git"
	}

	cmd := exec.CommandContext(context.WithoutCancel(ctx), binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	cmd.Env = append(cmd.Env, r.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &CommandError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

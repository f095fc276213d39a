package git

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a failed git synchronization.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindAuth           ErrorKind = "auth"
	KindNonFastForward ErrorKind = "non-fast-forward"
	KindMissingRepo    ErrorKind = "missing-repo"
	KindMissingBranch  ErrorKind = "missing-branch"
	KindCommand        ErrorKind = "command"
)

// SyncError is returned by Sync. Refs are left as they were before the
// failing step.
type SyncError struct {
	Kind    ErrorKind
	Path    string
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("git sync %s: %s", e.Path, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// CommandError is a git invocation that exited unsuccessfully.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

var stderrKinds = []struct {
	kind     ErrorKind
	patterns []string
}{
	{KindAuth, []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"permission denied (publickey",
		"terminal prompts disabled",
		"access denied",
		"invalid username or password",
	}},
	{KindMissingRepo, []string{
		"does not appear to be a git repository",
		"repository not found",
		"' does not exist",
		"not a git repository",
		"no such remote",
	}},
	{KindNetwork, []string{
		"could not resolve host",
		"unable to access",
		"connection refused",
		"connection timed out",
		"operation timed out",
		"network is unreachable",
		"could not read from remote repository",
		"the remote end hung up",
	}},
}

// classify maps git's stderr onto an error kind.
func classify(stderr string) ErrorKind {
	lower := strings.ToLower(stderr)
	for _, group := range stderrKinds {
		for _, pattern := range group.patterns {
			if strings.Contains(lower, pattern) {
				return group.kind
			}
		}
	}
	return KindCommand
}

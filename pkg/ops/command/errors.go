package command

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ExecutionError reports a command that could not be started, was killed by
// a signal, or exited with a code other than 0 or ExitNoChange.
type ExecutionError struct {
	Args     []string
	ExitCode int
	Signaled bool
	Err      error
}

func (e *ExecutionError) Error() string {
	cmd := strings.Join(e.Args, " ")
	switch {
	case e.Signaled:
		return fmt.Sprintf("command %q was terminated by a signal", cmd)
	case e.ExitCode >= 0:
		return fmt.Sprintf("command %q exited with code %d", cmd, e.ExitCode)
	case errors.Is(e.Err, fs.ErrPermission) && len(e.Args) > 0:
		return fmt.Sprintf("failed to execute %q: %v (try `chmod +x %s`)", cmd, e.Err, e.Args[0])
	default:
		return fmt.Sprintf("failed to execute %q: %v", cmd, e.Err)
	}
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

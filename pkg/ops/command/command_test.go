package command

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func sh(script string) []string {
	return []string{"sh", "-c", script}
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name        string
		script      string
		wantChanged bool
		wantCode    int
		wantErr     bool
	}{
		{"success", "exit 0", true, 0, false},
		{"no change", "exit 204", false, 0, false},
		{"failure", "exit 3", false, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(context.Background(), Command{Args: sh(tt.script)}, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if result.Changed != tt.wantChanged {
				t.Errorf("Expected changed=%v, got %v", tt.wantChanged, result.Changed)
			}
			if tt.wantErr {
				var execErr *ExecutionError
				if !errors.As(err, &execErr) {
					t.Fatalf("Expected ExecutionError, got %T", err)
				}
				if execErr.ExitCode != tt.wantCode {
					t.Errorf("Expected exit code %d, got %d", tt.wantCode, execErr.ExitCode)
				}
			}
		})
	}
}

func TestRunEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer

	_, err := Run(context.Background(), Command{
		Args:   sh(`printf "%s:%s" "$GREETING" "$(pwd)"`),
		Dir:    dir,
		Env:    map[string]string{"GREETING": "hello", "PATH": "/usr/bin:/bin"},
		Stdout: &stdout,
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := stdout.String()
	if !strings.HasPrefix(got, "hello:") {
		t.Errorf("Expected environment to be passed, got %q", got)
	}
	if !strings.HasSuffix(got, dir) {
		t.Errorf("Expected working directory %s, got %q", dir, got)
	}
}

func TestRunMissingProgram(t *testing.T) {
	_, err := Run(context.Background(), Command{Args: []string{"/nonexistent/program"}}, nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Expected ExecutionError, got %v", err)
	}
	if execErr.ExitCode != -1 {
		t.Errorf("Expected exit code -1 for a program that never started, got %d", execErr.ExitCode)
	}
}

func TestRunEmpty(t *testing.T) {
	if _, err := Run(context.Background(), Command{}, nil); err == nil {
		t.Error("Expected error for empty command")
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout bytes.Buffer
	_, err := Run(ctx, Command{Args: sh("echo ran"), Stdout: &stdout}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if stdout.Len() != 0 {
		t.Error("Expected command not to run after cancellation")
	}
}

func TestGate(t *testing.T) {
	run, err := Gate(context.Background(), Command{Args: sh("exit 0")}, nil)
	if err != nil || !run {
		t.Errorf("Expected gate to pass, got %v, %v", run, err)
	}

	run, err = Gate(context.Background(), Command{Args: sh("exit 204")}, nil)
	if err != nil || run {
		t.Errorf("Expected gate to skip, got %v, %v", run, err)
	}

	if _, err = Gate(context.Background(), Command{Args: sh("exit 1")}, nil); err == nil {
		t.Error("Expected gate failure for exit 1")
	}
}

func TestEnvList(t *testing.T) {
	got := EnvList(map[string]string{"B": "2", "A": "1"})
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=2" {
		t.Errorf("Expected sorted pairs, got %v", got)
	}
}

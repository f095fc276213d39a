package commands

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/openfroyo/up/pkg/telemetry"
)

func newTestApp() (*app, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &app{
		v:       viper.New(),
		version: "test",
		tel:     telemetry.NewNop(),
		stdout:  &stdout,
		stderr:  &stderr,
	}, &stdout, &stderr
}

func execute(t *testing.T, a *app, args ...string) error {
	t.Helper()
	root := newRootCommand(a, "test", "none", "today")
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root.ExecuteContext(context.Background())
}

func writeTestConfig(t *testing.T, tasks map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "tasks"), 0o755); err != nil {
		t.Fatalf("Failed to create tasks directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "up.yaml"), []byte("bootstrap_tasks: [first]\n"), 0o644); err != nil {
		t.Fatalf("Failed to write up.yaml: %v", err)
	}
	for name, content := range tasks {
		if err := os.WriteFile(filepath.Join(dir, "tasks", name), []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write task: %v", err)
		}
	}
	return filepath.Join(dir, "up.yaml")
}

func TestRunCommand(t *testing.T) {
	path := writeTestConfig(t, map[string]string{
		"first.yaml":  `run_cmd: ["sh", "-c", "echo first"]`,
		"second.yaml": `run_cmd: ["sh", "-c", "exit 204"]`,
		"broken.yaml": `run_cmd: ["sh", "-c", "exit 3"]`,
	})

	a, stdout, stderr := newTestApp()
	if err := execute(t, a, "--config", path, "run", "--bootstrap", "--keep-going"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if a.exitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", a.exitCode)
	}
	if !strings.Contains(stdout.String(), "first") {
		t.Errorf("Expected task output on stdout, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "3 tasks, 2 succeeded (1 changed), 0 skipped, 1 failed") {
		t.Errorf("Expected summary on stderr, got %q", stderr.String())
	}
}

func TestListCommand(t *testing.T) {
	path := writeTestConfig(t, map[string]string{
		"first.yaml":  "description: The first task\nrun_cmd: [\"true\"]\n",
		"hidden.yaml": "auto_run: false\nrun_cmd: [\"true\"]\n",
	})

	a, stdout, _ := newTestApp()
	if err := execute(t, a, "--config", path, "list", "--bootstrap"); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "The first task") {
		t.Errorf("Expected description in output, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected auto_run false task to be left out, got %q", out)
	}
}

func TestDefaultsCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "defaults.db")

	a, _, _ := newTestApp()
	if err := execute(t, a, "--defaults-db", db, "defaults", "write", "com.example", "apps", `["a", "b"]`); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	a, _, _ = newTestApp()
	if err := execute(t, a, "--defaults-db", db, "defaults", "write", "com.example", "apps", `["...", "c"]`); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if a.exitCode != 0 {
		t.Fatalf("Expected exit code 0, got %d", a.exitCode)
	}

	a, stdout, _ := newTestApp()
	if err := execute(t, a, "--defaults-db", db, "defaults", "read", "com.example", "apps"); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got := stdout.String(); got != "- a\n- b\n- c\n" {
		t.Errorf("Expected merged list, got %q", got)
	}

	a, _, _ = newTestApp()
	if err := execute(t, a, "--defaults-db", db, "defaults", "read", "com.example", "missing"); err == nil {
		t.Error("Expected error for missing key")
	}

	a, _, _ = newTestApp()
	if err := execute(t, a, "--defaults-db", db, "defaults", "delete", "com.example", "apps"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	a, _, _ = newTestApp()
	if err := execute(t, a, "--defaults-db", db, "defaults", "read", "com.example", "apps"); err == nil {
		t.Error("Expected deleted key to be missing")
	}
	a, _, _ = newTestApp()
	if err := execute(t, a, "--defaults-db", db, "defaults", "delete", "com.example", "apps"); err == nil {
		t.Error("Expected error deleting a missing key")
	}
}

func TestLinkCommandConflict(t *testing.T) {
	from, to := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(from, ".zshrc"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(to, ".zshrc"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, _, stderr := newTestApp()
	if err := execute(t, a, "link", "--from", from, "--to", to); err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if a.exitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", a.exitCode)
	}
	if !strings.Contains(stderr.String(), "link conflict") {
		t.Errorf("Expected conflict in report, got %q", stderr.String())
	}
}

func TestGenerateGitCommand(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found on PATH")
	}

	root := t.TempDir()
	repo := filepath.Join(root, "code", "repo")
	if err := os.MkdirAll(repo, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{
		{"init", "-q"},
		{"remote", "add", "origin", "https://example.com/repo.git"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}

	path := filepath.Join(root, "tasks", "repos.yaml")
	a, _, _ := newTestApp()
	if err := execute(t, a, "generate", "git", "--path", path, "--search-paths", filepath.Join(root, "code")); err != nil {
		t.Fatalf("generate git failed: %v", err)
	}
	if a.exitCode != 0 {
		t.Fatalf("Expected exit code 0, got %d", a.exitCode)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected task file to be written: %v", err)
	}
	for _, want := range []string{"run_lib: git", "git_url: https://example.com/repo.git", "path: " + repo} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected task file to contain %q, got:\n%s", want, data)
		}
	}
}

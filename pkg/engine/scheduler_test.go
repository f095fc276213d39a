package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/openfroyo/up/pkg/merge"
	"github.com/openfroyo/up/pkg/ops/defaults"
	"github.com/openfroyo/up/pkg/telemetry"
)

// lockedBuffer is a bytes.Buffer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// panicStore panics on every read.
type panicStore struct{}

func (panicStore) Read(context.Context, string, string) (merge.Value, bool, error) {
	panic("store exploded")
}

func (panicStore) Write(context.Context, string, string, merge.Value) error {
	return nil
}

func shTask(id, script string) TaskDefinition {
	return TaskDefinition{
		ID:        id,
		Operation: RunCommand{Run: []string{"sh", "-c", script}},
	}
}

func bootstrapTask(id, script string) TaskDefinition {
	task := shTask(id, script)
	task.Bootstrap = true
	return task
}

func newTestScheduler(out *lockedBuffer, opts ...DispatcherOption) *Scheduler {
	return NewScheduler(NewDispatcher(opts...), WithOutput(out, out))
}

func boolPtr(b bool) *bool {
	return &b
}

func mustOutcome(t *testing.T, report *RunReport, id string) TaskOutcome {
	t.Helper()
	o, ok := report.Outcome(id)
	if !ok {
		t.Fatalf("Expected outcome for task %s", id)
	}
	return o
}

func TestScheduler_BootstrapRunsBeforeParallel(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "log")

	set := TaskSet{
		Bootstrap: []TaskDefinition{
			bootstrapTask("A", "echo a >> "+log),
			bootstrapTask("B", "echo b >> "+log),
		},
		Parallel: []TaskDefinition{
			shTask("C", "grep -q b "+log),
			shTask("D", "grep -q b "+log),
		},
	}

	out := &lockedBuffer{}
	report := newTestScheduler(out).Run(context.Background(), "run-1", set, RunOptions{Concurrency: 2})

	if !report.Success() {
		t.Fatalf("Expected successful run, got failures %+v", report.Failures())
	}

	outcomes := report.Outcomes()
	if len(outcomes) != 4 {
		t.Fatalf("Expected 4 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].TaskID != "A" || outcomes[1].TaskID != "B" {
		t.Errorf("Expected A then B first, got %s then %s", outcomes[0].TaskID, outcomes[1].TaskID)
	}

	data, err := os.ReadFile(log)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("Expected bootstrap tasks in order, got %q", string(data))
	}

	summary := report.Summary()
	if summary.Succeeded != 4 || summary.Changed != 4 {
		t.Errorf("Expected 4 succeeded and changed, got %+v", summary)
	}
	if report.ExitCode() != ExitSuccess {
		t.Errorf("Expected exit code %d, got %d", ExitSuccess, report.ExitCode())
	}
}

func TestScheduler_BootstrapFailureHalts(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")

	set := TaskSet{
		Bootstrap: []TaskDefinition{
			bootstrapTask("A", "exit 1"),
			bootstrapTask("B", "touch "+marker),
		},
		Parallel: []TaskDefinition{
			shTask("C", "touch "+marker),
		},
	}

	out := &lockedBuffer{}
	report := newTestScheduler(out).Run(context.Background(), "run-1", set, RunOptions{})

	a := mustOutcome(t, report, "A")
	if a.Status != OutcomeFailed {
		t.Fatalf("Expected A failed, got %s", a.Status)
	}
	if a.Err == nil || a.Err.Code != ErrCodeTaskExecution {
		t.Errorf("Expected %s, got %+v", ErrCodeTaskExecution, a.Err)
	}

	for _, id := range []string{"B", "C"} {
		o := mustOutcome(t, report, id)
		if o.Status != OutcomeSkipped {
			t.Errorf("Expected %s skipped, got %s", id, o.Status)
		}
		if o.Reason != ReasonUpstreamFailure {
			t.Errorf("Expected reason %q for %s, got %q", ReasonUpstreamFailure, id, o.Reason)
		}
	}

	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("Expected no task to run after the bootstrap failure")
	}
	if report.Status() != RunStatusFailed {
		t.Errorf("Expected status %s, got %s", RunStatusFailed, report.Status())
	}
	if report.ExitCode() != ExitFailure {
		t.Errorf("Expected exit code %d, got %d", ExitFailure, report.ExitCode())
	}
}

func TestScheduler_KeepGoing(t *testing.T) {
	set := TaskSet{
		Bootstrap: []TaskDefinition{
			bootstrapTask("A", "exit 1"),
			bootstrapTask("B", "true"),
		},
		Parallel: []TaskDefinition{
			shTask("C", "exit 2"),
			shTask("D", "true"),
		},
	}

	out := &lockedBuffer{}
	report := newTestScheduler(out).Run(context.Background(), "run-1", set, RunOptions{KeepGoing: true})

	expected := map[string]OutcomeStatus{
		"A": OutcomeFailed,
		"B": OutcomeSucceeded,
		"C": OutcomeFailed,
		"D": OutcomeSucceeded,
	}
	for id, status := range expected {
		if got := mustOutcome(t, report, id).Status; got != status {
			t.Errorf("Expected %s %s, got %s", id, status, got)
		}
	}

	summary := report.Summary()
	if summary.Failed != 2 {
		t.Errorf("Expected 2 failures, got %d", summary.Failed)
	}
	if report.ExitCode() != ExitFailure {
		t.Errorf("Expected exit code %d, got %d", ExitFailure, report.ExitCode())
	}
}

func TestScheduler_NoChangeExitCode(t *testing.T) {
	set := TaskSet{Parallel: []TaskDefinition{shTask("A", "exit 204")}}

	out := &lockedBuffer{}
	report := newTestScheduler(out).Run(context.Background(), "run-1", set, RunOptions{})

	a := mustOutcome(t, report, "A")
	if a.Status != OutcomeSucceeded {
		t.Fatalf("Expected succeeded, got %s", a.Status)
	}
	if a.Changed {
		t.Error("Expected changed=false for exit 204")
	}
}

func TestScheduler_RunIf(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		runIf   string
		status  OutcomeStatus
		ran     bool
		changed bool
	}{
		{name: "run", runIf: "exit 0", status: OutcomeSucceeded, ran: true, changed: true},
		{name: "skip", runIf: "exit 204", status: OutcomeSkipped},
		{name: "fail", runIf: "exit 3", status: OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker := filepath.Join(dir, tt.name)
			task := shTask("A", "touch "+marker)
			task.RunIf = []string{"sh", "-c", tt.runIf}

			out := &lockedBuffer{}
			report := newTestScheduler(out).Run(context.Background(), "run-1",
				TaskSet{Parallel: []TaskDefinition{task}}, RunOptions{})

			a := mustOutcome(t, report, "A")
			if a.Status != tt.status {
				t.Errorf("Expected %s, got %s", tt.status, a.Status)
			}
			if a.Changed != tt.changed {
				t.Errorf("Expected changed=%t, got %t", tt.changed, a.Changed)
			}
			if tt.status == OutcomeSkipped && a.Reason != ReasonRunIf {
				t.Errorf("Expected reason %q, got %q", ReasonRunIf, a.Reason)
			}

			_, err := os.Stat(marker)
			if ran := err == nil; ran != tt.ran {
				t.Errorf("Expected ran=%t, got %t", tt.ran, ran)
			}
		})
	}
}

func TestScheduler_CapturesOutputOfConcurrentTasks(t *testing.T) {
	set := TaskSet{
		Parallel: []TaskDefinition{
			shTask("C", "echo hello-c; echo oops-c >&2"),
			shTask("D", "echo hello-d"),
		},
	}

	out := &lockedBuffer{}
	report := newTestScheduler(out).Run(context.Background(), "run-1", set, RunOptions{Concurrency: 2})

	c := mustOutcome(t, report, "C")
	if !strings.Contains(string(c.Output), "hello-c") || !strings.Contains(string(c.Output), "oops-c") {
		t.Errorf("Expected captured stdout and stderr, got %q", string(c.Output))
	}

	console := out.String()
	for _, want := range []string{"==> C", "==> D", "hello-c", "hello-d"} {
		if !strings.Contains(console, want) {
			t.Errorf("Expected console output to contain %q, got %q", want, console)
		}
	}

	// Each block is written whole.
	cHeader := strings.Index(console, "==> C")
	cBody := strings.Index(console, "hello-c")
	dHeader := strings.Index(console, "==> D")
	if cHeader > cBody || (dHeader > cHeader && dHeader < cBody) {
		t.Errorf("Expected output of C grouped under its header, got %q", console)
	}
}

func TestScheduler_SingleTaskStreamsOutput(t *testing.T) {
	set := TaskSet{Parallel: []TaskDefinition{shTask("A", "echo streamed")}}

	out := &lockedBuffer{}
	report := newTestScheduler(out).Run(context.Background(), "run-1", set, RunOptions{})

	if !strings.Contains(out.String(), "streamed") {
		t.Errorf("Expected live output, got %q", out.String())
	}
	if strings.Contains(out.String(), "==>") {
		t.Errorf("Expected no header for live output, got %q", out.String())
	}
	if a := mustOutcome(t, report, "A"); len(a.Output) != 0 {
		t.Errorf("Expected nothing captured, got %q", string(a.Output))
	}
}

func TestScheduler_ConsoleOverride(t *testing.T) {
	set := TaskSet{Parallel: []TaskDefinition{shTask("A", "echo captured")}}

	out := &lockedBuffer{}
	report := newTestScheduler(out).Run(context.Background(), "run-1", set, RunOptions{Console: boolPtr(false)})

	a := mustOutcome(t, report, "A")
	if !strings.Contains(string(a.Output), "captured") {
		t.Errorf("Expected captured output, got %q", string(a.Output))
	}
	if !strings.Contains(out.String(), "==> A") {
		t.Errorf("Expected flushed block, got %q", out.String())
	}
}

func TestScheduler_ConcurrencyLimit(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, "lock")
	script := "mkdir " + lock + " || exit 1; sleep 0.05; rmdir " + lock

	set := TaskSet{
		Parallel: []TaskDefinition{
			shTask("A", script),
			shTask("B", script),
			shTask("C", script),
		},
	}

	out := &lockedBuffer{}
	report := newTestScheduler(out).Run(context.Background(), "run-1", set, RunOptions{Concurrency: 1})

	if !report.Success() {
		t.Errorf("Expected tasks to run one at a time, got failures %+v", report.Failures())
	}
}

func TestScheduler_CancelledBeforeStart(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")

	set := TaskSet{
		Bootstrap: []TaskDefinition{bootstrapTask("A", "touch "+marker)},
		Parallel:  []TaskDefinition{shTask("B", "touch "+marker)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := &lockedBuffer{}
	report := newTestScheduler(out).Run(ctx, "run-1", set, RunOptions{})

	for _, id := range []string{"A", "B"} {
		o := mustOutcome(t, report, id)
		if o.Status != OutcomeSkipped || o.Reason != ReasonCancelled {
			t.Errorf("Expected %s skipped as cancelled, got %s %q", id, o.Status, o.Reason)
		}
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("Expected no task to run")
	}
	if report.Status() != RunStatusCancelled {
		t.Errorf("Expected status %s, got %s", RunStatusCancelled, report.Status())
	}
	if report.ExitCode() != ExitInterrupted {
		t.Errorf("Expected exit code %d, got %d", ExitInterrupted, report.ExitCode())
	}
}

func TestScheduler_RecoversPanics(t *testing.T) {
	task := TaskDefinition{
		ID: "prefs",
		Operation: DefaultsWrite{Writes: []defaults.Write{
			{Domain: "com.example", Key: "k", Value: merge.Int(1)},
		}},
	}

	out := &lockedBuffer{}
	s := newTestScheduler(out, WithDefaultsStore(panicStore{}))
	report := s.Run(context.Background(), "run-1", TaskSet{Parallel: []TaskDefinition{task, shTask("other", "true")}}, RunOptions{})

	o := mustOutcome(t, report, "prefs")
	if o.Status != OutcomeFailed {
		t.Fatalf("Expected failed, got %s", o.Status)
	}
	if o.Err.Code != ErrCodeInternal {
		t.Errorf("Expected %s, got %s", ErrCodeInternal, o.Err.Code)
	}
	if got := mustOutcome(t, report, "other").Status; got != OutcomeSucceeded {
		t.Errorf("Expected other task to succeed, got %s", got)
	}
}

func TestScheduler_DefaultsWithoutStore(t *testing.T) {
	task := TaskDefinition{
		ID: "prefs",
		Operation: DefaultsWrite{Writes: []defaults.Write{
			{Domain: "com.example", Key: "k", Value: merge.Int(1)},
		}},
	}

	out := &lockedBuffer{}
	report := newTestScheduler(out).Run(context.Background(), "run-1", TaskSet{Parallel: []TaskDefinition{task}}, RunOptions{})

	o := mustOutcome(t, report, "prefs")
	if o.Status != OutcomeFailed || o.Err.Class != ErrorClassConfig {
		t.Errorf("Expected config failure, got %s %+v", o.Status, o.Err)
	}
}

func TestScheduler_DefaultsWrite(t *testing.T) {
	store := defaults.NewMemoryStore()
	task := TaskDefinition{
		ID: "prefs",
		Operation: DefaultsWrite{Writes: []defaults.Write{
			{Domain: "com.example", Key: "k", Value: merge.Int(1)},
		}},
	}
	set := TaskSet{Parallel: []TaskDefinition{task}}

	out := &lockedBuffer{}
	s := newTestScheduler(out, WithDefaultsStore(store))

	first := mustOutcome(t, s.Run(context.Background(), "run-1", set, RunOptions{}), "prefs")
	if first.Status != OutcomeSucceeded || !first.Changed {
		t.Errorf("Expected changed success on first run, got %s changed=%t", first.Status, first.Changed)
	}

	second := mustOutcome(t, s.Run(context.Background(), "run-2", set, RunOptions{}), "prefs")
	if second.Status != OutcomeSucceeded || second.Changed {
		t.Errorf("Expected unchanged success on second run, got %s changed=%t", second.Status, second.Changed)
	}
}

func TestScheduler_LogsTraceID(t *testing.T) {
	var logs lockedBuffer
	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{Enabled: true, Exporter: "none", SamplingRate: 1}, "up", "test")
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	tel := telemetry.NewNop()
	tel.Tracer = tracer
	tel.Logger = telemetry.NewLoggerTo(&logs, telemetry.LoggingConfig{Level: "info", Format: "json"})

	var out lockedBuffer
	s := NewScheduler(NewDispatcher(), WithTelemetry(tel), WithOutput(&out, &out))
	report := s.Run(context.Background(), "run-trace", TaskSet{Parallel: []TaskDefinition{shTask("a", "true")}}, RunOptions{})
	if !report.Success() {
		t.Fatalf("Expected run to succeed, got %+v", report.Outcomes())
	}

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	if len(lines) == 0 {
		t.Fatal("Expected log lines")
	}
	for _, line := range lines {
		if !strings.Contains(line, `"trace_id":"`) {
			t.Errorf("Expected trace_id in log line, got %s", line)
		}
	}
}

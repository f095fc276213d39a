package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})

	log.NewComponentLogger("scheduler").WithRunID("r1").WithTaskID("brew").Debugf("starting %d", 3)

	out := buf.String()
	for _, want := range []string{`"component":"scheduler"`, `"run_id":"r1"`, `"task":"brew"`, `"message":"starting 3"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in log line, got %s", want, out)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "json"})

	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %s", buf.String())
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("Expected warn line, got %s", buf.String())
	}
}

func TestLoggerTimeFormatSetOnce(t *testing.T) {
	NewLoggerTo(&bytes.Buffer{}, LoggingConfig{Level: "info", Format: "json", TimeFormat: "unix"})
	first := zerolog.TimeFieldFormat

	NewLoggerTo(&bytes.Buffer{}, LoggingConfig{Level: "info", Format: "json", TimeFormat: "unixms"})
	if zerolog.TimeFieldFormat != first {
		t.Errorf("Expected time field format to stay %q, got %q", first, zerolog.TimeFieldFormat)
	}
}

func TestShutdownClosesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "up.log")
	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Output = path

	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	tel.Logger.NewComponentLogger("scheduler").Info("run started")

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if tel.Logger.file != nil {
		t.Error("Expected log file to be closed")
	}
	if err := tel.Logger.Close(); err != nil {
		t.Errorf("Expected second close to be a no-op, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "run started") {
		t.Errorf("Expected log line in file, got %s", data)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDisabledMetricsAreNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordRunStarted()
	m.TaskStarted()
	m.RecordTaskExecution("link", "succeeded", true, time.Second)
	m.RecordError("LINK_CONFLICT")

	if m.Registry() != nil {
		t.Error("Expected nil registry for disabled metrics")
	}
	if err := m.WriteTextfile(); err != nil {
		t.Errorf("Expected no error from disabled textfile export, got %v", err)
	}
}

func TestMetricsTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "up.prom")
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "up", TextfilePath: path})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordRunStarted()
	m.TaskStarted()
	m.RecordTaskExecution("git", "succeeded", true, 2*time.Second)
	m.RecordSkippedTask("link")
	m.RecordError("GIT_SYNC_ERROR")
	m.RecordRunCompleted("failed", 3*time.Second)

	if got := testutil.ToFloat64(m.tasksChanged.WithLabelValues("git")); got != 1 {
		t.Errorf("Expected 1 changed git task, got %v", got)
	}
	if got := testutil.ToFloat64(m.activeTasks); got != 0 {
		t.Errorf("Expected 0 active tasks, got %v", got)
	}

	if err := m.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read textfile: %v", err)
	}
	for _, want := range []string{
		`up_tasks_executed_total{operation="git",status="succeeded"} 1`,
		`up_tasks_executed_total{operation="link",status="skipped"} 1`,
		`up_errors_by_code_total{code="GIT_SYNC_ERROR"} 1`,
		`up_runs_started_total 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected %q in textfile output", want)
		}
	}
}

func TestNopTelemetry(t *testing.T) {
	tel := NewNop()

	ctx, span := tel.Tracer.StartRunSpan(context.Background(), "r1", 2)
	_, taskSpan := tel.Tracer.StartTaskSpan(ctx, "brew", "run", false)
	RecordSuccess(taskSpan)
	taskSpan.End()
	span.End()

	if id := TraceID(ctx); id != "" {
		t.Errorf("Expected no trace id from noop tracer, got %s", id)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestTracerRecordsSpans(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{Enabled: true, Exporter: "none", SamplingRate: 1}, "up", "test")
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.StartRunSpan(context.Background(), "r1", 1)
	defer span.End()

	if TraceID(ctx) == "" {
		t.Error("Expected a valid trace id from a sampling tracer")
	}
}

package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for runs and tasks. A Metrics created
// with collection disabled accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Task metrics
	tasksExecuted *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	tasksChanged  *prometheus.CounterVec

	// Error metrics
	errorsByCode *prometheus.CounterVec

	activeTasks prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		tasksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_executed_total",
				Help:      "Total number of tasks executed",
			},
			[]string{"operation", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of task execution in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		tasksChanged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_changed_total",
				Help:      "Total number of tasks that modified the system",
			},
			[]string{"operation"},
		),

		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of task errors by code",
			},
			[]string{"code"},
		),

		activeTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_tasks",
				Help:      "Current number of running tasks",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.tasksExecuted,
		m.taskDuration,
		m.tasksChanged,
		m.errorsByCode,
		m.activeTasks,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Task Metrics

// TaskStarted marks a task as running.
func (m *Metrics) TaskStarted() {
	if m.activeTasks == nil {
		return
	}
	m.activeTasks.Inc()
}

// RecordTaskExecution records the final outcome of a task.
func (m *Metrics) RecordTaskExecution(operation, status string, changed bool, duration time.Duration) {
	if m.tasksExecuted == nil {
		return
	}
	m.activeTasks.Dec()
	m.tasksExecuted.WithLabelValues(operation, status).Inc()
	m.taskDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if changed {
		m.tasksChanged.WithLabelValues(operation).Inc()
	}
}

// RecordSkippedTask records a task that never started.
func (m *Metrics) RecordSkippedTask(operation string) {
	if m.tasksExecuted == nil {
		return
	}
	m.tasksExecuted.WithLabelValues(operation, "skipped").Inc()
}

// RecordError records a task error by code.
func (m *Metrics) RecordError(code string) {
	if m.errorsByCode == nil {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// Registry returns the registry backing these metrics, or nil when
// collection is disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all collected metrics to the configured textfile
// path. It does nothing when collection or the export is disabled.
func (m *Metrics) WriteTextfile() error {
	if m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.config.TextfilePath, m.registry)
}

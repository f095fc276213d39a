package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/openfroyo/up/pkg/ops/command"
	"github.com/openfroyo/up/pkg/telemetry"
)

// Scheduler runs a TaskSet: bootstrap tasks one at a time on the calling
// goroutine, then the remaining tasks on a bounded worker pool.
type Scheduler struct {
	dispatcher *Dispatcher
	tel        *telemetry.Telemetry
	log        *telemetry.Logger
	console    *console
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTelemetry sets the logger, tracer and metrics used for the run.
func WithTelemetry(tel *telemetry.Telemetry) SchedulerOption {
	return func(s *Scheduler) {
		if tel != nil {
			s.tel = tel
		}
	}
}

// WithOutput sets where task output is written. Defaults to os.Stdout and
// os.Stderr.
func WithOutput(stdout, stderr io.Writer) SchedulerOption {
	return func(s *Scheduler) {
		s.console = &console{stdout: stdout, stderr: stderr}
	}
}

// NewScheduler creates a scheduler dispatching to d.
func NewScheduler(d *Dispatcher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		dispatcher: d,
		tel:        telemetry.NewNop(),
		console:    &console{stdout: os.Stdout, stderr: os.Stderr},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.tel.Logger.NewComponentLogger("scheduler")
	return s
}

// Run executes set and returns the report. Task failures are recorded in
// the report, never returned. A cancelled ctx stops new tasks from starting;
// they are recorded as skipped.
func (s *Scheduler) Run(ctx context.Context, runID string, set TaskSet, opts RunOptions) *RunReport {
	report := NewRunReport(runID)
	log := s.log.WithRunID(runID)

	ctx, span := s.tel.Tracer.StartRunSpan(ctx, runID, set.Len())
	defer span.End()
	log = withTraceID(ctx, log)
	s.tel.Metrics.RecordRunStarted()

	live := liveOutput(opts.Console, set.Len())
	log.Infof("running %d bootstrap and %d parallel tasks", len(set.Bootstrap), len(set.Parallel))

	halted := false
	for _, task := range set.Bootstrap {
		switch {
		case halted:
			s.skip(report, task, true, ReasonUpstreamFailure)
		case ctx.Err() != nil:
			s.skip(report, task, true, ReasonCancelled)
		default:
			outcome := s.execute(ctx, runID, task, true, live)
			report.Record(outcome)
			if outcome.Status == OutcomeFailed && !opts.KeepGoing {
				log.Errorf("bootstrap task %s failed, skipping remaining tasks", task.ID)
				halted = true
			}
		}
	}

	if halted {
		for _, task := range set.Parallel {
			s.skip(report, task, false, ReasonUpstreamFailure)
		}
	} else {
		s.runParallel(ctx, runID, set.Parallel, opts.Concurrency, live, report)
	}

	report.finish(ctx.Err() != nil)
	status := report.Status()
	s.tel.Metrics.RecordRunCompleted(string(status), report.Duration())
	span.SetAttributes(telemetry.AttrStatus.String(string(status)))
	if status == RunStatusSucceeded {
		telemetry.RecordSuccess(span)
	} else {
		telemetry.RecordError(span, fmt.Errorf("run %s", status))
	}

	summary := report.Summary()
	log.Infof("run %s: %d succeeded (%d changed), %d skipped, %d failed in %s",
		status, summary.Succeeded, summary.Changed, summary.Skipped, summary.Failed,
		report.Duration().Round(time.Millisecond))
	return report
}

// runParallel executes tasks on a pool of at most concurrency workers.
func (s *Scheduler) runParallel(ctx context.Context, runID string, tasks []TaskDefinition, concurrency int, live bool, report *RunReport) {
	if len(tasks) == 0 {
		return
	}

	workerCount := concurrency
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if len(tasks) < workerCount {
		workerCount = len(tasks)
	}

	workQueue := make(chan TaskDefinition, len(tasks))
	for _, task := range tasks {
		workQueue <- task
	}
	close(workQueue)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range workQueue {
				if ctx.Err() != nil {
					s.skip(report, task, false, ReasonCancelled)
					continue
				}
				report.Record(s.execute(ctx, runID, task, false, live))
			}
		}()
	}
	wg.Wait()
}

// execute runs one task and builds its outcome.
func (s *Scheduler) execute(ctx context.Context, runID string, task TaskDefinition, bootstrap, live bool) TaskOutcome {
	kind := task.OperationKind()
	log := s.tel.Logger.WithRunID(runID).WithTaskID(task.ID)

	ctx, span := s.tel.Tracer.StartTaskSpan(ctx, task.ID, kind, bootstrap)
	defer span.End()
	log = withTraceID(ctx, log)
	s.tel.Metrics.TaskStarted()

	var buf *bytes.Buffer
	out := s.console.live()
	if !live {
		buf = new(bytes.Buffer)
		out = capture(buf)
	}

	log.Debugf("starting %s task", kind)
	outcome := TaskOutcome{
		TaskID:    task.ID,
		Operation: kind,
		Bootstrap: bootstrap,
		StartedAt: time.Now(),
	}
	changed, skipped, err := s.invoke(ctx, task, out, log)
	outcome.Duration = time.Since(outcome.StartedAt)

	switch {
	case err != nil:
		outcome.Status = OutcomeFailed
		outcome.Err = Classify(err, task.ID, kind)
		outcome.Changed = changed
		s.tel.Metrics.RecordError(outcome.Err.Code)
		span.SetAttributes(telemetry.AttrErrorCode.String(outcome.Err.Code))
		telemetry.RecordError(span, outcome.Err)
		log.WithError(err).Errorf("task failed after %s", outcome.Duration.Round(time.Millisecond))
	case skipped:
		outcome.Status = OutcomeSkipped
		outcome.Reason = ReasonRunIf
		telemetry.RecordSuccess(span)
		log.Infof("task skipped: %s", outcome.Reason)
	default:
		outcome.Status = OutcomeSucceeded
		outcome.Changed = changed
		telemetry.RecordSuccess(span)
		log.Infof("task succeeded (changed=%t) in %s", changed, outcome.Duration.Round(time.Millisecond))
	}
	span.SetAttributes(
		telemetry.AttrStatus.String(string(outcome.Status)),
		telemetry.AttrChanged.Bool(outcome.Changed),
	)
	s.tel.Metrics.RecordTaskExecution(kind, string(outcome.Status), outcome.Changed, outcome.Duration)

	if buf != nil {
		outcome.Output = buf.Bytes()
		s.console.flush(outcome)
	}
	return outcome
}

// invoke runs the run_if gate and the operation. A panic in the operation
// becomes an error.
func (s *Scheduler) invoke(ctx context.Context, task TaskDefinition, out TaskIO, log *telemetry.Logger) (changed, skipped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPermanentError(fmt.Sprintf("panic: %v", r), nil).WithCode(ErrCodeInternal)
		}
	}()

	if len(task.RunIf) > 0 {
		run, err := command.Gate(ctx, command.Command{
			Args:   task.RunIf,
			Dir:    task.Dir,
			Env:    task.Env,
			Stdout: out.Stdout,
			Stderr: out.Stderr,
		}, log)
		if err != nil {
			return false, false, err
		}
		if !run {
			return false, true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, false, err
		}
	}

	changed, err = s.dispatcher.Execute(ctx, task, out, log)
	return changed, false, err
}

// withTraceID tags log lines with the trace of ctx so they can be matched
// to exported spans.
func withTraceID(ctx context.Context, log *telemetry.Logger) *telemetry.Logger {
	if id := telemetry.TraceID(ctx); id != "" {
		return log.WithField("trace_id", id)
	}
	return log
}

// skip records a task that never started.
func (s *Scheduler) skip(report *RunReport, task TaskDefinition, bootstrap bool, reason string) {
	s.tel.Metrics.RecordSkippedTask(task.OperationKind())
	report.Record(TaskOutcome{
		TaskID:    task.ID,
		Operation: task.OperationKind(),
		Bootstrap: bootstrap,
		Status:    OutcomeSkipped,
		Reason:    reason,
	})
}

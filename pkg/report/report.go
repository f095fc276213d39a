// Package report renders run reports and task lists for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/openfroyo/up/pkg/engine"
)

// Render writes one row per task outcome followed by a summary line.
func Render(w io.Writer, r *engine.RunReport) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Task", "Operation", "Status", "Changed", "Duration", "Detail"})
	for _, o := range r.Outcomes() {
		tw.AppendRow(table.Row{
			o.TaskID,
			o.Operation,
			o.Status,
			changedMark(o),
			formatDuration(o),
			detail(o),
		})
	}
	tw.Render()

	fmt.Fprintln(w, Summary(r))
}

// Summary returns a one-line description of the run.
func Summary(r *engine.RunReport) string {
	s := r.Summary()
	return fmt.Sprintf("%s: %d tasks, %d succeeded (%d changed), %d skipped, %d failed in %s",
		r.Status(), s.Total, s.Succeeded, s.Changed, s.Skipped, s.Failed,
		r.Duration().Round(time.Millisecond))
}

// RenderJSON writes the report as a JSON document.
func RenderJSON(w io.Writer, r *engine.RunReport) error {
	doc := struct {
		RunID    string               `json:"run_id"`
		Status   engine.RunStatus     `json:"status"`
		ExitCode int                  `json:"exit_code"`
		Duration string               `json:"duration"`
		Summary  engine.Summary       `json:"summary"`
		Tasks    []engine.TaskOutcome `json:"tasks"`
	}{
		RunID:    r.RunID(),
		Status:   r.Status(),
		ExitCode: r.ExitCode(),
		Duration: r.Duration().String(),
		Summary:  r.Summary(),
		Tasks:    r.Outcomes(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// RenderTaskList writes one row per task definition.
func RenderTaskList(w io.Writer, defs []engine.TaskDefinition) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Task", "Operation", "Bootstrap", "Auto Run", "Description"})
	for _, def := range defs {
		tw.AppendRow(table.Row{
			def.ID,
			def.OperationKind(),
			yesNo(def.Bootstrap),
			yesNo(def.AutoRuns()),
			def.Description,
		})
	}
	tw.Render()
}

func changedMark(o engine.TaskOutcome) string {
	if o.Changed {
		return "yes"
	}
	return ""
}

func formatDuration(o engine.TaskOutcome) string {
	if o.StartedAt.IsZero() {
		return "-"
	}
	return o.Duration.Round(time.Millisecond).String()
}

func detail(o engine.TaskOutcome) string {
	switch o.Status {
	case engine.OutcomeSkipped:
		return o.Reason
	case engine.OutcomeFailed:
		if o.Err == nil {
			return ""
		}
		msg := o.Err.Message
		if o.Err.Err != nil {
			msg += ": " + o.Err.Err.Error()
		}
		msg = strings.TrimSpace(msg)
		switch {
		case engine.IsTransient(o.Err):
			msg += " (transient, retry may succeed)"
		case engine.IsConflict(o.Err):
			msg += " (conflict, nothing was changed)"
		}
		return msg
	default:
		return ""
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

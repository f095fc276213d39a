package engine

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	succeededStyle = headerStyle.Foreground(lipgloss.Color("2"))
	skippedStyle   = headerStyle.Foreground(lipgloss.Color("8"))
	failedStyle    = headerStyle.Foreground(lipgloss.Color("1"))
)

// liveOutput decides whether task output goes straight to the console.
func liveOutput(console *bool, executing int) bool {
	if console != nil {
		return *console
	}
	return executing == 1
}

// console serializes writes of captured task output.
type console struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

// live returns the console's own streams.
func (c *console) live() TaskIO {
	return TaskIO{Stdout: c.stdout, Stderr: c.stderr}
}

// capture returns streams that collect both outputs into buf.
func capture(buf *bytes.Buffer) TaskIO {
	return TaskIO{Stdout: buf, Stderr: buf}
}

// flush writes a finished task's captured output as one labeled block.
func (c *console) flush(o TaskOutcome) {
	if len(o.Output) == 0 {
		return
	}

	var block bytes.Buffer
	block.WriteString(outcomeHeader(o))
	block.WriteByte('\n')
	block.Write(o.Output)
	if o.Output[len(o.Output)-1] != '\n' {
		block.WriteByte('\n')
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.stdout.Write(block.Bytes())
}

func outcomeHeader(o TaskOutcome) string {
	label := string(o.Status)
	if o.Status == OutcomeSucceeded && o.Changed {
		label += ", changed"
	}
	text := fmt.Sprintf("==> %s (%s)", o.TaskID, label)

	switch o.Status {
	case OutcomeFailed:
		return failedStyle.Render(text)
	case OutcomeSkipped:
		return skippedStyle.Render(text)
	default:
		return succeededStyle.Render(text)
	}
}

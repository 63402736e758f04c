// Package reporter prints run progress for humans.
package reporter

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/secrets"
)

// Console writes one line per bus event. Secret values are masked before
// anything reaches the writer.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	masker  secrets.Masker
	verbose bool

	started   *color.Color
	success   *color.Color
	failed    *color.Color
	skipped   *color.Color
	cancelled *color.Color
	diag      *color.Color
}

// Option configures a Console.
type Option func(*Console)

// WithColor forces colour on or off. By default fatih/color decides from the terminal.
func WithColor(enabled bool) Option {
	return func(c *Console) {
		for _, col := range c.palette() {
			if enabled {
				col.EnableColor()
			} else {
				col.DisableColor()
			}
		}
	}
}

// WithVerbose also prints start lines and item outputs.
func WithVerbose(verbose bool) Option {
	return func(c *Console) { c.verbose = verbose }
}

// NewConsole creates a Console writing to out. masker may be nil.
func NewConsole(out io.Writer, masker secrets.Masker, opts ...Option) *Console {
	c := &Console{
		out:       out,
		masker:    masker,
		started:   color.New(color.FgCyan),
		success:   color.New(color.FgGreen, color.Bold),
		failed:    color.New(color.FgRed, color.Bold),
		skipped:   color.New(color.FgHiBlack),
		cancelled: color.New(color.FgYellow),
		diag:      color.New(color.FgMagenta),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) palette() []*color.Color {
	return []*color.Color{c.started, c.success, c.failed, c.skipped, c.cancelled, c.diag}
}

// Attach subscribes the console to every topic on bus.
func (c *Console) Attach(bus *events.EventBus) *events.Subscription {
	return bus.Subscribe("*", func(e events.Event) bool {
		c.Handle(e)
		return false
	})
}

// Handle prints e.
func (c *Console) Handle(e events.Event) {
	switch ev := e.(type) {
	case events.ItemEvent:
		c.item(ev)
	case events.CyclicalReferencesEvent:
		c.line(c.failed, "!", "%s: %s", ev.Topic(), strings.Join(ev.IDs, ", "))
	case events.MissingDependenciesEvent:
		c.line(c.failed, "!", "%s: %s", ev.Topic(), describeMissing(ev.Missing))
	case events.DiagnosticEvent:
		if ev.Err != nil {
			c.line(c.diag, "*", "[%s] %s: %v", ev.Level, ev.Message, ev.Err)
			return
		}
		c.line(c.diag, "*", "[%s] %s", ev.Level, ev.Message)
	}
}

func (c *Console) item(e events.ItemEvent) {
	label := e.Kind + " " + e.ID
	if e.Name != "" && !strings.EqualFold(e.Name, e.ID) {
		label += " (" + e.Name + ")"
	}

	switch e.Status {
	case execution.StatusRunning.String():
		if c.verbose {
			c.line(c.started, ">", "%s started", label)
		}
	case execution.StatusSuccess.String():
		c.line(c.success, "+", "%s %s", label, formatDuration(e.Duration()))
		if c.verbose {
			c.outputs(e.Outputs)
		}
	case execution.StatusFailed.String():
		c.line(c.failed, "x", "%s failed: %v", label, e.Err)
	case execution.StatusSkipped.String():
		c.line(c.skipped, "-", "%s skipped", label)
	case execution.StatusCancelled.String():
		if e.Err != nil {
			c.line(c.cancelled, "~", "%s cancelled: %v", label, e.Err)
			return
		}
		c.line(c.cancelled, "~", "%s cancelled", label)
	}
}

func (c *Console) outputs(out map[string]any) {
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.write(fmt.Sprintf("    %s = %v\n", k, out[k]))
	}
}

// Summary prints the final status line of a run.
func (c *Console) Summary(s *execution.Summary) {
	counts := map[execution.Status]int{}
	for _, r := range s.Results {
		counts[r.Status]++
	}

	col := c.success
	switch s.Status {
	case execution.StatusFailed:
		col = c.failed
	case execution.StatusCancelled:
		col = c.cancelled
	}

	c.line(col, "=", "%s in %s: %d succeeded, %d failed, %d skipped, %d cancelled",
		s.Status, formatDuration(s.EndedAt.Sub(s.StartedAt)),
		counts[execution.StatusSuccess], counts[execution.StatusFailed],
		counts[execution.StatusSkipped], counts[execution.StatusCancelled])
	if s.Err != nil {
		c.line(col, " ", "%v", s.Err)
	}
}

func (c *Console) line(col *color.Color, mark, format string, args ...any) {
	c.write(col.Sprint(mark) + " " + fmt.Sprintf(format, args...) + "\n")
}

func (c *Console) write(s string) {
	if c.masker != nil {
		s = c.masker.Mask(s)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, s)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func describeMissing(missing map[string][]string) string {
	ids := make([]string, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+" needs "+strings.Join(missing[id], ", "))
	}
	return strings.Join(parts, "; ")
}

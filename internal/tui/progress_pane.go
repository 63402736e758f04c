package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
)

// Counts tallies item executions by status.
type Counts struct {
	Total     int
	Running   int
	Succeeded int
	Failed    int
	Skipped   int
	Cancelled int
}

// Done is the number of executions that reached a terminal status.
func (c Counts) Done() int {
	return c.Succeeded + c.Failed + c.Skipped + c.Cancelled
}

// Pending is Total minus everything seen so far.
func (c Counts) Pending() int {
	return max(0, c.Total-c.Done()-c.Running)
}

// ProgressPaneModel shows run progress counts and a progress bar.
type ProgressPaneModel struct {
	planned int
	status  map[string]string // kind:id -> last status
	order   []string
	summary *execution.Summary
	width   int
	height  int
	focused bool
}

// NewProgressPaneModel creates a progress pane. planned is the number of
// items the run is expected to execute, zero when unknown.
func NewProgressPaneModel(planned int) ProgressPaneModel {
	return ProgressPaneModel{
		planned: planned,
		status:  make(map[string]string),
	}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.ItemEvent:
		key := msg.Kind + ":" + strings.ToLower(msg.ID)
		if _, ok := m.status[key]; !ok {
			m.order = append(m.order, key)
		}
		m.status[key] = msg.Status

	case RunFinishedMsg:
		m.summary = msg.Summary
	}

	return m, nil
}

// Counts tallies the last status of every item seen.
func (m ProgressPaneModel) Counts() Counts {
	c := Counts{Total: max(m.planned, len(m.order))}
	for _, key := range m.order {
		switch m.status[key] {
		case execution.StatusRunning.String():
			c.Running++
		case execution.StatusSuccess.String():
			c.Succeeded++
		case execution.StatusFailed.String():
			c.Failed++
		case execution.StatusSkipped.String():
			c.Skipped++
		case execution.StatusCancelled.String():
			c.Cancelled++
		}
	}
	return c
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	c := m.Counts()
	var b strings.Builder

	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Total:     %d\n", c.Total))
	b.WriteString(fmt.Sprintf("Succeeded: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", c.Succeeded))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", c.Running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", c.Failed))))
	b.WriteString(fmt.Sprintf("Skipped:   %s\n", StyleStatusSkipped.Render(fmt.Sprintf("%d", c.Skipped))))
	b.WriteString(fmt.Sprintf("Cancelled: %s\n", StyleStatusCancelled.Render(fmt.Sprintf("%d", c.Cancelled))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", c.Pending()))))

	b.WriteString("\n")

	if c.Total > 0 {
		barWidth := min(m.width-4, 40)
		okWidth := (c.Succeeded * barWidth) / c.Total
		failedWidth := ((c.Failed + c.Cancelled) * barWidth) / c.Total
		skippedWidth := (c.Skipped * barWidth) / c.Total
		runningWidth := (c.Running * barWidth) / c.Total
		pendingWidth := barWidth - okWidth - failedWidth - skippedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, okWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusSkipped.Render(strings.Repeat("~", max(0, skippedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, c.Done(), c.Total))
	}

	if m.summary != nil {
		status := m.summary.Status.String()
		b.WriteString("\nRun " + StatusStyle(status).Render(status))
		b.WriteString(fmt.Sprintf(" in %s\n", m.summary.EndedAt.Sub(m.summary.StartedAt).Round(time.Millisecond)))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

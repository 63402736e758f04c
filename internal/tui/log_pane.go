package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/secrets"
)

const maxLogLines = 500

// LogPaneModel is a scrolling log of every bus event.
type LogPaneModel struct {
	lines    []string
	viewport viewport.Model
	masker   secrets.Masker
	width    int
	height   int
	focused  bool
	follow   bool
}

// NewLogPaneModel creates an empty log pane. masker may be nil.
func NewLogPaneModel(masker secrets.Masker) LogPaneModel {
	return LogPaneModel{
		viewport: viewport.New(0, 0),
		masker:   masker,
		follow:   true,
	}
}

// Update handles messages for the log pane.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		m.viewport, cmd = m.viewport.Update(msg)
		m.follow = m.viewport.AtBottom()

	case events.Event:
		m.Append(FormatEvent(msg))
	}

	return m, cmd
}

// Append adds one line, dropping the oldest past the limit.
func (m *LogPaneModel) Append(line string) {
	if m.masker != nil {
		line = m.masker.Mask(line)
	}
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// Lines returns the logged lines.
func (m LogPaneModel) Lines() []string {
	return m.lines
}

// FormatEvent renders one event as a log line.
func FormatEvent(e events.Event) string {
	at := e.Timestamp()
	if at.IsZero() {
		at = time.Now()
	}
	prefix := at.Format(time.TimeOnly) + " " + e.Topic()

	switch ev := e.(type) {
	case events.ItemEvent:
		if ev.Err != nil {
			return fmt.Sprintf("%s %s: %v", prefix, ev.ID, ev.Err)
		}
		return prefix + " " + ev.ID
	case events.CyclicalReferencesEvent:
		return prefix + " " + strings.Join(ev.IDs, ", ")
	case events.MissingDependenciesEvent:
		parts := make([]string, 0, len(ev.Missing))
		for id, needs := range ev.Missing {
			parts = append(parts, id+" needs "+strings.Join(needs, ", "))
		}
		return prefix + " " + strings.Join(parts, "; ")
	case events.DiagnosticEvent:
		if ev.Err != nil {
			return fmt.Sprintf("%s [%s] %s: %v", prefix, ev.Level, ev.Message, ev.Err)
		}
		return fmt.Sprintf("%s [%s] %s", prefix, ev.Level, ev.Message)
	}
	return prefix
}

// View renders the log pane.
func (m LogPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	title := StyleTitle.Render("Events")
	content := lipgloss.JoinVertical(lipgloss.Left, title, m.viewport.View())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// SetSize updates the pane dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-4, 10)
	m.viewport.Height = max(h-3, 3)
}

// SetFocused updates the focus state.
func (m *LogPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

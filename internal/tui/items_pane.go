package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/secrets"
)

const listWidth = 28

// ItemRow is the display state of one task or job execution.
type ItemRow struct {
	Kind     string
	ID       string
	Name     string
	Status   string
	Err      string
	Inputs   map[string]any
	Outputs  map[string]any
	Started  time.Time
	Duration time.Duration
}

// Label is the row text shown in the list.
func (r *ItemRow) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// ItemsPaneModel lists tasks and jobs in the order they were seen and shows
// the selected one in a scrollable viewport.
type ItemsPaneModel struct {
	rows        []*ItemRow
	latest      map[string]int // kind:id -> index of the most recent row
	selectedIdx int
	viewport    viewport.Model
	masker      secrets.Masker
	width       int
	height      int
	focused     bool
}

// NewItemsPaneModel creates an empty items pane. masker may be nil.
func NewItemsPaneModel(masker secrets.Masker) ItemsPaneModel {
	return ItemsPaneModel{
		latest:   make(map[string]int),
		viewport: viewport.New(0, 0),
		masker:   masker,
	}
}

// Update handles messages for the items pane.
func (m ItemsPaneModel) Update(msg tea.Msg) (ItemsPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.rows)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.ItemEvent:
		idx := m.upsert(msg)
		if idx == m.selectedIdx {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// upsert records e on its row and returns the row index. A start event for
// an item whose last row already finished opens a new row, so a task that
// appears in several jobs gets one row per execution.
func (m *ItemsPaneModel) upsert(e events.ItemEvent) int {
	key := e.Kind + ":" + strings.ToLower(e.ID)
	idx, ok := m.latest[key]
	if !ok || (e.Status == execution.StatusRunning.String() && m.rows[idx].Status != execution.StatusRunning.String()) {
		m.rows = append(m.rows, &ItemRow{Kind: e.Kind, ID: e.ID})
		idx = len(m.rows) - 1
		m.latest[key] = idx
		if idx == 0 {
			m.selectedIdx = 0
		}
	}

	row := m.rows[idx]
	row.Name = e.Name
	row.Status = e.Status
	row.Inputs = e.Inputs
	row.Outputs = e.Outputs
	row.Started = e.StartedAt
	row.Duration = e.Duration()
	row.Err = ""
	if e.Err != nil {
		row.Err = e.Err.Error()
	}
	return idx
}

// Rows returns the rows in display order.
func (m ItemsPaneModel) Rows() []*ItemRow {
	return m.rows
}

// Selected returns the selected row, or nil when there is none.
func (m ItemsPaneModel) Selected() *ItemRow {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.rows) {
		return m.rows[m.selectedIdx]
	}
	return nil
}

// View renders the items pane.
func (m ItemsPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m ItemsPaneModel) renderList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks & Jobs")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, row := range m.rows {
		name := row.Label()
		if row.Kind == events.KindJob {
			name = "[" + name + "]"
		}
		if len(name) > width-4 {
			name = name[:width-7] + "..."
		}

		line := fmt.Sprintf("%s %s", StatusIcon(row.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// Detail renders the selected row as plain text, secrets masked.
func (m ItemsPaneModel) Detail() string {
	row := m.Selected()
	if row == nil {
		return "Waiting for tasks..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", row.Kind, row.ID)
	if row.Name != "" && row.Name != row.ID {
		fmt.Fprintf(&b, "name:     %s\n", row.Name)
	}
	fmt.Fprintf(&b, "status:   %s\n", row.Status)
	if !row.Started.IsZero() {
		fmt.Fprintf(&b, "started:  %s\n", row.Started.Format(time.TimeOnly))
	}
	if row.Duration > 0 {
		fmt.Fprintf(&b, "duration: %s\n", row.Duration.Round(time.Millisecond))
	}
	if row.Err != "" {
		fmt.Fprintf(&b, "error:    %s\n", row.Err)
	}
	writeMap(&b, "inputs", row.Inputs)
	writeMap(&b, "outputs", row.Outputs)

	text := b.String()
	if m.masker != nil {
		text = m.masker.Mask(text)
	}
	return text
}

func writeMap(b *strings.Builder, title string, values map[string]any) {
	if len(values) == 0 {
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s = %v\n", k, values[k])
	}
}

func (m *ItemsPaneModel) updateViewportContent() {
	m.viewport.SetContent(m.Detail())
	m.viewport.GotoTop()
}

func (m *ItemsPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *ItemsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *ItemsPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

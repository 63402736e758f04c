// Package tui is a terminal progress view fed by the event bus.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskrunner/internal/config"
	"github.com/aristath/taskrunner/internal/events"
	"github.com/aristath/taskrunner/internal/execution"
	"github.com/aristath/taskrunner/internal/secrets"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneItems PaneID = iota
	PaneLog
	PaneProgress
)

// RunFinishedMsg tells the model the run is over.
type RunFinishedMsg struct {
	Summary *execution.Summary
}

// busClosedMsg is delivered once the event subscription is closed.
type busClosedMsg struct{}

// Options configures a Model.
type Options struct {
	Planned     int            // expected number of executions, zero when unknown
	Masker      secrets.Masker // may be nil
	Config      *config.Config // edited by the settings pane
	GlobalPath  string
	ProjectPath string
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	itemsPane    ItemsPaneModel
	logPane      LogPaneModel
	progressPane ProgressPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
	showSettings bool
	busClosed    bool
	summary      *execution.Summary
}

// New creates a new TUI model reading events from sub, typically
// EventBus.SubscribeAll.
func New(sub <-chan events.Event, opts Options) Model {
	return Model{
		itemsPane:    NewItemsPaneModel(opts.Masker),
		logPane:      NewLogPaneModel(opts.Masker),
		progressPane: NewProgressPaneModel(opts.Planned),
		settingsPane: NewSettingsPaneModel(opts.Config, opts.GlobalPath, opts.ProjectPath),
		focusedPane:  PaneItems,
		eventSub:     sub,
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return busClosedMsg{}
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showSettings {
			switch msg.String() {
			case KeyEsc:
				m.showSettings = false
				m.settingsPane.SetVisible(false)
			default:
				var cmd tea.Cmd
				m.settingsPane, cmd = m.settingsPane.Update(msg)
				cmds = append(cmds, cmd)
				if !m.settingsPane.IsVisible() {
					m.showSettings = false
				}
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 3
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + 2) % 3
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneItems
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneLog
			m.updateFocusStates()

		case KeyPane3:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			var cmd tea.Cmd
			switch m.focusedPane {
			case PaneItems:
				m.itemsPane, cmd = m.itemsPane.Update(msg)
			case PaneLog:
				m.logPane, cmd = m.logPane.Update(msg)
			}
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case RunFinishedMsg:
		m.summary = msg.Summary
		m.progressPane, _ = m.progressPane.Update(msg)

	case busClosedMsg:
		m.busClosed = true

	case events.ItemEvent:
		m.itemsPane, _ = m.itemsPane.Update(msg)
		m.progressPane, _ = m.progressPane.Update(msg)
		m.logPane, _ = m.logPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.Event:
		m.logPane, _ = m.logPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	default:
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// Finished reports whether the run summary has arrived.
func (m Model) Finished() bool {
	return m.summary != nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	rightPane := lipgloss.JoinVertical(lipgloss.Left, m.logPane.View(), m.progressPane.View())
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.itemsPane.View(), rightPane)

	help := HelpView()
	if m.summary != nil {
		help = StatusStyle(m.summary.Status.String()).Render("Run "+m.summary.Status.String()) + "  " + help
	}

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, help)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 45) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1
	rightTopHeight := (availableHeight * 60) / 100
	rightBottomHeight := availableHeight - rightTopHeight

	m.itemsPane.SetSize(leftWidth, availableHeight)
	m.logPane.SetSize(rightWidth, rightTopHeight)
	m.progressPane.SetSize(rightWidth, rightBottomHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.itemsPane.SetFocused(m.focusedPane == PaneItems)
	m.logPane.SetFocused(m.focusedPane == PaneLog)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}

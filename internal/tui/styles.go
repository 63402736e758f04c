package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskrunner/internal/execution"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Status styles
var (
	StyleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusComplete = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	StyleStatusCancelled = lipgloss.NewStyle().
				Foreground(lipgloss.Color("208"))

	StyleStatusSkipped = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244")).
				Italic(true)

	StyleStatusPending = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleSelected = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))
)

// StatusStyle returns the style used for a status name.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case execution.StatusRunning.String():
		return StyleStatusRunning
	case execution.StatusSuccess.String():
		return StyleStatusComplete
	case execution.StatusFailed.String():
		return StyleStatusFailed
	case execution.StatusCancelled.String():
		return StyleStatusCancelled
	case execution.StatusSkipped.String():
		return StyleStatusSkipped
	default:
		return StyleStatusPending
	}
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	icon := "○"
	switch status {
	case execution.StatusRunning.String():
		icon = "●"
	case execution.StatusSuccess.String():
		icon = "✓"
	case execution.StatusFailed.String():
		icon = "✗"
	case execution.StatusCancelled.String():
		icon = "■"
	case execution.StatusSkipped.String():
		icon = "-"
	}
	return StatusStyle(status).Render(icon)
}

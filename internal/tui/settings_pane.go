package tui

import (
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskrunner/internal/config"
	"github.com/aristath/taskrunner/internal/events"
)

// SettingsPaneModel manages the settings form overlay. Saved settings
// apply to the next run.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget      string
	defaultTimeout  string
	logLevel        string
	minSeverity     string
	metricsAddr     string
	redisAddr       string
	redisStream     string
	breakerFailures string
	breakerTimeout  string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFromConfig()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFromConfig() {
	m.saveTarget = "global"
	m.defaultTimeout = m.config.Execution.DefaultTimeout.Std().String()
	m.logLevel = m.config.Log.Level
	m.minSeverity = m.config.Events.MinSeverity
	m.metricsAddr = m.config.Metrics.Addr
	m.redisAddr = m.config.Events.RedisAddr
	m.redisStream = m.config.Events.RedisStream
	m.breakerFailures = strconv.FormatUint(uint64(m.config.Breaker.ConsecutiveFailures), 10)
	m.breakerTimeout = m.config.Breaker.OpenTimeout.Std().String()
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateFailures(s string) error {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func validateSeverity(s string) error {
	_, err := events.ParseSeverity(s)
	return err
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global ("+m.globalPath+")", "global"),
					huh.NewOption("Project ("+m.projectPath+")", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("defaultTimeout").
				Title("Default Timeout").
				Value(&m.defaultTimeout).
				Placeholder("60m").
				Validate(validateDuration),

			huh.NewSelect[string]().
				Key("logLevel").
				Title("Log Level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&m.logLevel),

			huh.NewInput().
				Key("minSeverity").
				Title("Minimum Event Severity").
				Value(&m.minSeverity).
				Placeholder("info").
				Validate(validateSeverity),
		).Title("Execution"),

		huh.NewGroup(
			huh.NewInput().
				Key("metricsAddr").
				Title("Metrics Address").
				Value(&m.metricsAddr).
				Placeholder(":9090"),

			huh.NewInput().
				Key("redisAddr").
				Title("Redis Address").
				Value(&m.redisAddr).
				Placeholder("localhost:6379"),

			huh.NewInput().
				Key("redisStream").
				Title("Redis Stream").
				Value(&m.redisStream).
				Placeholder("taskrunner:events"),
		).Title("Exporters"),

		huh.NewGroup(
			huh.NewInput().
				Key("breakerFailures").
				Title("Consecutive Failures To Trip").
				Value(&m.breakerFailures).
				Placeholder("5").
				Validate(validateFailures),

			huh.NewInput().
				Key("breakerTimeout").
				Title("Open Timeout").
				Value(&m.breakerTimeout).
				Placeholder("30s").
				Validate(validateDuration),
		).Title("Circuit Breaker"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.save()
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

func (m *SettingsPaneModel) save() error {
	updated := *m.config
	if err := m.applyFormToConfig(&updated); err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return err
	}

	targetPath := m.globalPath
	if m.saveTarget == "project" {
		targetPath = m.projectPath
	}
	if err := config.Save(&updated, targetPath); err != nil {
		return err
	}
	*m.config = updated
	return nil
}

// applyFormToConfig copies form field values into cfg.
func (m *SettingsPaneModel) applyFormToConfig(cfg *config.Config) error {
	timeout, err := time.ParseDuration(m.defaultTimeout)
	if err != nil {
		return fmt.Errorf("default timeout: %w", err)
	}
	failures, err := strconv.ParseUint(m.breakerFailures, 10, 32)
	if err != nil {
		return fmt.Errorf("breaker failures: %w", err)
	}
	openTimeout, err := time.ParseDuration(m.breakerTimeout)
	if err != nil {
		return fmt.Errorf("breaker timeout: %w", err)
	}

	cfg.Execution.DefaultTimeout = config.Duration(timeout)
	cfg.Log.Level = m.logLevel
	cfg.Events.MinSeverity = m.minSeverity
	cfg.Events.RedisAddr = m.redisAddr
	cfg.Events.RedisStream = m.redisStream
	cfg.Metrics.Addr = m.metricsAddr
	cfg.Breaker.ConsecutiveFailures = uint32(failures)
	cfg.Breaker.OpenTimeout = config.Duration(openTimeout)
	return nil
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(max(m.width-4, 20)).
		Height(max(m.height-4, 5))

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(max(w-8, 20)).WithHeight(max(h-8, 5))
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	if v {
		m.loadFromConfig()
		m.buildForm()
		if m.width > 0 {
			m.SetSize(m.width, m.height)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last form submission was written to disk.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}

package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/flowrun-io/flowrun/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.EngineConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget     string
	workDir        string
	cacheDir       string
	executor       string
	maxConcurrent  string
	maxAttempts    string
	initialDelayMS string
	maxDelayMS     string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.EngineConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		visible:     false,
		saved:       false,

		// Initialize form field values from config
		saveTarget:     "global",
		workDir:        cfg.Run.WorkDir,
		cacheDir:       cfg.Run.CacheDir,
		executor:       cfg.Run.Executor,
		maxConcurrent:  strconv.Itoa(cfg.Run.MaxConcurrent),
		maxAttempts:    strconv.Itoa(cfg.Retry.MaxAttempts),
		initialDelayMS: strconv.Itoa(cfg.Retry.InitialDelayMS),
		maxDelayMS:     strconv.Itoa(cfg.Retry.MaxDelayMS),
	}

	m.buildForm()
	return m
}

// validInt accepts empty (leave unchanged) or a whole number.
func validInt(s string) error {
	if s == "" {
		return nil
	}
	if _, err := strconv.Atoi(s); err != nil {
		return fmt.Errorf("must be a whole number")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.flowrun/config.json)", "global"),
					huh.NewOption("Project (.flowrun/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("workDir").
				Title("Work Directory").
				Value(&m.workDir).
				Placeholder("work"),

			huh.NewInput().
				Key("cacheDir").
				Title("Cache Directory").
				Value(&m.cacheDir).
				Placeholder(".flowrun/cache"),

			huh.NewInput().
				Key("executor").
				Title("Default Executor").
				Value(&m.executor).
				Placeholder("local"),

			huh.NewInput().
				Key("maxConcurrent").
				Title("Max Concurrent Tasks").
				Value(&m.maxConcurrent).
				Validate(validInt).
				Placeholder("8"),
		).Title("Run Settings"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxAttempts").
				Title("Retry Attempts").
				Value(&m.maxAttempts).
				Validate(validInt).
				Placeholder("3"),

			huh.NewInput().
				Key("initialDelayMS").
				Title("Initial Retry Delay (ms)").
				Value(&m.initialDelayMS).
				Validate(validInt).
				Placeholder("500"),

			huh.NewInput().
				Key("maxDelayMS").
				Title("Max Retry Delay (ms)").
				Value(&m.maxDelayMS).
				Validate(validInt).
				Placeholder("30000"),
		).Title("Retry Settings"),
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

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	// Delegate to form
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	// Check if form is completed
	if m.form.State == huh.StateCompleted {
		m.applyFormToConfig()

		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}

		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
		}

		// Hide form after successful save
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form field values back to the config struct.
// Blank fields leave the current value alone.
func (m *SettingsPaneModel) applyFormToConfig() {
	if m.workDir != "" {
		m.config.Run.WorkDir = m.workDir
	}
	if m.cacheDir != "" {
		m.config.Run.CacheDir = m.cacheDir
	}
	if m.executor != "" {
		m.config.Run.Executor = m.executor
	}
	if n, err := strconv.Atoi(m.maxConcurrent); err == nil && n > 0 {
		m.config.Run.MaxConcurrent = n
	}
	if n, err := strconv.Atoi(m.maxAttempts); err == nil && n > 0 {
		m.config.Retry.MaxAttempts = n
	}
	if n, err := strconv.Atoi(m.initialDelayMS); err == nil && n > 0 {
		m.config.Retry.InitialDelayMS = n
	}
	if n, err := strconv.Atoi(m.maxDelayMS); err == nil && n > 0 {
		m.config.Retry.MaxDelayMS = n
	}
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string

	// Show saved message if just saved
	if m.saved && m.form.State == huh.StateCompleted {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true).
			Render("✓ Settings saved successfully!")
	} else if m.err != nil {
		// Show error if save failed
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
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	body := style.Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Rebuild the form to reset state when showing
	if v && m.form != nil {
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Package tui is the interactive run monitor: a stage list with per-stage
// transition logs, run-wide progress, and a settings form, all fed from
// the engine's event bus.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/flowrun-io/flowrun/internal/config"
	"github.com/flowrun-io/flowrun/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneStageList PaneID = iota
	PaneStageLog
	PaneProgress
)

// eventsClosedMsg reports that the event bus closed: the run is over.
type eventsClosedMsg struct{}

// Model is the root Bubble Tea model for the run monitor.
type Model struct {
	stagePane         StagePaneModel
	progressPane      ProgressPaneModel
	settingsPane      SettingsPaneModel
	focusedPane       PaneID
	eventSub          <-chan events.Event
	width             int
	height            int
	quitting          bool
	finished          bool
	showSettings      bool
	config            *config.EngineConfig
	globalConfigPath  string
	projectConfigPath string
}

// New creates a run monitor subscribed to the bus. Stages are listed in
// the given order; stages arriving only through events append after them.
func New(bus *events.Bus, stages []string, cfg *config.EngineConfig, globalPath, projectPath string) Model {
	return Model{
		stagePane:         NewStagePaneModel(stages),
		progressPane:      NewProgressPaneModel(),
		settingsPane:      NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:       PaneStageList,
		eventSub:          bus.SubscribeAll(256),
		showSettings:      false,
		config:            cfg,
		globalConfigPath:  globalPath,
		projectConfigPath: projectPath,
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the
// event bus. A closed bus means the run finished.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return eventsClosedMsg{}
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// If settings panel is open, route all keys to it (modal behavior)
		if m.showSettings {
			switch msg.String() {
			case KeySettings, "esc":
				m.showSettings = false
				m.settingsPane.SetVisible(false)
			default:
				var cmd tea.Cmd
				m.settingsPane, cmd = m.settingsPane.Update(msg)
				cmds = append(cmds, cmd)

				// Check if settings pane closed itself (after save)
				if !m.settingsPane.IsVisible() {
					m.showSettings = false
				}
			}
			return m, tea.Batch(cmds...)
		}

		// Normal mode (settings not open)
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
			m.focusedPane = (m.focusedPane + 2) % 3 // +2 is equivalent to -1 mod 3
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneStageList
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneStageLog
			m.updateFocusStates()

		case KeyPane3:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			// Delegate to focused pane
			switch m.focusedPane {
			case PaneStageList, PaneStageLog:
				var cmd tea.Cmd
				m.stagePane, cmd = m.stagePane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneProgress:
				var cmd tea.Cmd
				m.progressPane, cmd = m.progressPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case events.TaskQueuedEvent, events.TaskStartedEvent, events.TaskCachedEvent,
		events.TaskCompletedEvent, events.TaskFailedEvent, events.TaskRetriedEvent,
		events.StageClosedEvent:
		var cmd tea.Cmd
		m.stagePane, cmd = m.stagePane.Update(msg)
		cmds = append(cmds, cmd)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.RunProgressEvent:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case eventsClosedMsg:
		// Stop pumping; the final state stays on screen until quit.
		m.finished = true
		m.progressPane.SetFinished()

	default:
		// Pane-internal messages: form internals while the settings
		// overlay is open, debounce ticks otherwise.
		var cmd tea.Cmd
		if m.showSettings {
			m.settingsPane, cmd = m.settingsPane.Update(msg)
		} else {
			m.stagePane, cmd = m.stagePane.Update(msg)
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the run monitor.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	// If settings panel is visible, render it as a full-screen overlay
	if m.showSettings {
		return m.settingsPane.View()
	}

	leftPane := m.stagePane.View()
	rightPane := m.progressPane.View()

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)
	helpBar := HelpView(m.finished)

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, helpBar)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // reserve 1 line for help bar

	m.stagePane.SetSize(leftWidth, availableHeight)
	m.progressPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	// The stage pane owns both the list and the log viewport.
	m.stagePane.SetFocused(m.focusedPane == PaneStageList || m.focusedPane == PaneStageLog)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/flowrun-io/flowrun/internal/events"
)

// Task phases as the pane tracks them. Derived from the event stream, not
// shared with the scheduler.
const (
	phaseQueued    = "queued"
	phaseRunning   = "running"
	phaseCached    = "cached"
	phaseCompleted = "completed"
	phaseFailed    = "failed"
	phaseRetrying  = "retrying"
)

// StageState tracks one stage's tasks and its transition log.
type StageState struct {
	Name   string
	Tasks  map[string]string // taskID -> phase
	Log    []string
	Closed bool
	Fired  int
}

// StagePaneModel is the stage list plus a viewport showing the selected
// stage's task transitions.
type StagePaneModel struct {
	stages      map[string]*StageState
	stageOrder  []string // pipeline order, arrival order for latecomers
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewStagePaneModel creates a stage pane pre-seeded with the pipeline's
// stages in order.
func NewStagePaneModel(stageNames []string) StagePaneModel {
	m := StagePaneModel{
		stages:   make(map[string]*StageState),
		viewport: viewport.New(0, 0),
	}
	for _, name := range stageNames {
		m.stages[name] = &StageState{Name: name, Tasks: make(map[string]string)}
		m.stageOrder = append(m.stageOrder, name)
	}
	return m
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the stage pane.
func (m StagePaneModel) Update(msg tea.Msg) (StagePaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.stageOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			// Delegate other keys to viewport for scrolling
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskQueuedEvent:
		st := m.stage(msg.Stage)
		st.Tasks[msg.ID] = phaseQueued
		m.appendLog(st, msg.Timestamp, fmt.Sprintf("queued    #%d %s attempt %d", msg.Index, shortID(msg.ID), msg.Attempt))
		return m.debounced(msg.Stage)

	case events.TaskStartedEvent:
		st := m.stage(msg.Stage)
		st.Tasks[msg.ID] = phaseRunning
		m.appendLog(st, msg.Timestamp, fmt.Sprintf("started   #%d %s attempt %d", msg.Index, shortID(msg.ID), msg.Attempt))
		return m.debounced(msg.Stage)

	case events.TaskRetriedEvent:
		st := m.stage(msg.Stage)
		st.Tasks[msg.ID] = phaseRetrying
		m.appendLog(st, msg.Timestamp, fmt.Sprintf("retry     #%d %s attempt %d in %s", msg.Index, shortID(msg.ID), msg.Attempt, msg.Delay))
		return m.debounced(msg.Stage)

	case events.TaskCachedEvent:
		st := m.stage(msg.Stage)
		st.Tasks[msg.ID] = phaseCached
		m.appendLog(st, msg.Timestamp, fmt.Sprintf("cached    #%d %s key %s", msg.Index, shortID(msg.ID), shortID(msg.Key)))
		if m.selectedStage() == msg.Stage {
			m.updateViewportContent()
		}

	case events.TaskCompletedEvent:
		st := m.stage(msg.Stage)
		st.Tasks[msg.ID] = phaseCompleted
		m.appendLog(st, msg.Timestamp, fmt.Sprintf("completed #%d %s in %s", msg.Index, shortID(msg.ID), msg.Duration.Round(time.Millisecond)))
		if m.selectedStage() == msg.Stage {
			m.updateViewportContent()
		}

	case events.TaskFailedEvent:
		st := m.stage(msg.Stage)
		line := fmt.Sprintf("failed    #%d %s attempt %d: %v", msg.Index, shortID(msg.ID), msg.Attempt, msg.Err)
		if msg.Final {
			st.Tasks[msg.ID] = phaseFailed
		} else {
			st.Tasks[msg.ID] = phaseRetrying
			line += " (retrying)"
		}
		m.appendLog(st, msg.Timestamp, line)
		if m.selectedStage() == msg.Stage {
			m.updateViewportContent()
		}

	case events.StageClosedEvent:
		st := m.stage(msg.Stage)
		st.Closed = true
		st.Fired = msg.Fired
		m.appendLog(st, msg.Timestamp, fmt.Sprintf("stage closed after %d firings", msg.Fired))
		if m.selectedStage() == msg.Stage {
			m.updateViewportContent()
		}

	case tickMsg:
		// Only update if this tick matches the current tag (debouncing)
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// debounced schedules a viewport refresh for high-frequency transitions on
// the selected stage instead of refreshing per event.
func (m StagePaneModel) debounced(stage string) (StagePaneModel, tea.Cmd) {
	if m.selectedStage() != stage {
		return m, nil
	}
	m.updateTag++
	tag := m.updateTag
	return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

// stage returns the state for a stage, creating it on first mention.
func (m *StagePaneModel) stage(name string) *StageState {
	if st, ok := m.stages[name]; ok {
		return st
	}
	st := &StageState{Name: name, Tasks: make(map[string]string)}
	m.stages[name] = st
	m.stageOrder = append(m.stageOrder, name)
	return st
}

func (m *StagePaneModel) appendLog(st *StageState, ts time.Time, line string) {
	st.Log = append(st.Log, fmt.Sprintf("[%s] %s", ts.Format("15:04:05"), line))
}

// View renders the stage pane.
func (m StagePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	// Split into two columns: stage list (left) and viewport (right)
	listWidth := 25
	viewportWidth := m.width - listWidth - 4 // account for borders and padding

	listContent := m.renderStageList(listWidth)
	viewportContent := m.viewport.View()

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		listContent,
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(viewportContent),
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

// renderStageList renders the stage list column.
func (m StagePaneModel) renderStageList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Stages")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.stageOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	} else {
		for i, name := range m.stageOrder {
			st := m.stages[name]
			icon := m.statusIcon(st)
			label := name
			if len(label) > width-12 {
				label = label[:width-15] + "..."
			}

			line := fmt.Sprintf("%s %s %d/%d", icon, label, st.settled(), len(st.Tasks))
			if i == m.selectedIdx {
				line = lipgloss.NewStyle().
					Background(lipgloss.Color("62")).
					Foreground(lipgloss.Color("0")).
					Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// settled counts the stage's tasks in a terminal phase.
func (st *StageState) settled() int {
	n := 0
	for _, phase := range st.Tasks {
		switch phase {
		case phaseCached, phaseCompleted, phaseFailed:
			n++
		}
	}
	return n
}

// statusIcon summarizes a stage: failed beats running beats done.
func (m StagePaneModel) statusIcon(st *StageState) string {
	anyRunning := false
	for _, phase := range st.Tasks {
		switch phase {
		case phaseFailed:
			return StyleStatusFailed.Render("✗")
		case phaseRunning, phaseRetrying, phaseQueued:
			anyRunning = true
		}
	}
	if anyRunning {
		return StyleStatusRunning.Render("●")
	}
	if st.Closed {
		return StyleStatusComplete.Render("✓")
	}
	return StyleStatusPending.Render("○")
}

// selectedStage returns the name of the currently selected stage.
func (m StagePaneModel) selectedStage() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.stageOrder) {
		return m.stageOrder[m.selectedIdx]
	}
	return ""
}

// updateViewportContent fills the viewport with the selected stage's log.
func (m *StagePaneModel) updateViewportContent() {
	name := m.selectedStage()
	if name == "" {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	st, ok := m.stages[name]
	if !ok || len(st.Log) == 0 {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	m.viewport.SetContent(strings.Join(st.Log, "\n"))
	// Auto-scroll to bottom
	m.viewport.GotoBottom()
}

// resizeViewport resizes the viewport based on pane dimensions.
func (m *StagePaneModel) resizeViewport() {
	listWidth := 25
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 4 // account for borders

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *StagePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *StagePaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// shortID truncates task and hash identifiers for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

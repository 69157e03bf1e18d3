package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hipixel/internal/engine"
)

// Model renders live batch progress from ledger events. Items appear as
// they are registered and contribute their own percentage to the
// aggregate bar until they reach a terminal state.
type Model struct {
	events  <-chan engine.Event
	started time.Time
	width   int

	total     int
	succeeded int
	failed    int
	inflight  map[string]float64 // source path -> percent
	stages    map[string]int

	quitting bool
}

type doneMsg struct{}

type eventMsg engine.Event

func NewModel(events <-chan engine.Event) Model {
	return Model{
		events:   events,
		started:  time.Now(),
		inflight: make(map[string]float64),
		stages:   make(map[string]int),
	}
}

func (m Model) Init() tea.Cmd {
	return listenForEvents(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(engine.Event(msg))
		return m, listenForEvents(m.events)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) apply(ev engine.Event) {
	switch ev.Kind {
	case engine.EventAppended:
		m.total++
		m.inflight[ev.Item.Path] = ev.Item.Progress
		m.stages[ev.Item.Path] = ev.Item.Stage
	case engine.EventUpdated:
		switch ev.Item.State {
		case engine.StateProcessing:
			m.inflight[ev.Item.Path] = ev.Item.Progress
			m.stages[ev.Item.Path] = ev.Item.Stage
		case engine.StateSuccess:
			delete(m.inflight, ev.Item.Path)
			delete(m.stages, ev.Item.Path)
			m.succeeded++
		case engine.StateFailed:
			delete(m.inflight, ev.Item.Path)
			delete(m.stages, ev.Item.Path)
			m.failed++
		}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	done := m.succeeded + m.failed
	ratio := 0.0
	if m.total > 0 {
		partial := 0.0
		for _, percent := range m.inflight {
			partial += percent / 100
		}
		ratio = (float64(done) + partial) / float64(m.total)
		if ratio > 1 {
			ratio = 1
		}
	}

	bar := renderBar(barWidth, ratio)
	elapsed := time.Since(m.started).Round(time.Millisecond)

	lines := []string{
		titleStyle.Render("hipixel ✨"),
		labelStyle.Render(fmt.Sprintf("Images: %d/%d", done, m.total)) + dimStyle.Render(fmt.Sprintf("  failed:%d", m.failed)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		barStyle.Render(bar),
	}
	if m.secondPassRunning() {
		lines = append(lines, dimStyle.Render("Second pass running"))
	}

	return strings.Join(lines, "\n")
}

func (m Model) secondPassRunning() bool {
	for _, stage := range m.stages {
		if stage == 2 {
			return true
		}
	}
	return false
}

func listenForEvents(events <-chan engine.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

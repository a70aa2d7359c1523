package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/layerforge/layerforge/pkg/generate"
)

// =============================================================================
// GenProgressModel - Live generation progress
// =============================================================================

// genProgressModel is the bubbletea model showing a generation run's
// progress bar. It consumes the session's event stream and quits on the
// terminal event.
type genProgressModel struct {
	events <-chan generate.Event

	total     int
	generated int
	width     int

	outcome generate.EventType
	errMsg  string
	cancel  func()
}

// newGenProgressModel wires a progress display to a session event stream.
// cancel is invoked when the user interrupts the run from the keyboard.
func newGenProgressModel(events <-chan generate.Event, total int, cancel func()) genProgressModel {
	return genProgressModel{events: events, total: total, width: 40, cancel: cancel}
}

// eventMsg wraps a session event for the bubbletea update loop.
type eventMsg struct {
	ev generate.Event
	ok bool
}

func waitForEvent(events <-chan generate.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		return eventMsg{ev: ev, ok: ok}
	}
}

func (m genProgressModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m genProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case eventMsg:
		if !msg.ok {
			return m, tea.Quit
		}
		m.generated = msg.ev.Generated
		if msg.ev.Total > 0 {
			m.total = msg.ev.Total
		}
		switch msg.ev.Type {
		case generate.EventProgress:
			return m, waitForEvent(m.events)
		default:
			m.outcome = msg.ev.Type
			m.errMsg = msg.ev.Error
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width - 20
		if m.width < 10 {
			m.width = 10
		}
		if m.width > 60 {
			m.width = 60
		}
	}
	return m, nil
}

func (m genProgressModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Generating collection"))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("q cancel"))
	b.WriteString("\n\n")

	filled := 0
	if m.total > 0 {
		filled = m.width * m.generated / m.total
	}
	bar := styleProgressBar.Render(strings.Repeat("█", filled)) +
		StyleDim.Render(strings.Repeat("░", m.width-filled))
	b.WriteString(fmt.Sprintf("%s %d/%d\n", bar, m.generated, m.total))

	if m.outcome != "" && m.outcome != generate.EventComplete {
		b.WriteString("\n")
		b.WriteString(StyleWarning.Render(string(m.outcome)))
		if m.errMsg != "" {
			b.WriteString(StyleDim.Render(": " + m.errMsg))
		}
		b.WriteString("\n")
	}

	return b.String()
}

package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/williamsharkey/nimbus/internal/models"
)

const maxLogLines = 500

// Model is the dashboard state: endpoint liveness, session activity, and a
// scrollback of recent events.
type Model struct {
	serverURL string
	connected bool
	endpoints map[string]bool
	sessions  map[string]models.ActivityState
	log       []string
	viewport  viewport.Model
	width     int
	height    int
	ready     bool
}

// NewModel creates the dashboard model
func NewModel(serverURL string) Model {
	return Model{
		serverURL: serverURL,
		endpoints: make(map[string]bool),
		sessions:  make(map[string]models.ActivityState),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		logHeight := m.height - m.chromeHeight()
		if logHeight < 3 {
			logHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, logHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = logHeight
		}
		m.viewport.SetContent(strings.Join(m.log, "\n"))
		m.viewport.GotoBottom()

	case sseConnectedMsg:
		m.connected = true
		m.appendLog(mutedStyle.Render("connected to " + m.serverURL))

	case sseDisconnectedMsg:
		m.connected = false
		m.appendLog(deadStyle.Render("connection lost, retrying"))

	case sseEventMsg:
		m.applyEvent(msg.event)
	}

	var cmd tea.Cmd
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *Model) applyEvent(event models.AppEvent) {
	switch event.Type {
	case models.EndpointConnectedEvent:
		m.endpoints[event.Endpoint] = true
		m.appendLog(fmt.Sprintf("%s %s", liveStyle.Render("●"), event.Endpoint+" connected"))

	case models.EndpointDisconnectedEvent:
		m.endpoints[event.Endpoint] = false
		reason := payloadString(event.Payload, "reason")
		line := event.Endpoint + " disconnected"
		if reason != "" {
			line += " (" + reason + ")"
		}
		m.appendLog(fmt.Sprintf("%s %s", deadStyle.Render("●"), line))

	case models.SessionStatusEvent:
		state := models.ActivityState(payloadString(event.Payload, "state"))
		m.sessions[event.Endpoint] = state
		m.appendLog(mutedStyle.Render(fmt.Sprintf("%s is %s", event.Endpoint, state)))

	case models.SessionLogEvent:
		content := payloadString(event.Payload, "content")
		for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
			m.appendLog(fmt.Sprintf("%s %s", keyStyle.Render(event.Endpoint+" |"), line))
		}

	case models.EndpointEventEvent:
		m.appendLog(fmt.Sprintf("%s event from %s", busyStyle.Render("▸"), event.Endpoint))

	case models.HeartbeatEvent:
		// Keepalive, nothing to show
	}
}

func (m *Model) appendLog(line string) {
	stamp := mutedStyle.Render(time.Now().Format("15:04:05"))
	m.log = append(m.log, stamp+" "+line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
	if m.ready {
		m.viewport.SetContent(strings.Join(m.log, "\n"))
		m.viewport.GotoBottom()
	}
}

// chromeHeight is the number of rows used by everything except the log
func (m Model) chromeHeight() int {
	return 7 + len(m.endpoints) + len(m.sessions)
}

func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder

	status := deadStyle.Render("disconnected")
	if m.connected {
		status = liveStyle.Render("connected")
	}
	b.WriteString(headerStyle.Width(m.width).Render("☁️ nimbus " + m.serverURL + "  " + status))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Endpoints"))
	b.WriteString("\n")
	if len(m.endpoints) == 0 {
		b.WriteString(mutedStyle.Render("  none registered"))
		b.WriteString("\n")
	}
	for _, key := range sortedKeys(m.endpoints) {
		marker := deadStyle.Render("●")
		if m.endpoints[key] {
			marker = liveStyle.Render("●")
		}
		b.WriteString("  " + marker + " " + key + "\n")
	}

	b.WriteString(sectionStyle.Render("Sessions"))
	b.WriteString("\n")
	for _, key := range sortedSessionKeys(m.sessions) {
		state := m.sessions[key]
		style := mutedStyle
		switch state {
		case models.ActivityBusy:
			style = busyStyle
		case models.ActivityError:
			style = deadStyle
		case models.ActivityIdle:
			style = liveStyle
		}
		b.WriteString("  " + key + " " + style.Render(string(state)) + "\n")
	}

	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("q quit · ↑/↓ scroll"))
	return b.String()
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSessionKeys(m map[string]models.ActivityState) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func payloadString(payload any, field string) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := obj[field].(string)
	return s
}

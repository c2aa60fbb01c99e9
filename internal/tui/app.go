package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the dashboard against the given hub URL and blocks until quit
func Run(serverURL string) error {
	model := NewModel(serverURL)
	program := tea.NewProgram(model, tea.WithAltScreen())

	events := NewSSEClient(strings.TrimRight(serverURL, "/")+"/v1/events", program)
	events.Start()
	defer events.Stop()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

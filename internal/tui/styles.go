package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorPrimary = "6"
	colorSuccess = "2"
	colorWarning = "3"
	colorError   = "1"
	colorMuted   = "8"
	colorAccent  = "11"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary)).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorSuccess))

	liveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorSuccess))

	deadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorError))

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorWarning))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted))

	keyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorAccent))
)

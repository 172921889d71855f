package tui

import "github.com/charmbracelet/lipgloss"

var (
	navStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	timeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // gray
)

package cmd

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#eb8755"))
	optionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b93b5"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5c5044"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d95f5f"))
	adviceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#93b56b"))
)

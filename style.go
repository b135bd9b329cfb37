package main

import "github.com/charmbracelet/lipgloss"

var (
	keyword   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render

	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EE6FF8")).Bold(true)
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#235", Dark: "#DDD"}).PaddingLeft(2)
	faintStyle    = lipgloss.NewStyle().Faint(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F25D94"))
)

package main

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33")) // Blue

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Gray

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("160")) // Red

	checkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("40")) // Green

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Orange

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Width(10)
)

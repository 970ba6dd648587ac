package main

import "github.com/charmbracelet/lipgloss"

var (
	colorCyan    = lipgloss.Color("#00FFFF")
	colorGreen   = lipgloss.Color("#00FF00")
	colorYellow  = lipgloss.Color("#FFFF00")
	colorRed     = lipgloss.Color("#FF0000")
	colorGray    = lipgloss.Color("#666666")
	colorDimGray = lipgloss.Color("#444444")
	colorWhite   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	faceStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	phaseIdleStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	phaseActiveStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)

	phaseThinkingStyle = lipgloss.NewStyle().
				Foreground(colorYellow).
				Bold(true)

	phaseSpeakingStyle = lipgloss.NewStyle().
				Foreground(colorCyan).
				Bold(true)

	speakingDotStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	timestampStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	childStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	budStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	eventStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	scoreStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	footerDescStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)
)

func phaseStyle(phase string) lipgloss.Style {
	switch phase {
	case "active":
		return phaseActiveStyle
	case "thinking":
		return phaseThinkingStyle
	case "speaking":
		return phaseSpeakingStyle
	default:
		return phaseIdleStyle
	}
}

// Package tui provides a live terminal dashboard for a running pipeline.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It displays the stage chain with per-stage buffer windows,
// hand-off and wait percentiles, and a tail of recent log lines.
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Colors based on a modern dark theme
var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

var (
	baseStyle = lipgloss.NewStyle().
			Foreground(colorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(16)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder).
				MarginTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	logLineStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

var (
	stateRunning  = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	stateStarting = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	stateEnding   = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	stateStopped  = lipgloss.NewStyle().Foreground(colorTextDim)
	stateError    = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)

// StateStyle maps an executor state name to a display style.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "running":
		return stateRunning
	case "idle", "restarting":
		return stateStarting
	case "stopping":
		return stateEnding
	case "stopped":
		return stateStopped
	default:
		return stateError
	}
}

// FlagLabel renders the input-end and aborting flags of a stage.
func FlagLabel(inputEnd, aborting bool) string {
	switch {
	case aborting:
		return stateError.Render("abort")
	case inputEnd:
		return stateEnding.Render("end")
	default:
		return ""
	}
}

var (
	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Bold(true)
)

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderWindowBar renders a stage's buffer window as a bar scaled to the
// total circular buffer capacity.
func RenderWindowBar(count, capacity, width int) string {
	if width < 10 {
		width = 10
	}
	var progress float64
	if capacity > 0 {
		progress = float64(count) / float64(capacity)
	}

	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := progressBarStyle.Render(repeatChar('█', filled)) +
		progressBarEmptyStyle.Render(repeatChar('░', width-filled))

	percent := progressPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))

	return bar + percent
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}

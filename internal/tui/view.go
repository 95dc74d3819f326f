package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tsforge/tspump/internal/engine"
)

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		m.renderStages(),
		m.renderFlow(),
	}
	if len(m.logTail) > 0 {
		sections = append(sections, m.renderLogTail())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("tspump " + m.version)
	uptime := mutedStyle.Render(fmt.Sprintf("uptime %s", formatDuration(m.status.Uptime)))
	buffer := mutedStyle.Render(fmt.Sprintf("buffer %d pkts", m.status.BufferPackets))

	header := lipgloss.JoinHorizontal(lipgloss.Left,
		title, "   ", uptime, "   ", buffer)

	if m.chain != "" {
		chain := subtitleStyle.Render("chain: ") + baseStyle.Render(m.chain)
		return lipgloss.JoinVertical(lipgloss.Left, header, chain)
	}
	return header
}

func (m Model) renderStages() string {
	lines := []string{
		sectionHeaderStyle.Render("STAGES"),
		tableHeaderStyle.Render(fmt.Sprintf("%-3s %-7s %-12s %-11s %-9s %-12s %-8s %s",
			"#", "TYPE", "NAME", "STATE", "PACKETS", "BITRATE", "RESTART", "WINDOW")),
	}

	barWidth := m.width - 62
	if barWidth > 24 {
		barWidth = 24
	}

	for _, stg := range m.status.Stages {
		lines = append(lines, m.renderStageRow(stg, barWidth))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderStageRow(stg engine.StageStatus, barWidth int) string {
	row := fmt.Sprintf("%-3d %-7s %-12s ", stg.Index, stg.Type, truncate(stg.Name, 12))
	row += StateStyle(stg.State).Render(fmt.Sprintf("%-11s", stg.State))
	row += baseStyle.Render(fmt.Sprintf(" %-9s %-12s %-8d ",
		formatCount(stg.Packets), formatBitrate(uint64(stg.Bitrate)), stg.Restarts))
	row += RenderWindowBar(stg.Count, m.status.BufferPackets, barWidth)
	if flag := FlagLabel(stg.InputEnd, stg.Aborting); flag != "" {
		row += " " + flag
	}
	return row
}

func (m Model) renderFlow() string {
	lines := []string{sectionHeaderStyle.Render("FLOW")}

	s := m.summary
	handoffs := RenderKeyValue("hand-offs", formatCount(s.Handoffs)) +
		mutedStyle.Render(fmt.Sprintf("   batch p50/p95/p99  %.0f / %.0f / %.0f pkts (max %d)",
			s.BatchP50, s.BatchP95, s.BatchP99, s.BatchMax))
	lines = append(lines, handoffs)

	waits := RenderKeyValue("waits", formatCount(s.Waits)) +
		mutedStyle.Render(fmt.Sprintf("   wait p50/p95/p99  %s / %s / %s (max %s)",
			s.WaitP50.Round(0), s.WaitP95.Round(0), s.WaitP99.Round(0), s.WaitMax.Round(0)))
	lines = append(lines, waits)

	if s.RestartsOK > 0 || s.RestartsFailed > 0 {
		lines = append(lines, RenderKeyValue("restarts",
			fmt.Sprintf("%d ok, %d failed", s.RestartsOK, s.RestartsFailed)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderLogTail() string {
	lines := []string{sectionHeaderStyle.Render("LOG")}
	for _, line := range m.logTail {
		lines = append(lines, logLineStyle.Render(truncate(line, m.width-2)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderFooter() string {
	parts := []string{"q quit", "r refresh"}
	if m.metricsAddr != "" {
		parts = append(parts, "metrics "+m.metricsAddr)
	}
	if m.controlAddr != "" {
		parts = append(parts, "control "+m.controlAddr)
	}
	return footerStyle.Render(strings.Join(parts, "  ·  "))
}

func truncate(s string, max int) string {
	if max <= 3 {
		max = 3
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

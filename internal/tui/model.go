package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tsforge/tspump/internal/engine"
	"github.com/tsforge/tspump/internal/logging"
	"github.com/tsforge/tspump/internal/stats"
)

// logTailLines is how many recent log lines the dashboard shows.
const logTailLines = 8

// TickMsg is sent periodically to refresh the display.
type TickMsg time.Time

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// SnapshotSource provides a consistent point-in-time view of the pipeline.
type SnapshotSource interface {
	Snapshot() engine.Status
}

// Config holds TUI configuration.
type Config struct {
	Version     string
	Chain       string
	MetricsAddr string
	ControlAddr string

	Pipeline SnapshotSource
	Stats    *stats.FlowStats
	Logs     *logging.RingWriter
}

// Model represents the TUI state.
type Model struct {
	version     string
	chain       string
	metricsAddr string
	controlAddr string

	pipeline SnapshotSource
	stats    *stats.FlowStats
	logs     *logging.RingWriter

	status     engine.Status
	summary    stats.Summary
	logTail    []string
	lastUpdate time.Time

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		version:     cfg.Version,
		chain:       cfg.Chain,
		metricsAddr: cfg.MetricsAddr,
		controlAddr: cfg.ControlAddr,
		pipeline:    cfg.Pipeline,
		stats:       cfg.Stats,
		logs:        cfg.Logs,
		width:       80,
		height:      24,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m = m.refresh()
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh pulls a fresh snapshot, stats summary and log tail.
func (m Model) refresh() Model {
	if m.pipeline != nil {
		m.status = m.pipeline.Snapshot()
	}
	if m.stats != nil {
		m.summary = m.stats.Summarize()
	}
	if m.logs != nil {
		m.logTail = m.logs.RecentLines(logTailLines)
	}
	m.lastUpdate = time.Now()
	return m
}

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	mm := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, mm, s)
}

// formatCount formats a packet count with K/M suffixes.
func formatCount(n uint64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatBitrate formats bits per second with kb/s and Mb/s suffixes.
func formatBitrate(bps uint64) string {
	if bps == 0 {
		return "-"
	}
	if bps >= 1_000_000 {
		return fmt.Sprintf("%.2f Mb/s", float64(bps)/1_000_000)
	}
	if bps >= 1_000 {
		return fmt.Sprintf("%.1f kb/s", float64(bps)/1_000)
	}
	return fmt.Sprintf("%d b/s", bps)
}

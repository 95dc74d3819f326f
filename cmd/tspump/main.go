// Package main provides the tspump CLI entry point.
//
// tspump moves fixed-size transport stream packets through a chain of
// stages (one input, any number of filters, one output) over a shared
// circular buffer, with live per-stage restart and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tsforge/tspump/internal/config"
	"github.com/tsforge/tspump/internal/control"
	"github.com/tsforge/tspump/internal/engine"
	"github.com/tsforge/tspump/internal/logging"
	"github.com/tsforge/tspump/internal/metrics"
	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/stages"
	"github.com/tsforge/tspump/internal/stats"
	"github.com/tsforge/tspump/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/tspump
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("tspump %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Handle --status mode: query a running instance and exit
	if cfg.StatusURL != "" {
		report, err := metrics.NewStatusScraper().Scrape(cfg.StatusURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying %s: %v\n", cfg.StatusURL, err)
			return 1
		}
		fmt.Print(report.Format())
		return 0
	}

	registry := stage.NewRegistry()
	stages.RegisterBuiltins(registry)

	// Handle --list-stages mode
	if cfg.ListStages {
		printStageList(registry)
		return 0
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	specs := buildSpecs(cfg)

	// Handle --print-chain mode
	if cfg.PrintChain {
		printChain(cfg, specs)
		return 0
	}

	// Initialize logger
	// When the TUI owns the terminal, logs go to an in-memory ring the
	// dashboard renders as a tail.
	var logger *slog.Logger
	var logRing *logging.RingWriter
	if cfg.TUIEnabled {
		logRing = logging.NewRingWriter()
		logger = logging.NewLoggerTo(logRing, "text", cfg.LogLevel, cfg.Verbose)
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	logger.Info("starting",
		"version", version,
		"chain", chainString(specs),
		"buffer_packets", cfg.BufferPackets,
		"metrics_addr", cfg.MetricsAddr,
	)

	flow := stats.NewFlowStats()
	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version: version,
		Stages:  specs,
	})

	pipe, err := engine.New(specs, registry, engine.Options{
		BufferPackets: cfg.BufferPackets,
		MaxInputBatch: cfg.MaxInputBatch,
		Callbacks:     collector.Callbacks().Merge(flow.Callbacks()),
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building pipeline: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, logger)
	if err := metricsSrv.Start(); err != nil {
		logger.Error("metrics_server_failed", "error", err)
		return 1
	}
	defer shutdownServer(metricsSrv.Shutdown, logger, "metrics")

	if cfg.ControlAddr != "" {
		controlSrv := control.NewServer(cfg.ControlAddr, pipe, logger)
		if err := controlSrv.Start(); err != nil {
			logger.Error("control_server_failed", "error", err)
			return 1
		}
		defer shutdownServer(controlSrv.Shutdown, logger, "control")
	}

	go collector.Poll(ctx, time.Second, pipe.Snapshot)

	var runErr error
	if cfg.TUIEnabled {
		runErr = runWithDashboard(ctx, cancel, cfg, pipe, flow, logRing, logger)
	} else {
		runErr = pipe.Run(ctx)
	}

	if cfg.StatsEnabled {
		fmt.Println(flow.Summarize().Format())
	}

	if runErr != nil {
		logger.Error("pipeline_failed", "error", runErr)
		return 1
	}
	return 0
}

// runWithDashboard runs the pipeline alongside the terminal dashboard.
// Whichever finishes first takes the other down with it.
func runWithDashboard(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, pipe *engine.Pipeline, flow *stats.FlowStats, logRing *logging.RingWriter, logger *slog.Logger) error {
	model := tui.New(tui.Config{
		Version:     version,
		Chain:       chainString(buildSpecs(cfg)),
		MetricsAddr: cfg.MetricsAddr,
		ControlAddr: cfg.ControlAddr,
		Pipeline:    pipe,
		Stats:       flow,
		Logs:        logRing,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	pipeDone := make(chan error, 1)
	go func() {
		err := pipe.Run(ctx)
		pipeDone <- err
		tui.SendQuit(program)
	}()

	if _, err := program.Run(); err != nil {
		logger.Error("dashboard_failed", "error", err)
	}

	// The user quit the dashboard, or the pipeline already finished.
	cancel()
	return <-pipeDone
}

// buildSpecs converts the parsed chain into engine stage specs.
func buildSpecs(cfg *config.Config) []engine.StageSpec {
	refs := cfg.Chain()
	specs := make([]engine.StageSpec, len(refs))
	for i, ref := range refs {
		specs[i] = engine.StageSpec{
			Type:    kindToType(ref.Kind),
			Name:    ref.Name,
			Args:    ref.Args,
			Timeout: cfg.WaitTimeout,
		}
	}
	return specs
}

func kindToType(kind string) stage.Type {
	switch kind {
	case config.KindInput:
		return stage.TypeInput
	case config.KindOutput:
		return stage.TypeOutput
	default:
		return stage.TypeFilter
	}
}

// chainString renders the chain as "input -> filter -> output".
func chainString(specs []engine.StageSpec) string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return strings.Join(names, " -> ")
}

// printChain prints the resolved stage chain with per-stage arguments.
func printChain(cfg *config.Config, specs []engine.StageSpec) {
	fmt.Printf("buffer: %d packets, max input batch: %d\n", cfg.BufferPackets, cfg.MaxInputBatch)
	for i, s := range specs {
		line := fmt.Sprintf("  %d. %-7s %s", i, s.Type, s.Name)
		if len(s.Args) > 0 {
			line += " " + strings.Join(s.Args, " ")
		}
		fmt.Println(line)
	}
}

// printStageList prints the registered stages by type.
func printStageList(registry *stage.Registry) {
	for _, typ := range []stage.Type{stage.TypeInput, stage.TypeFilter, stage.TypeOutput} {
		fmt.Printf("%s stages:\n", typ)
		for _, name := range registry.Names(typ) {
			fmt.Printf("  %s\n", name)
		}
	}
}

func shutdownServer(shutdown func(context.Context) error, logger *slog.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("server_shutdown_error", "server", name, "error", err)
	}
}

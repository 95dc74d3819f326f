package config

import (
	"flag"
	"fmt"
	"os"
)

// Chain markers on the command line. Everything from the first marker
// onward belongs to the stage chain, not to the flag package.
const (
	markerInput  = "-I"
	markerFilter = "-P"
	markerOutput = "-O"
)

// ParseFlags parses os.Args and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses the given arguments and returns a Config.
// Arguments split into two parts: ordinary flags first, then the stage
// chain introduced by -I, -P or -O:
//
//	tspump [flags] -I <input> [args...] [-P <filter> [args...]]... -O <output> [args...]
func ParseArgs(args []string) (*Config, error) {
	cfg := DefaultConfig()

	flagArgs, chainArgs := splitChain(args)

	fs := flag.NewFlagSet("tspump", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }

	// Buffer
	fs.IntVar(&cfg.BufferPackets, "buffer-packets", cfg.BufferPackets, "Global buffer size in packets")
	fs.IntVar(&cfg.MaxInputBatch, "max-input-batch", cfg.MaxInputBatch, "Max packets per input read for real-time inputs")
	fs.DurationVar(&cfg.WaitTimeout, "wait-timeout", cfg.WaitTimeout, "Max time a stage waits for packets (0 = forever)")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	fs.StringVar(&cfg.ControlAddr, "control", cfg.ControlAddr, "Control API address (empty = disabled)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)

	// Dashboard / stats
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.BoolVar(&cfg.StatsEnabled, "stats", cfg.StatsEnabled, "Print hand-off latency and batch size percentiles at exit")

	// Diagnostic modes
	fs.BoolVar(&cfg.PrintChain, "print-chain", cfg.PrintChain, "Print the resolved stage chain and exit")
	fs.StringVar(&cfg.StatusURL, "status", cfg.StatusURL, "Query the metrics endpoint of a running instance and exit")
	fs.BoolVar(&cfg.ListStages, "list-stages", cfg.ListStages, "List available stages and exit")

	if err := fs.Parse(flagArgs); err != nil {
		return nil, err
	}

	if len(fs.Args()) > 0 {
		return nil, fmt.Errorf("unexpected argument %q before stage chain", fs.Args()[0])
	}

	if err := parseChain(cfg, chainArgs); err != nil {
		return nil, err
	}

	return cfg, nil
}

// splitChain returns the flag portion and the chain portion of args.
func splitChain(args []string) (flagArgs, chainArgs []string) {
	for i, a := range args {
		if isMarker(a) {
			return args[:i], args[i:]
		}
	}
	return args, nil
}

func isMarker(s string) bool {
	return s == markerInput || s == markerFilter || s == markerOutput
}

// parseChain fills cfg.Input, cfg.Filters and cfg.Output from the chain
// portion of the command line. Stages keep defaults when omitted.
func parseChain(cfg *Config, args []string) error {
	var haveInput, haveOutput bool

	for i := 0; i < len(args); {
		marker := args[i]
		i++

		if i >= len(args) || isMarker(args[i]) {
			return fmt.Errorf("%s requires a stage name", marker)
		}
		name := args[i]
		i++

		var stageArgs []string
		for i < len(args) && !isMarker(args[i]) {
			stageArgs = append(stageArgs, args[i])
			i++
		}

		switch marker {
		case markerInput:
			if haveInput {
				return fmt.Errorf("only one input stage (-I) is allowed")
			}
			haveInput = true
			cfg.Input = StageRef{Kind: KindInput, Name: name, Args: stageArgs}
		case markerFilter:
			cfg.Filters = append(cfg.Filters, StageRef{Kind: KindFilter, Name: name, Args: stageArgs})
		case markerOutput:
			if haveOutput {
				return fmt.Errorf("only one output stage (-O) is allowed")
			}
			haveOutput = true
			cfg.Output = StageRef{Kind: KindOutput, Name: name, Args: stageArgs}
		}
	}

	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tspump - transport stream packet pump

Usage:
  tspump [flags] -I <input> [args...] [-P <filter> [args...]]... -O <output> [args...]

The chain runs one input, any number of filters, and one output over a
shared packet buffer. Omitting -I reads from stdin; omitting -O writes
to stdout.

Flags:
`)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  # Copy a file, dropping null packets
  tspump -I file input.ts -P skip -pid 8191 -O file output.ts

  # Synthetic load with a live dashboard
  tspump -tui -I random -bitrate 10000000 -O drop

  # Restart the first filter of a running instance
  curl -X POST 'http://localhost:17096/restart?stage=1'

`)
}

// Package config provides configuration management for tspump.
package config

import "time"

// Stage kinds as they appear on the command line.
const (
	KindInput  = "input"
	KindFilter = "filter"
	KindOutput = "output"
)

// StageRef names one stage of the processing chain with its arguments.
type StageRef struct {
	Kind string   `json:"kind"`
	Name string   `json:"name"`
	Args []string `json:"args"`
}

// Config holds all configuration options for the pump.
type Config struct {
	// Processing chain
	Input   StageRef   `json:"input"`
	Filters []StageRef `json:"filters"`
	Output  StageRef   `json:"output"`

	// Buffer
	BufferPackets int           `json:"buffer_packets"`
	MaxInputBatch int           `json:"max_input_batch"`
	WaitTimeout   time.Duration `json:"wait_timeout"` // 0 = wait forever

	// Observability
	MetricsAddr string `json:"metrics_addr"`
	ControlAddr string `json:"control_addr"` // empty = control API disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`

	// Dashboard
	TUIEnabled bool `json:"tui"`

	// End-of-run latency/batch summary
	StatsEnabled bool `json:"stats"`

	// Diagnostic modes
	PrintChain bool   `json:"print_chain"`
	StatusURL  string `json:"status_url"` // query a running instance and exit
	ListStages bool   `json:"list_stages"`
}

// DefaultConfig returns a Config with sensible defaults.
// The default chain reads a transport stream from stdin and
// writes it unchanged to stdout.
func DefaultConfig() *Config {
	return &Config{
		Input:  StageRef{Kind: KindInput, Name: "file"},
		Output: StageRef{Kind: KindOutput, Name: "file"},

		BufferPackets: 1000,
		MaxInputBatch: 128,
		WaitTimeout:   0,

		MetricsAddr: "0.0.0.0:17095",
		ControlAddr: "",
		Verbose:     false,
		LogFormat:   "json",
		LogLevel:    "info",

		TUIEnabled:   false,
		StatsEnabled: false,
	}
}

// Chain returns the full stage chain in processing order.
func (c *Config) Chain() []StageRef {
	chain := make([]StageRef, 0, len(c.Filters)+2)
	chain = append(chain, c.Input)
	chain = append(chain, c.Filters...)
	chain = append(chain, c.Output)
	return chain
}

// Package engine implements the packet pipeline execution core: the shared
// circular packet buffer, the per-stage executors with their wait/pass
// hand-off protocol, backward abort propagation over the stage ring, and
// live per-stage restart.
package engine

// State represents the lifecycle state of a stage executor.
type State int

const (
	// StateIdle is the initial state, before the buffer is assigned.
	StateIdle State = iota

	// StateRunning indicates the stage loop is processing packets.
	StateRunning

	// StateRestarting indicates the stage is replacing its processing
	// instance while the rest of the pipeline keeps running.
	StateRestarting

	// StateStopping indicates the stage loop is unwinding.
	StateStopping

	// StateStopped is the terminal state, after the stage loop exited.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the stage loop has exited for good.
func (s State) IsTerminal() bool {
	return s == StateStopped
}

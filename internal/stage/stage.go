// Package stage defines the contract between the pipeline engine and the
// processing stages it drives. The engine calls a stage only between its
// own suspension points and never concurrently with itself, and it never
// holds the pipeline coordination lock across a stage call.
package stage

import (
	"github.com/tsforge/tspump/internal/ts"
)

// Type identifies the position of a stage in the chain.
type Type int

const (
	// TypeInput produces packets into the pipeline.
	TypeInput Type = iota

	// TypeFilter transforms packets in place.
	TypeFilter

	// TypeOutput consumes packets out of the pipeline.
	TypeOutput
)

// String returns a human-readable name for the stage type.
func (t Type) String() string {
	switch t {
	case TypeInput:
		return "input"
	case TypeFilter:
		return "filter"
	case TypeOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Status is the verdict of a filter stage on one packet.
type Status int

const (
	// StatusOK keeps the packet.
	StatusOK Status = iota

	// StatusDrop replaces the packet with a stuffing packet.
	StatusDrop

	// StatusStop makes the filter's executor terminate after this batch.
	StatusStop
)

// Stage is the lifecycle common to all stage kinds.
type Stage interface {
	// Start (re)initializes the stage before packets flow. Called once
	// before the pipeline starts and again on every restart.
	Start() error

	// Stop releases stage resources. Called when the executor terminates
	// and before every restart.
	Stop() error
}

// Input produces packets.
type Input interface {
	Stage

	// Receive fills up to len(pkts) packet slots and returns the number
	// produced. Zero with a nil error signals end of input.
	Receive(pkts []ts.Packet) (int, error)

	// IsRealTime reports whether the source paces itself on a live clock.
	// Real-time inputs are drained in smaller batches to bound latency.
	IsRealTime() bool
}

// Filter transforms packets inside its window.
type Filter interface {
	Stage

	// ProcessPacket examines or rewrites one packet and its metadata.
	ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) Status
}

// Output consumes packets.
type Output interface {
	Stage

	// Send emits the packets and returns the number actually emitted.
	// A short count with a nil error is treated as an output failure.
	Send(pkts []ts.Packet, meta []ts.Metadata) (int, error)
}

// TimeoutHandler is optionally implemented by stages that want a say when
// their executor's wait for packets times out. Returning true resumes
// waiting; returning false makes the timeout terminal for this wait.
type TimeoutHandler interface {
	OnTimeout() bool
}

// BitrateProvider is optionally implemented by inputs that can evaluate
// the bitrate of their stream.
type BitrateProvider interface {
	Bitrate() (ts.Bitrate, ts.BitrateConfidence)
}

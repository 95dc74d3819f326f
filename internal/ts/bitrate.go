package ts

import "fmt"

// Bitrate is a transport stream bitrate in bits per second.
type Bitrate uint64

// String formats the bitrate for logs.
func (b Bitrate) String() string {
	return fmt.Sprintf("%d b/s", uint64(b))
}

// BitrateConfidence qualifies how reliable a propagated bitrate estimate is.
// Higher values win when two estimates meet.
type BitrateConfidence int

const (
	// ConfidenceLow is a guess, typically a hardcoded default.
	ConfidenceLow BitrateConfidence = iota

	// ConfidencePCR is evaluated from the stream's own clock references.
	ConfidencePCR

	// ConfidenceClock is evaluated against the system clock of a
	// real-time input.
	ConfidenceClock

	// ConfidenceOverride is an explicit user-specified value.
	ConfidenceOverride
)

// String returns a human-readable name for the confidence level.
func (c BitrateConfidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidencePCR:
		return "pcr"
	case ConfidenceClock:
		return "clock"
	case ConfidenceOverride:
		return "override"
	default:
		return "unknown"
	}
}

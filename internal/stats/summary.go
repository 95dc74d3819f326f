package stats

import (
	"fmt"
	"strings"
	"time"
)

// Summary is a point-in-time digest of the collected flow statistics.
type Summary struct {
	Duration time.Duration

	Handoffs uint64
	Packets  uint64
	BatchP50 float64
	BatchP95 float64
	BatchP99 float64
	BatchMax int

	Waits   uint64
	WaitP50 time.Duration
	WaitP95 time.Duration
	WaitP99 time.Duration
	WaitMax time.Duration

	RestartsOK     uint64
	RestartsFailed uint64
}

// Summarize computes the current summary.
func (s *FlowStats) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Duration:       time.Since(s.start),
		Handoffs:       s.batchCount,
		Packets:        s.batchSum,
		BatchMax:       s.batchMax,
		Waits:          s.waitCount,
		WaitMax:        s.waitMax,
		RestartsOK:     s.restartsOK,
		RestartsFailed: s.restartsFailed,
	}

	if s.batchCount > 0 {
		sum.BatchP50 = s.batchDigest.Quantile(0.50)
		sum.BatchP95 = s.batchDigest.Quantile(0.95)
		sum.BatchP99 = s.batchDigest.Quantile(0.99)
	}
	if s.waitCount > 0 {
		sum.WaitP50 = secondsToDuration(s.waitDigest.Quantile(0.50))
		sum.WaitP95 = secondsToDuration(s.waitDigest.Quantile(0.95))
		sum.WaitP99 = secondsToDuration(s.waitDigest.Quantile(0.99))
	}

	return sum
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// Format renders the summary for terminal output at exit.
func (s Summary) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Flow summary (%s)\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "  packets:   %d in %d hand-offs\n", s.Packets, s.Handoffs)
	if s.Handoffs > 0 {
		fmt.Fprintf(&b, "  batch:     p50=%.0f p95=%.0f p99=%.0f max=%d packets\n",
			s.BatchP50, s.BatchP95, s.BatchP99, s.BatchMax)
	}
	if s.Waits > 0 {
		fmt.Fprintf(&b, "  wait:      p50=%s p95=%s p99=%s max=%s\n",
			s.WaitP50.Round(time.Microsecond),
			s.WaitP95.Round(time.Microsecond),
			s.WaitP99.Round(time.Microsecond),
			s.WaitMax.Round(time.Microsecond))
	}
	if s.RestartsOK+s.RestartsFailed > 0 {
		fmt.Fprintf(&b, "  restarts:  %d ok, %d failed\n", s.RestartsOK, s.RestartsFailed)
	}

	return b.String()
}

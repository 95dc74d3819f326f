// Package stats aggregates pipeline flow statistics: hand-off batch
// sizes and the time executors spend blocked waiting for packets.
// Percentiles come from T-Digest sketches, so memory stays constant no
// matter how long the pump runs.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/tsforge/tspump/internal/engine"
)

// FlowStats collects flow events from executor callbacks.
//
// Thread-safe: callbacks arrive from every executor goroutine.
type FlowStats struct {
	mu    sync.Mutex
	start time.Time

	batchDigest *tdigest.TDigest
	batchCount  uint64
	batchSum    uint64
	batchMax    int

	waitDigest *tdigest.TDigest
	waitCount  uint64
	waitSum    time.Duration
	waitMax    time.Duration

	restartsOK     uint64
	restartsFailed uint64
}

// NewFlowStats creates an empty aggregator.
func NewFlowStats() *FlowStats {
	return &FlowStats{
		start:       time.Now(),
		batchDigest: tdigest.NewWithCompression(100),
		waitDigest:  tdigest.NewWithCompression(100),
	}
}

// RecordHandoff records one non-empty downstream hand-off.
func (s *FlowStats) RecordHandoff(count int) {
	if count <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batchDigest.Add(float64(count), 1)
	s.batchCount++
	s.batchSum += uint64(count)
	if count > s.batchMax {
		s.batchMax = count
	}
}

// RecordWait records the time one executor spent blocked in a wait.
func (s *FlowStats) RecordWait(blocked time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitDigest.Add(blocked.Seconds(), 1)
	s.waitCount++
	s.waitSum += blocked
	if blocked > s.waitMax {
		s.waitMax = blocked
	}
}

// RecordRestart records the outcome of one restart attempt.
func (s *FlowStats) RecordRestart(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		s.restartsOK++
	} else {
		s.restartsFailed++
	}
}

// Callbacks returns executor callbacks feeding this aggregator.
func (s *FlowStats) Callbacks() engine.Callbacks {
	return engine.Callbacks{
		OnHandoff: func(index, count int) {
			s.RecordHandoff(count)
		},
		OnWait: func(index int, blocked time.Duration, count int) {
			s.RecordWait(blocked)
		},
		OnRestart: func(index int, name string, success bool) {
			s.RecordRestart(success)
		},
	}
}

// Elapsed returns the time since the aggregator was created.
func (s *FlowStats) Elapsed() time.Duration {
	return time.Since(s.start)
}

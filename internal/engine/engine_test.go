package engine

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/tsforge/tspump/internal/logging"
	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// =============================================================================
// Test stages
// =============================================================================

// testInput produces a fixed number of sync-byte packets, then signals
// end of input.
type testInput struct {
	mu        sync.Mutex
	remaining int
	realTime  bool
	failStart bool
	starts    int
	stops     int
}

func (i *testInput) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.failStart {
		return errors.New("test input refuses to start")
	}
	i.starts++
	return nil
}

func (i *testInput) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stops++
	return nil
}

func (i *testInput) Receive(pkts []ts.Packet) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := len(pkts)
	if n > i.remaining {
		n = i.remaining
	}
	for j := 0; j < n; j++ {
		pkts[j] = ts.NullPacket
	}
	i.remaining -= n
	return n, nil
}

func (i *testInput) IsRealTime() bool { return i.realTime }

// testFilter counts processed packets and can drop or stop on demand.
type testFilter struct {
	mu        sync.Mutex
	processed int
	verdict   func(n int) stage.Status
	failStart bool
	starts    int
	stops     int
}

func (f *testFilter) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart {
		return errors.New("test filter refuses to start")
	}
	f.starts++
	return nil
}

func (f *testFilter) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *testFilter) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) stage.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed++
	if f.verdict != nil {
		return f.verdict(f.processed)
	}
	return stage.StatusOK
}

func (f *testFilter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed
}

// testOutput counts received packets.
type testOutput struct {
	mu       sync.Mutex
	received int
	sendErr  error
	starts   int
	stops    int
}

func (o *testOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	return nil
}

func (o *testOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stops++
	return nil
}

func (o *testOutput) Send(pkts []ts.Packet, meta []ts.Metadata) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sendErr != nil {
		return 0, o.sendErr
	}
	o.received += len(pkts)
	return len(pkts), nil
}

func (o *testOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.received
}

// =============================================================================
// Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return logging.NewLoggerWithWriter(io.Discard, "text", "error")
}

// testRing builds a 3-stage ring (input, filter, output) around a fresh
// buffer without starting any stage goroutine, for direct protocol tests.
func testRing(t *testing.T, capacity int) []*Executor {
	t.Helper()

	reg := stage.NewRegistry()
	reg.Register(stage.TypeInput, "in", func(args []string, l *slog.Logger) (stage.Stage, error) {
		return &testInput{remaining: capacity}, nil
	})
	reg.Register(stage.TypeFilter, "flt", func(args []string, l *slog.Logger) (stage.Stage, error) {
		return &testFilter{}, nil
	})
	reg.Register(stage.TypeOutput, "out", func(args []string, l *slog.Logger) (stage.Stage, error) {
		return &testOutput{}, nil
	})

	logger := testLogger()
	coord := NewCoordinator()
	buf, err := NewPacketBuffer(capacity)
	if err != nil {
		t.Fatalf("NewPacketBuffer(%d): %v", capacity, err)
	}

	ring := make([]*Executor, 3)
	ring[0] = newExecutor(coord, reg, stage.TypeInput, "in", nil, &testInput{}, 0, ring, 0, Callbacks{}, logger)
	ring[1] = newExecutor(coord, reg, stage.TypeFilter, "flt", nil, &testFilter{}, 1, ring, 0, Callbacks{}, logger)
	ring[2] = newExecutor(coord, reg, stage.TypeOutput, "out", nil, &testOutput{}, 2, ring, 0, Callbacks{}, logger)

	ring[0].InitBuffer(buf, 0, capacity, false, false, 0, ts.ConfidenceLow)
	ring[1].InitBuffer(buf, 0, 0, false, false, 0, ts.ConfidenceLow)
	ring[2].InitBuffer(buf, 0, 0, false, false, 0, ts.ConfidenceLow)
	return ring
}

// occupancy sums the window counts across the ring.
func occupancy(ring []*Executor) int {
	total := 0
	for _, e := range ring {
		e.coord.mu.Lock()
		total += e.count
		e.coord.mu.Unlock()
	}
	return total
}

package engine

import (
	"testing"
	"time"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

func TestPassPacketsConservesOccupancy(t *testing.T) {
	ring := testRing(t, 100)
	in, flt, out := ring[0], ring[1], ring[2]

	if got := occupancy(ring); got != 100 {
		t.Fatalf("initial occupancy = %d, want 100", got)
	}

	// Input produces 10 packets.
	if !in.PassPackets(10, 0, ts.ConfidenceLow, false, false) {
		t.Fatal("input PassPackets returned stop")
	}
	if got := occupancy(ring); got != 100 {
		t.Fatalf("occupancy after input hand-off = %d, want 100", got)
	}

	// Filter sees all 10 at once.
	first, count, _, _, _, _, _ := flt.WaitWork(1)
	if first != 0 || count != 10 {
		t.Fatalf("filter WaitWork = (%d, %d), want (0, 10)", first, count)
	}
	if !flt.PassPackets(10, 0, ts.ConfidenceLow, false, false) {
		t.Fatal("filter PassPackets returned stop")
	}

	// Output consumes them and frees input space through the ring.
	first, count, _, _, _, _, _ = out.WaitWork(1)
	if first != 0 || count != 10 {
		t.Fatalf("output WaitWork = (%d, %d), want (0, 10)", first, count)
	}
	if !out.PassPackets(10, 0, ts.ConfidenceLow, false, false) {
		t.Fatal("output PassPackets returned stop")
	}

	// Final state: all free space is back with the input stage.
	snap := map[string]int{}
	for _, e := range ring {
		e.coord.mu.Lock()
		snap[e.name] = e.count
		e.coord.mu.Unlock()
	}
	if snap["in"] != 100 || snap["flt"] != 0 || snap["out"] != 0 {
		t.Fatalf("final counts = %v, want in=100 flt=0 out=0", snap)
	}
}

func TestWaitWorkStopsAtWrapBoundary(t *testing.T) {
	ring := testRing(t, 100)
	flt := ring[1]

	// Window of 20 packets starting at slot 90: 10 contiguous before
	// the wrap, 10 after.
	flt.coord.mu.Lock()
	flt.first = 90
	flt.count = 20
	ring[0].count = 80
	flt.coord.mu.Unlock()

	first, count, _, _, _, _, _ := flt.WaitWork(1)
	if first != 90 || count != 10 {
		t.Fatalf("WaitWork(1) = (%d, %d), want (90, 10)", first, count)
	}

	// A minimum that cannot fit contiguously yields the whole window.
	_, count, _, _, _, _, _ = flt.WaitWork(15)
	if count != 20 {
		t.Fatalf("WaitWork(15) count = %d, want 20", count)
	}
}

func TestWaitWorkCapsOversizedMinimum(t *testing.T) {
	ring := testRing(t, 50)
	flt := ring[1]

	flt.coord.mu.Lock()
	flt.count = 50
	ring[0].count = 0
	flt.coord.mu.Unlock()

	// Requesting more than the buffer holds must not block forever: the
	// minimum is silently capped to the capacity.
	done := make(chan int, 1)
	go func() {
		_, count, _, _, _, _, _ := flt.WaitWork(1000)
		done <- count
	}()

	select {
	case count := <-done:
		if count != 50 {
			t.Fatalf("WaitWork(1000) count = %d, want 50", count)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitWork(1000) blocked despite a full window")
	}
}

func TestAbortPropagatesBackwardOnly(t *testing.T) {
	ring := testRing(t, 100)
	in, flt, out := ring[0], ring[1], ring[2]

	// The filter aborts. Its ring predecessor (input) must observe it,
	// its successor (output) must not.
	flt.SetAbort()

	in.coord.mu.Lock()
	in.count = 5 // pretend free space so WaitWork does not block
	flt.count = 0
	in.coord.mu.Unlock()

	_, _, _, _, _, aborted, _ := in.WaitWork(1)
	if !aborted {
		t.Fatal("input did not observe the filter abort")
	}

	out.coord.mu.Lock()
	out.count = 5
	out.coord.mu.Unlock()
	_, _, _, _, _, aborted, _ = out.WaitWork(1)
	if aborted {
		t.Fatal("output observed an abort it has no successor link to")
	}
}

func TestOutputAbortDoesNotReachInputForward(t *testing.T) {
	ring := testRing(t, 100)
	in, out := ring[0], ring[2]

	// Input aborting is the output's ring successor state, but the
	// output->input link is suppressed: the output never infers abort
	// from the input stage.
	in.SetAbort()

	out.coord.mu.Lock()
	out.count = 1
	in.count = 99
	out.coord.mu.Unlock()

	_, _, _, _, _, aborted, _ := out.WaitWork(1)
	if aborted {
		t.Fatal("output inferred abort from the input stage")
	}
	if out.PassPackets(1, 0, ts.ConfidenceLow, false, false) != true {
		t.Fatal("output PassPackets stopped on suppressed abort")
	}
}

func TestAbortedFilterReleasesBlockedOutput(t *testing.T) {
	ring := testRing(t, 100)
	flt, out := ring[1], ring[2]

	// Output blocks waiting for packets that never come.
	type result struct {
		count int
		end   bool
	}
	done := make(chan result, 1)
	go func() {
		_, count, _, _, end, _, _ := out.WaitWork(1)
		done <- result{count, end}
	}()

	// Give the goroutine time to block, then abort the filter and let
	// it perform its unwind hand-off, as its loop does on termination:
	// end of input downstream, abort upstream.
	time.Sleep(50 * time.Millisecond)
	flt.SetAbort()
	flt.PassPackets(0, 0, ts.ConfidenceLow, true, true)

	select {
	case r := <-done:
		if r.count != 0 || !r.end {
			t.Fatalf("output woke with (count=%d, end=%v), want (0, true)", r.count, r.end)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("output stayed blocked across a predecessor abort")
	}
}

func TestSetAbortWakesOwnWait(t *testing.T) {
	ring := testRing(t, 100)
	flt := ring[1]

	done := make(chan bool, 1)
	go func() {
		_, _, _, _, _, aborted, _ := flt.WaitWork(1)
		done <- aborted
	}()

	time.Sleep(50 * time.Millisecond)
	flt.SetAbort()

	select {
	case aborted := <-done:
		if !aborted {
			t.Fatal("externally aborted stage did not observe its own abort")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("externally aborted stage stayed blocked in WaitWork")
	}
}

func TestEndOfInputLatches(t *testing.T) {
	ring := testRing(t, 100)
	in, flt := ring[0], ring[1]

	in.PassPackets(3, 0, ts.ConfidenceLow, true, false)
	// A later hand-off without end-of-input must not clear the latch.
	in.PassPackets(0, 0, ts.ConfidenceLow, false, false)

	_, count, _, _, end, _, _ := flt.WaitWork(1)
	if !end {
		t.Fatal("end of input was cleared by a later hand-off")
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestEndOfInputDeferredUntilWindowFullyVisible(t *testing.T) {
	ring := testRing(t, 100)
	in, flt := ring[0], ring[1]

	// Window wraps: 5 packets before the boundary, 3 after, with end of
	// input signaled. The contiguous batch does not cover the window, so
	// end of input must not be reported yet.
	in.coord.mu.Lock()
	flt.first = 95
	flt.count = 8
	in.count = 92
	flt.inputEnd = true
	in.coord.mu.Unlock()

	_, count, _, _, end, _, _ := flt.WaitWork(1)
	if count != 5 {
		t.Fatalf("count = %d, want 5 (up to wrap)", count)
	}
	if end {
		t.Fatal("end of input reported before the window was fully visible")
	}
}

func TestPassPacketsForwardsBitrate(t *testing.T) {
	ring := testRing(t, 100)
	in, flt := ring[0], ring[1]

	in.PassPackets(4, 38_000_000, ts.ConfidencePCR, false, false)

	_, _, bitrate, confidence, _, _, _ := flt.WaitWork(1)
	if bitrate != 38_000_000 || confidence != ts.ConfidencePCR {
		t.Fatalf("bitrate = %v/%v, want 38000000/pcr", bitrate, confidence)
	}
}

func TestWaitWorkTimeout(t *testing.T) {
	ring := testRing(t, 100)
	flt := ring[1]
	flt.waitTimeout = 30 * time.Millisecond
	flt.st = &decliningFilter{}

	start := time.Now()
	_, count, _, _, _, _, timedOut := flt.WaitWork(1)
	if !timedOut {
		t.Fatal("expected a terminal timeout")
	}
	if count != 0 {
		t.Fatalf("count = %d on timeout, want 0", count)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("returned after %v, before the timeout elapsed", elapsed)
	}
}

func TestWaitWorkTimeoutHandlerResumes(t *testing.T) {
	ring := testRing(t, 100)
	flt := ring[1]
	flt.waitTimeout = 20 * time.Millisecond
	h := &resumingFilter{}
	flt.st = h

	// The handler keeps the wait alive; packets arriving later must
	// still be delivered.
	go func() {
		time.Sleep(60 * time.Millisecond)
		ring[0].PassPackets(7, 0, ts.ConfidenceLow, false, false)
	}()

	_, count, _, _, _, _, timedOut := flt.WaitWork(1)
	if timedOut {
		t.Fatal("timeout reported although the handler resumed waiting")
	}
	if count != 7 {
		t.Fatalf("count = %d, want 7", count)
	}
	if h.calls() == 0 {
		t.Fatal("timeout handler was never invoked")
	}
}

// decliningFilter refuses to keep waiting on timeout.
type decliningFilter struct{ testFilter }

func (d *decliningFilter) OnTimeout() bool { return false }

// resumingFilter keeps waiting on timeout and counts invocations.
type resumingFilter struct {
	testFilter
	timeouts int
}

func (r *resumingFilter) OnTimeout() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts++
	return true
}

func (r *resumingFilter) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeouts
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StateRestarting, "restarting"},
		{StateStopping, "stopping"},
		{StateStopped, "stopped"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
	if !StateStopped.IsTerminal() || StateRunning.IsTerminal() {
		t.Error("IsTerminal misclassified a state")
	}
}

var _ stage.TimeoutHandler = (*decliningFilter)(nil)

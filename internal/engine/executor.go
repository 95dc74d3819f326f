package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// Executor drives one pipeline stage. It owns a contiguous window
// [first, first+count) of the shared packet buffer, a wake condition on
// the coordinator lock, and the stage's processing loop.
//
// For the input stage the window is the free space it may fill; for every
// other stage it is the packets waiting to be processed. The occupancy
// invariant holds at all times: the counts of all executors sum to the
// buffer capacity.
type Executor struct {
	coord    *Coordinator
	logger   *slog.Logger
	registry *stage.Registry

	typ   stage.Type
	name  string
	index int
	ring  []*Executor

	buffer *PacketBuffer

	// Stage instance and the arguments it was built from. Replaced on
	// restart with new parameters.
	st   stage.Stage
	args []string

	// Optional maximum duration of one WaitWork. Zero means wait forever.
	waitTimeout time.Duration

	// maxBatch caps one receive call on real-time inputs. Only set on
	// the input executor.
	maxBatch int

	// Wake condition, bound to the coordinator lock.
	toDo *sync.Cond

	// Cross-stage fields, all guarded by the coordinator lock.
	first        int
	count        int
	bitrate      ts.Bitrate
	brConfidence ts.BitrateConfidence
	inputEnd     bool
	aborting     bool
	state        State
	restartData  *restartRequest

	// Session accounting, guarded by the coordinator lock. Reset when
	// the stage is restarted.
	sessionPackets uint64
	totalPackets   uint64
	restarts       int

	callbacks Callbacks
}

// Callbacks contains optional functions invoked on executor events.
// All callbacks run outside the coordinator lock unless noted.
type Callbacks struct {
	// OnStateChange is called when an executor changes lifecycle state.
	// Runs under the coordinator lock; it must not call engine operations.
	OnStateChange func(index int, name string, old, new State)

	// OnHandoff is called after each PassPackets with the packet count
	// transferred downstream. Runs under the coordinator lock.
	OnHandoff func(index int, count int)

	// OnWait is called after each WaitWork with the time spent blocked
	// and the batch size obtained.
	OnWait func(index int, blocked time.Duration, count int)

	// OnRestart is called after each processed restart attempt.
	OnRestart func(index int, name string, success bool)
}

// Merge returns callbacks invoking both c's and other's functions.
func (c Callbacks) Merge(other Callbacks) Callbacks {
	merged := c
	if other.OnStateChange != nil {
		prev := merged.OnStateChange
		merged.OnStateChange = func(index int, name string, old, new State) {
			if prev != nil {
				prev(index, name, old, new)
			}
			other.OnStateChange(index, name, old, new)
		}
	}
	if other.OnHandoff != nil {
		prev := merged.OnHandoff
		merged.OnHandoff = func(index, count int) {
			if prev != nil {
				prev(index, count)
			}
			other.OnHandoff(index, count)
		}
	}
	if other.OnWait != nil {
		prev := merged.OnWait
		merged.OnWait = func(index int, blocked time.Duration, count int) {
			if prev != nil {
				prev(index, blocked, count)
			}
			other.OnWait(index, blocked, count)
		}
	}
	if other.OnRestart != nil {
		prev := merged.OnRestart
		merged.OnRestart = func(index int, name string, success bool) {
			if prev != nil {
				prev(index, name, success)
			}
			other.OnRestart(index, name, success)
		}
	}
	return merged
}

// newExecutor wires one stage into the ring. The ring slice is shared by
// all executors of the pipeline and indexed, never linked.
func newExecutor(coord *Coordinator, reg *stage.Registry, typ stage.Type, name string, args []string, st stage.Stage, index int, ring []*Executor, timeout time.Duration, cb Callbacks, logger *slog.Logger) *Executor {
	return &Executor{
		coord:       coord,
		registry:    reg,
		typ:         typ,
		name:        name,
		args:        args,
		st:          st,
		index:       index,
		ring:        ring,
		waitTimeout: timeout,
		toDo:        coord.newCond(),
		callbacks:   cb,
		logger:      logger.With("stage", name, "index", index),
	}
}

// InitBuffer assigns the stage's initial window. It runs before any stage
// goroutine starts, so no locking is needed.
func (e *Executor) InitBuffer(buf *PacketBuffer, first, count int, inputEnd, aborted bool, bitrate ts.Bitrate, confidence ts.BitrateConfidence) {
	e.buffer = buf
	e.first = first
	e.count = count
	e.inputEnd = inputEnd
	e.aborting = aborted
	e.bitrate = bitrate
	e.brConfidence = confidence
	e.state = StateIdle
}

// WaitWork blocks the stage goroutine until at least minCount packets are
// available in its window, end of input is signaled, the ring successor is
// aborting, or the optional stage timeout elapses.
//
// The returned count never crosses the wrap boundary of the circular
// buffer when the requested minimum fits in one contiguous run; otherwise
// the stage receives whatever its window holds and must re-request after
// the wrap. The returned inputEnd is only asserted once the remaining
// window is fully visible in this batch.
func (e *Executor) WaitWork(minCount int) (first, count int, bitrate ts.Bitrate, confidence ts.BitrateConfidence, inputEnd, aborted, timedOut bool) {
	capacity := e.buffer.Count()

	// Cannot wait for more than the buffer holds.
	if minCount > capacity {
		e.logger.Debug("wait_request_capped",
			"requested", minCount,
			"capacity", capacity,
		)
		minCount = capacity
	}

	start := time.Now()

	e.coord.mu.Lock()

	next := e.next()

	for e.count < minCount && !e.inputEnd && !timedOut && !e.aborting && !next.aborting {
		if e.waitTimeout == 0 {
			e.toDo.Wait()
		} else if e.timedWait() {
			// The stage's timeout handler decides whether the wait
			// resumes or the timeout becomes terminal.
			timedOut = !e.handleTimeout()
		}
	}

	if timedOut {
		count = 0
	} else if e.first+minCount <= capacity {
		// Stop at the wrap boundary: this still satisfies the minimum.
		count = min(e.count, capacity-e.first)
	} else {
		// The minimum does not fit in one contiguous run.
		count = e.count
	}

	first = e.first
	bitrate = e.bitrate
	confidence = e.brConfidence
	inputEnd = e.inputEnd && count == e.count

	// Report our own abort and absorb the successor's, except on the
	// output stage: packets never flow from output back to input, so
	// input stalling must not be inferred from it.
	aborted = e.aborting || (e.typ != stage.TypeOutput && next.aborting)

	e.coord.mu.Unlock()

	if e.callbacks.OnWait != nil {
		e.callbacks.OnWait(e.index, time.Since(start), count)
	}
	return
}

// timedWait waits on the stage condition for at most the stage timeout.
// It returns true when the timeout elapsed before a wakeup. The
// coordinator lock is held on entry and on return; it is released for the
// duration of the wait.
func (e *Executor) timedWait() bool {
	deadline := time.Now().Add(e.waitTimeout)
	fired := false
	timer := time.AfterFunc(e.waitTimeout, func() {
		e.coord.mu.Lock()
		fired = true
		e.toDo.Broadcast()
		e.coord.mu.Unlock()
	})
	e.toDo.Wait()
	timer.Stop()
	return fired && time.Now().After(deadline)
}

// handleTimeout consults the stage's timeout handler, outside the
// coordinator lock. Stages without a handler keep waiting.
func (e *Executor) handleTimeout() bool {
	h, ok := e.st.(stage.TimeoutHandler)
	if !ok {
		return true
	}
	e.coord.mu.Unlock()
	cont := h.OnTimeout()
	e.coord.mu.Lock()
	return cont
}

// PassPackets transfers count packets from the front of this stage's
// window to the back of its ring successor's window and forwards the
// bitrate, end-of-input and abort conditions. It returns false exactly
// when the calling stage loop must stop.
func (e *Executor) PassPackets(count int, bitrate ts.Bitrate, confidence ts.BitrateConfidence, inputEnd, aborted bool) bool {
	e.coord.mu.Lock()
	defer e.coord.mu.Unlock()

	next := e.next()

	// Remove count packets from the front of our window and append them
	// to the successor's window.
	e.first = (e.first + count) % e.buffer.Count()
	e.count -= count
	next.count += count

	e.sessionPackets += uint64(count)
	e.totalPackets += uint64(count)

	// Forward bitrate and end of input to the successor. End of input
	// only ever latches.
	next.bitrate = bitrate
	next.brConfidence = confidence
	next.inputEnd = next.inputEnd || inputEnd

	if count > 0 || inputEnd {
		next.toDo.Signal()
	}

	// Absorb the successor's abort immediately, except output to input.
	if e.typ != stage.TypeOutput {
		aborted = aborted || next.aborting
	}

	// Propagate abort backward through the ring.
	if aborted {
		e.aborting = true
		e.prev().toDo.Signal()
	}

	if e.callbacks.OnHandoff != nil {
		e.callbacks.OnHandoff(e.index, count)
	}

	return !inputEnd && !aborted
}

// SetAbort forces this stage into an abort state and wakes its ring
// predecessor so the abort cascades backward. Used for asynchronous
// external cancellation, independent of the wait/pass hand-off. The
// stage's own wait is woken too, in case it is blocked.
func (e *Executor) SetAbort() {
	e.coord.mu.Lock()
	defer e.coord.mu.Unlock()
	e.aborting = true
	e.toDo.Signal()
	e.prev().toDo.Signal()
}

// Aborting reports this stage's own sticky abort flag.
func (e *Executor) Aborting() bool {
	e.coord.mu.Lock()
	defer e.coord.mu.Unlock()
	return e.aborting
}

// State returns the executor's lifecycle state.
func (e *Executor) State() State {
	e.coord.mu.Lock()
	defer e.coord.mu.Unlock()
	return e.state
}

// Name returns the stage name this executor drives.
func (e *Executor) Name() string {
	return e.name
}

// Type returns the stage type this executor drives.
func (e *Executor) Type() stage.Type {
	return e.typ
}

// setState updates the lifecycle state under the coordinator lock.
func (e *Executor) setState(s State) {
	e.coord.mu.Lock()
	e.setStateLocked(s)
	e.coord.mu.Unlock()
}

// setStateLocked requires the coordinator lock.
func (e *Executor) setStateLocked(s State) {
	old := e.state
	e.state = s
	if old != s && e.callbacks.OnStateChange != nil {
		e.callbacks.OnStateChange(e.index, e.name, old, s)
	}
}

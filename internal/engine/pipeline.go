package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// DefaultBufferPackets is the default circular buffer capacity.
const DefaultBufferPackets = 1000

// DefaultMaxInputBatch bounds one receive call on real-time inputs.
const DefaultMaxInputBatch = 128

// StageSpec describes one stage of the chain, as produced by the command
// line or the control channel.
type StageSpec struct {
	Type stage.Type
	Name string
	Args []string

	// Timeout is the stage's optional maximum WaitWork duration.
	// Zero means wait forever.
	Timeout time.Duration
}

// Options tunes pipeline construction.
type Options struct {
	// BufferPackets is the circular buffer capacity in packets.
	BufferPackets int

	// MaxInputBatch caps one receive call on real-time inputs.
	MaxInputBatch int

	// Callbacks observe executor events, typically for metrics and
	// statistics collection.
	Callbacks Callbacks
}

// Pipeline owns the packet buffer and the ring of stage executors, and
// runs one goroutine per stage for the duration of the stream.
type Pipeline struct {
	logger *slog.Logger
	coord  *Coordinator
	buffer *PacketBuffer
	execs  []*Executor

	startTime time.Time
	startMu   sync.Mutex
}

// New builds a pipeline from a stage chain. The chain must start with
// exactly one input stage and end with exactly one output stage; filters
// sit in between, in processing order.
func New(specs []StageSpec, reg *stage.Registry, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if len(specs) < 2 {
		return nil, errors.New("engine: chain needs at least an input and an output stage")
	}
	for i, s := range specs {
		switch {
		case i == 0 && s.Type != stage.TypeInput:
			return nil, errors.New("engine: first stage must be the input")
		case i == len(specs)-1 && s.Type != stage.TypeOutput:
			return nil, errors.New("engine: last stage must be the output")
		case i > 0 && i < len(specs)-1 && s.Type != stage.TypeFilter:
			return nil, fmt.Errorf("engine: stage %d (%s) must be a filter", i, s.Name)
		}
	}

	capacity := opts.BufferPackets
	if capacity == 0 {
		capacity = DefaultBufferPackets
	}
	buffer, err := NewPacketBuffer(capacity)
	if err != nil {
		return nil, err
	}

	maxBatch := opts.MaxInputBatch
	if maxBatch == 0 {
		maxBatch = DefaultMaxInputBatch
	}

	coord := NewCoordinator()
	ring := make([]*Executor, len(specs))
	for i, s := range specs {
		st, err := reg.Build(s.Type, s.Name, s.Args, logger)
		if err != nil {
			return nil, err
		}
		ring[i] = newExecutor(coord, reg, s.Type, s.Name, s.Args, st, i, ring, s.Timeout, opts.Callbacks, logger)
	}
	ring[0].maxBatch = maxBatch

	// The input stage starts owning the whole buffer as free space;
	// everyone else starts empty. The counts sum to the capacity, an
	// invariant every hand-off preserves.
	for i, e := range ring {
		if i == 0 {
			e.InitBuffer(buffer, 0, capacity, false, false, 0, ts.ConfidenceLow)
		} else {
			e.InitBuffer(buffer, 0, 0, false, false, 0, ts.ConfidenceLow)
		}
	}

	return &Pipeline{
		logger: logger,
		coord:  coord,
		buffer: buffer,
		execs:  ring,
	}, nil
}

// Run starts one goroutine per stage and blocks until all of them have
// terminated. Cancelling the context aborts the output stage, which
// unwinds the whole ring backward.
func (p *Pipeline) Run(ctx context.Context) error {
	p.startMu.Lock()
	p.startTime = time.Now()
	p.startMu.Unlock()

	p.logger.Info("pipeline_starting",
		"stages", len(p.execs),
		"buffer_packets", p.buffer.Count(),
	)

	errs := make([]error, len(p.execs))
	var wg sync.WaitGroup
	for i, e := range p.execs {
		wg.Add(1)
		go func(i int, e *Executor) {
			defer wg.Done()
			switch e.typ {
			case stage.TypeInput:
				errs[i] = e.runInput()
			case stage.TypeFilter:
				errs[i] = e.runFilter()
			case stage.TypeOutput:
				errs[i] = e.runOutput()
			}
		}(i, e)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline_cancelled")
			p.Abort()
		case <-done:
		}
	}()

	wg.Wait()
	close(done)

	err := errors.Join(errs...)
	p.logger.Info("pipeline_stopped",
		"packets_output", p.OutputExecutor().TotalPackets(),
		"error", err,
	)
	return err
}

// Abort requests a cooperative shutdown of the whole pipeline: every
// stage latches its abort flag and every blocked wait is woken, so each
// loop unwinds at its next suspension point.
func (p *Pipeline) Abort() {
	for _, e := range p.execs {
		e.SetAbort()
	}
}

// RestartStage restarts the stage at a chain index, with replacement
// arguments when args is non-nil. Blocks until the restart completes,
// fails or is superseded.
func (p *Pipeline) RestartStage(i int, args []string) error {
	if i < 0 || i >= len(p.execs) {
		return fmt.Errorf("engine: no stage at index %d", i)
	}
	if args == nil {
		return p.execs[i].Restart(p.logger)
	}
	return p.execs[i].RestartWithArgs(args, p.logger)
}

// StageCount returns the number of stages in the chain.
func (p *Pipeline) StageCount() int {
	return len(p.execs)
}

// Executor returns the executor at a chain index.
func (p *Pipeline) Executor(i int) *Executor {
	return p.execs[i]
}

// InputExecutor returns the input stage executor.
func (p *Pipeline) InputExecutor() *Executor {
	return p.execs[0]
}

// OutputExecutor returns the output stage executor.
func (p *Pipeline) OutputExecutor() *Executor {
	return p.execs[len(p.execs)-1]
}

// TotalPackets returns the number of packets this executor has passed
// downstream, across restarts.
func (e *Executor) TotalPackets() uint64 {
	e.coord.mu.Lock()
	defer e.coord.mu.Unlock()
	return e.totalPackets
}

// StageStatus is a point-in-time view of one executor, taken under the
// coordinator lock.
type StageStatus struct {
	Index      int                  `json:"index"`
	Name       string               `json:"name"`
	Type       string               `json:"type"`
	State      string               `json:"state"`
	First      int                  `json:"first"`
	Count      int                  `json:"count"`
	Bitrate    ts.Bitrate           `json:"bitrate"`
	Confidence ts.BitrateConfidence `json:"confidence"`
	InputEnd   bool                 `json:"input_end"`
	Aborting   bool                 `json:"aborting"`
	Packets    uint64               `json:"packets"`
	Restarts   int                  `json:"restarts"`
}

// Status is a consistent snapshot of the whole pipeline.
type Status struct {
	BufferPackets int           `json:"buffer_packets"`
	Uptime        time.Duration `json:"uptime"`
	Stages        []StageStatus `json:"stages"`
}

// Snapshot captures the state of every stage in one lock acquisition, so
// the occupancy invariant holds inside the result.
func (p *Pipeline) Snapshot() Status {
	p.startMu.Lock()
	started := p.startTime
	p.startMu.Unlock()

	st := Status{
		BufferPackets: p.buffer.Count(),
		Stages:        make([]StageStatus, len(p.execs)),
	}
	if !started.IsZero() {
		st.Uptime = time.Since(started)
	}

	p.coord.mu.Lock()
	defer p.coord.mu.Unlock()
	for i, e := range p.execs {
		st.Stages[i] = StageStatus{
			Index:      i,
			Name:       e.name,
			Type:       e.typ.String(),
			State:      e.state.String(),
			First:      e.first,
			Count:      e.count,
			Bitrate:    e.bitrate,
			Confidence: e.brConfidence,
			InputEnd:   e.inputEnd,
			Aborting:   e.aborting,
			Packets:    e.totalPackets,
			Restarts:   e.restarts,
		}
	}
	return st
}

package engine

import (
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Coordinator owns the single exclusive lock that serializes every
// cross-stage field: window boundaries, bitrate and confidence, the
// end-of-input and abort flags, and pending restart requests. Each
// executor's wake condition is built on this lock.
//
// Lock ordering rule: the coordinator lock is always acquired before a
// restart request's own lock, never the reverse.
type Coordinator struct {
	mu sync.Mutex

	nextID atomic.Uint64
}

// NewCoordinator creates the pipeline coordinator. The identifier counter
// is seeded from the process id and start time so ids from distinct runs
// do not collide in logs.
func NewCoordinator() *Coordinator {
	c := &Coordinator{}
	seed := uint64(os.Getpid())<<40 | (uint64(time.Now().UnixMilli())&0x00FFFFFF)<<16
	c.nextID.Store(seed)
	return c
}

// NextID returns a new process-unique monotonic identifier.
func (c *Coordinator) NextID() uint64 {
	return c.nextID.Add(1)
}

// newCond creates a wake condition bound to the coordinator lock.
func (c *Coordinator) newCond() *sync.Cond {
	return sync.NewCond(&c.mu)
}

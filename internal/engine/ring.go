package engine

// The stage ring is a fixed circular order established once at pipeline
// construction: input, filters in chain order, output, and back to input.
// It exists only for window hand-off and abort propagation; packet data
// never moves along it.
//
// Stages are held in an indexed slice and reference each other by index,
// never by back-pointer.

// next returns the ring successor of this executor.
func (e *Executor) next() *Executor {
	return e.ring[(e.index+1)%len(e.ring)]
}

// prev returns the ring predecessor of this executor.
func (e *Executor) prev() *Executor {
	n := len(e.ring)
	return e.ring[(e.index-1+n)%n]
}

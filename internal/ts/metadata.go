package ts

// LabelCount is the number of label bits a packet can carry through the
// pipeline. Labels are set by filter stages and travel with the packet in
// its metadata slot, never inside the packet bytes.
const LabelCount = 32

// LabelSet is a bitmask of packet labels.
type LabelSet uint32

// Set sets one label bit. Out-of-range labels are ignored.
func (l *LabelSet) Set(label int) {
	if label >= 0 && label < LabelCount {
		*l |= 1 << uint(label)
	}
}

// Clear clears one label bit. Out-of-range labels are ignored.
func (l *LabelSet) Clear(label int) {
	if label >= 0 && label < LabelCount {
		*l &^= 1 << uint(label)
	}
}

// Has reports whether one label bit is set.
func (l LabelSet) Has(label int) bool {
	return label >= 0 && label < LabelCount && l&(1<<uint(label)) != 0
}

// Union merges another label set into this one.
func (l *LabelSet) Union(other LabelSet) {
	*l |= other
}

// Metadata is the per-packet slot metadata carried in parallel with the
// packet buffer. It belongs to exactly one stage at a time, the stage that
// currently owns the buffer slot.
type Metadata struct {
	// Labels set by filter stages, visible downstream.
	Labels LabelSet

	// InputIndex counts packets since the input stage (re)started,
	// stamped by the input loop.
	InputIndex uint64

	// Flush asks the output stage to flush any pending buffered data
	// after this packet.
	Flush bool

	// BitrateChanged marks the packet after which the propagated bitrate
	// estimate changed.
	BitrateChanged bool
}

// Reset clears the metadata slot for reuse by the input stage.
func (m *Metadata) Reset() {
	*m = Metadata{}
}

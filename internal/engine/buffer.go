package engine

import (
	"fmt"

	"github.com/tsforge/tspump/internal/ts"
)

// PacketBuffer is the global circular buffer shared by all stage executors.
// It is allocated once before any stage goroutine starts and never resized.
//
// The buffer performs no locking of its own. At any instant every slot
// belongs to exactly one stage's window and ownership only moves at
// PassPackets time, so the owning stage reads and writes its slots without
// synchronization.
type PacketBuffer struct {
	packets  []ts.Packet
	metadata []ts.Metadata
}

// NewPacketBuffer allocates a buffer of the given capacity in packets.
func NewPacketBuffer(capacity int) (*PacketBuffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("engine: invalid packet buffer capacity %d", capacity)
	}
	return &PacketBuffer{
		packets:  make([]ts.Packet, capacity),
		metadata: make([]ts.Metadata, capacity),
	}, nil
}

// Count returns the total number of packet slots.
func (b *PacketBuffer) Count() int {
	return len(b.packets)
}

// Packets returns the contiguous packet slice [first, first+count).
// The range must not cross the wrap boundary; WaitWork never hands one
// out that does.
func (b *PacketBuffer) Packets(first, count int) []ts.Packet {
	return b.packets[first : first+count]
}

// Metadata returns the contiguous metadata slice [first, first+count).
func (b *PacketBuffer) Metadata(first, count int) []ts.Metadata {
	return b.metadata[first : first+count]
}

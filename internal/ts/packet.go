// Package ts defines the transport stream packet model shared by all
// pipeline stages: the fixed 188-byte packet, its per-slot metadata and
// the bitrate values propagated alongside packet hand-offs.
package ts

// PacketSize is the size in bytes of a transport stream packet.
const PacketSize = 188

// SyncByte is the first byte of every valid transport stream packet.
const SyncByte = 0x47

// PIDNull is the PID of stuffing (null) packets.
const PIDNull = 0x1FFF

// PID is a 13-bit packet identifier.
type PID uint16

// Packet is one fixed-size transport stream packet.
type Packet [PacketSize]byte

// NullPacket is a pre-built stuffing packet (PID 0x1FFF, adaptation-free).
var NullPacket = Packet{
	0: SyncByte,
	1: 0x1F,
	2: 0xFF,
	3: 0x10,
}

// HasSyncByte reports whether the packet starts with the TS sync byte.
func (p *Packet) HasSyncByte() bool {
	return p[0] == SyncByte
}

// PID returns the packet identifier.
func (p *Packet) PID() PID {
	return PID(p[1]&0x1F)<<8 | PID(p[2])
}

// SetPID overwrites the packet identifier.
func (p *Packet) SetPID(pid PID) {
	p[1] = (p[1] &^ 0x1F) | byte(pid>>8)&0x1F
	p[2] = byte(pid)
}

// ContinuityCounter returns the 4-bit continuity counter.
func (p *Packet) ContinuityCounter() uint8 {
	return p[3] & 0x0F
}

// SetContinuityCounter overwrites the 4-bit continuity counter.
func (p *Packet) SetContinuityCounter(cc uint8) {
	p[3] = (p[3] &^ 0x0F) | (cc & 0x0F)
}

// IsNull reports whether this is a stuffing packet.
func (p *Packet) IsNull() bool {
	return p.PID() == PIDNull
}

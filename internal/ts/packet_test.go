package ts

import "testing"

func TestNullPacket(t *testing.T) {
	p := NullPacket
	if !p.HasSyncByte() {
		t.Error("null packet missing sync byte")
	}
	if !p.IsNull() {
		t.Errorf("null packet PID = 0x%04X, want 0x1FFF", p.PID())
	}
}

func TestPID_RoundTrip(t *testing.T) {
	pids := []PID{0, 1, 0x100, 0x1000, PIDNull}
	for _, pid := range pids {
		p := NullPacket
		p.SetPID(pid)
		if got := p.PID(); got != pid {
			t.Errorf("SetPID(0x%04X) read back 0x%04X", pid, got)
		}
		if p[0] != SyncByte {
			t.Errorf("SetPID(0x%04X) corrupted the sync byte", pid)
		}
	}
}

func TestSetPID_PreservesHeaderFlags(t *testing.T) {
	var p Packet
	p[0] = SyncByte
	p[1] = 0x40 // payload unit start
	p.SetPID(0x123)
	if p[1]&0x40 == 0 {
		t.Error("SetPID cleared the payload unit start flag")
	}
	if got := p.PID(); got != 0x123 {
		t.Errorf("PID = 0x%04X, want 0x0123", got)
	}
}

func TestContinuityCounter_RoundTrip(t *testing.T) {
	p := NullPacket
	for cc := uint8(0); cc < 16; cc++ {
		p.SetContinuityCounter(cc)
		if got := p.ContinuityCounter(); got != cc {
			t.Errorf("SetContinuityCounter(%d) read back %d", cc, got)
		}
	}
	// Upper header bits survive the counter write.
	if p[3]&0x10 == 0 {
		t.Error("SetContinuityCounter cleared the payload flag")
	}
}

func TestLabelSet(t *testing.T) {
	var l LabelSet

	l.Set(0)
	l.Set(31)
	if !l.Has(0) || !l.Has(31) {
		t.Errorf("labels 0 and 31 not set: %032b", l)
	}
	if l.Has(5) {
		t.Error("label 5 reported set")
	}

	l.Clear(0)
	if l.Has(0) {
		t.Error("label 0 still set after Clear")
	}
	if !l.Has(31) {
		t.Error("Clear(0) affected label 31")
	}

	// Out-of-range labels are ignored.
	l.Set(-1)
	l.Set(32)
	l.Clear(-1)
	l.Clear(32)
	if l.Has(-1) || l.Has(32) {
		t.Error("out-of-range label reported set")
	}
}

func TestLabelSet_Union(t *testing.T) {
	var a, b LabelSet
	a.Set(1)
	b.Set(2)
	a.Union(b)
	if !a.Has(1) || !a.Has(2) {
		t.Errorf("union = %032b, want labels 1 and 2", a)
	}
}

func TestMetadata_Reset(t *testing.T) {
	m := Metadata{InputIndex: 42, Flush: true, BitrateChanged: true}
	m.Labels.Set(3)
	m.Reset()
	if m != (Metadata{}) {
		t.Errorf("Reset left %+v", m)
	}
}

func TestBitrateConfidence_Order(t *testing.T) {
	// Higher confidence wins during propagation, so the order matters.
	if !(ConfidenceLow < ConfidencePCR && ConfidencePCR < ConfidenceClock && ConfidenceClock < ConfidenceOverride) {
		t.Error("confidence levels out of order")
	}
}

func TestBitrateConfidence_String(t *testing.T) {
	testCases := []struct {
		c    BitrateConfidence
		want string
	}{
		{ConfidenceLow, "low"},
		{ConfidencePCR, "pcr"},
		{ConfidenceClock, "clock"},
		{ConfidenceOverride, "override"},
		{BitrateConfidence(99), "unknown"},
	}
	for _, tc := range testCases {
		if got := tc.c.String(); got != tc.want {
			t.Errorf("%d.String() = %q, want %q", int(tc.c), got, tc.want)
		}
	}
}

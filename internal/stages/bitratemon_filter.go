package stages

import (
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// rangeStatus classifies the measured bitrate against the allowed range.
type rangeStatus int

const (
	rangeBelow rangeStatus = iota
	rangeNormal
	rangeAbove
)

func (s rangeStatus) String() string {
	switch s {
	case rangeBelow:
		return "below"
	case rangeAbove:
		return "above"
	default:
		return "normal"
	}
}

// bitratePeriod accumulates what was received during roughly one second.
type bitratePeriod struct {
	duration time.Duration
	packets  uint64
	nonNull  uint64
}

// bitrateMonitor measures the observed bitrate over a sliding window of
// one-second periods and raises an alarm when it leaves the configured
// range. Packets are never modified; state is reported through logs and
// metadata labels: the -set-label-* flags mark every packet while the
// bitrate is below, within or above range, and the -set-label-go-* flags
// mark the single packet on which the state changed.
//
// The monitor asks its executor for a bounded wait so the window keeps
// advancing even when the stream stalls completely.
type bitrateMonitor struct {
	logger *slog.Logger
	min    ts.Bitrate
	max    ts.Bitrate // 0 = unbounded

	labelsBelow  ts.LabelSet
	labelsNormal ts.LabelSet
	labelsAbove  ts.LabelSet

	labelsGoBelow  ts.LabelSet
	labelsGoNormal ts.LabelSet
	labelsGoAbove  ts.LabelSet

	// now is the clock; swapped in tests.
	now func() time.Time

	periods    []bitratePeriod
	index      int
	startup    bool
	lastTick   time.Time
	status     rangeStatus
	labelsNext ts.LabelSet
	last       ts.Bitrate
	lastNet    ts.Bitrate
}

func newBitrateMonitor(args []string, logger *slog.Logger) (stage.Stage, error) {
	fs := flag.NewFlagSet("bitratemon", flag.ContinueOnError)
	window := fs.Duration("window", 5*time.Second, "Sliding measurement window, in whole seconds")
	min := fs.Uint64("min", 0, "Alarm when bitrate drops below this value in b/s")
	max := fs.Uint64("max", 0, "Alarm when bitrate exceeds this value in b/s (0 = unbounded)")

	var below, normal, above, goBelow, goNormal, goAbove labelList
	fs.Var(&below, "set-label-below", "Set this label on all packets while the bitrate is below range (can repeat)")
	fs.Var(&normal, "set-label-normal", "Set this label on all packets while the bitrate is in range (can repeat)")
	fs.Var(&above, "set-label-above", "Set this label on all packets while the bitrate is above range (can repeat)")
	fs.Var(&goBelow, "set-label-go-below", "Set this label on one packet when the bitrate goes below range (can repeat)")
	fs.Var(&goNormal, "set-label-go-normal", "Set this label on one packet when the bitrate comes back in range (can repeat)")
	fs.Var(&goAbove, "set-label-go-above", "Set this label on one packet when the bitrate goes above range (can repeat)")

	positionals, err := parseStageFlags(fs, args)
	if err != nil {
		return nil, err
	}
	if len(positionals) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", positionals[0])
	}
	if *window < time.Second {
		return nil, fmt.Errorf("window must be at least 1s, got %v", *window)
	}
	if *max > 0 && *max < *min {
		return nil, fmt.Errorf("max %d is below min %d", *max, *min)
	}

	return &bitrateMonitor{
		logger:         logger.With("stage", "bitratemon"),
		min:            ts.Bitrate(*min),
		max:            ts.Bitrate(*max),
		labelsBelow:    below.mask(),
		labelsNormal:   normal.mask(),
		labelsAbove:    above.mask(),
		labelsGoBelow:  goBelow.mask(),
		labelsGoNormal: goNormal.mask(),
		labelsGoAbove:  goAbove.mask(),
		now:            time.Now,
		periods:        make([]bitratePeriod, int(*window/time.Second)),
	}, nil
}

func (f *bitrateMonitor) Start() error {
	for i := range f.periods {
		f.periods[i] = bitratePeriod{}
	}
	f.index = 0
	f.startup = true
	f.lastTick = f.now()
	f.status = rangeNormal
	f.labelsNext = 0
	f.last = 0
	f.lastNet = 0
	return nil
}

func (f *bitrateMonitor) Stop() error {
	f.logger.Info("bitrate monitor stopped",
		"last_bitrate", f.last.String(),
		"last_net_bitrate", f.lastNet.String(),
	)
	return nil
}

func (f *bitrateMonitor) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) stage.Status {
	f.periods[f.index].packets++
	if !pkt.IsNull() {
		f.periods[f.index].nonNull++
	}

	f.checkTime()

	// One-shot transition labels, then steady-state labels.
	meta.Labels.Union(f.labelsNext)
	f.labelsNext = 0
	switch f.status {
	case rangeBelow:
		meta.Labels.Union(f.labelsBelow)
	case rangeAbove:
		meta.Labels.Union(f.labelsAbove)
	default:
		meta.Labels.Union(f.labelsNormal)
	}

	return stage.StatusOK
}

// OnTimeout advances the window on a stalled stream and resumes waiting.
func (f *bitrateMonitor) OnTimeout() bool {
	f.checkTime()
	return true
}

// checkTime closes the current period once a second has elapsed and moves
// the ring forward. The bitrate is computed only after the ring has been
// filled once, to avoid bogus values at startup.
func (f *bitrateMonitor) checkTime() {
	since := f.now().Sub(f.lastTick)
	if since < time.Second {
		return
	}

	f.periods[f.index].duration = since
	f.lastTick = f.now()

	if !f.startup {
		f.computeBitrate()
	}

	f.index = (f.index + 1) % len(f.periods)
	f.periods[f.index] = bitratePeriod{}
	if f.startup {
		f.startup = f.index != 0
	}
}

// computeBitrate evaluates the window and reports range transitions.
func (f *bitrateMonitor) computeBitrate() {
	var duration time.Duration
	var packets, nonNull uint64
	for _, p := range f.periods {
		duration += p.duration
		packets += p.packets
		nonNull += p.nonNull
	}
	if duration <= 0 {
		return
	}

	secs := duration.Seconds()
	f.last = ts.Bitrate(float64(packets*ts.PacketSize*8) / secs)
	f.lastNet = ts.Bitrate(float64(nonNull*ts.PacketSize*8) / secs)

	status := rangeNormal
	if f.last < f.min {
		status = rangeBelow
	} else if f.max > 0 && f.last > f.max {
		status = rangeAbove
	}

	if status == f.status {
		f.logger.Debug("bitrate window",
			"bitrate", f.last.String(),
			"net_bitrate", f.lastNet.String(),
		)
		return
	}

	switch status {
	case rangeBelow:
		f.labelsNext.Union(f.labelsGoBelow)
		f.logger.Warn("bitrate below allowed minimum",
			"bitrate", f.last.String(),
			"min", f.min.String(),
		)
	case rangeAbove:
		f.labelsNext.Union(f.labelsGoAbove)
		f.logger.Warn("bitrate above allowed maximum",
			"bitrate", f.last.String(),
			"max", f.max.String(),
		)
	default:
		f.labelsNext.Union(f.labelsGoNormal)
		f.logger.Info("bitrate back in allowed range", "bitrate", f.last.String())
	}
	f.status = status
}

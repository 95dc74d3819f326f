package stages

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// randomInput generates synthetic packets, optionally paced against the
// system clock to simulate a live source.
type randomInput struct {
	logger  *slog.Logger
	bitrate ts.Bitrate
	count   uint64
	pid     ts.PID

	produced uint64
	cc       uint8
	rng      *rand.Rand
	start    time.Time
}

func newRandomInput(args []string, logger *slog.Logger) (stage.Stage, error) {
	fs := flag.NewFlagSet("random", flag.ContinueOnError)
	bitrate := fs.Uint64("bitrate", 0, "Pace generation at this bitrate in b/s (0 = as fast as possible)")
	count := fs.Uint64("count", 0, "Stop after this many packets (0 = unlimited)")
	pid := fs.Uint("pid", uint(ts.PIDNull), "PID of generated packets")

	positionals, err := parseStageFlags(fs, args)
	if err != nil {
		return nil, err
	}
	if len(positionals) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", positionals[0])
	}
	if *pid > 0x1FFF {
		return nil, fmt.Errorf("PID must be 13 bits, got %d", *pid)
	}

	return &randomInput{
		logger:  logger.With("stage", "random-input"),
		bitrate: ts.Bitrate(*bitrate),
		count:   *count,
		pid:     ts.PID(*pid),
	}, nil
}

func (i *randomInput) Start() error {
	i.produced = 0
	i.cc = 0
	i.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	i.start = time.Now()
	return nil
}

func (i *randomInput) Stop() error { return nil }

func (i *randomInput) IsRealTime() bool { return i.bitrate > 0 }

// Bitrate reports the configured pacing rate.
func (i *randomInput) Bitrate() (ts.Bitrate, ts.BitrateConfidence) {
	if i.bitrate > 0 {
		return i.bitrate, ts.ConfidenceOverride
	}
	return 0, ts.ConfidenceLow
}

func (i *randomInput) Receive(pkts []ts.Packet) (int, error) {
	n := len(pkts)
	if i.count > 0 {
		remaining := i.count - i.produced
		if remaining == 0 {
			return 0, nil
		}
		if uint64(n) > remaining {
			n = int(remaining)
		}
	}

	if i.bitrate > 0 {
		// Sleep until the pacing clock catches up with the packets
		// already produced.
		bits := (i.produced + uint64(n)) * ts.PacketSize * 8
		due := i.start.Add(time.Duration(bits * uint64(time.Second) / uint64(i.bitrate)))
		if d := time.Until(due); d > 0 {
			time.Sleep(d)
		}
	}

	for k := 0; k < n; k++ {
		p := &pkts[k]
		*p = ts.NullPacket
		if i.pid != ts.PIDNull {
			p.SetPID(i.pid)
			p.SetContinuityCounter(i.cc)
			i.cc = (i.cc + 1) & 0x0F
			i.rng.Read(p[4:])
		}
	}

	i.produced += uint64(n)
	return n, nil
}

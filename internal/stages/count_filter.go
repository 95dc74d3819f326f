package stages

import (
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// countFilter counts packets flowing through the chain and logs totals.
// With -stop-after it terminates the whole chain once enough packets
// have passed.
type countFilter struct {
	logger    *slog.Logger
	interval  time.Duration
	stopAfter uint64

	total   uint64
	null    uint64
	lastLog time.Time
}

func newCountFilter(args []string, logger *slog.Logger) (stage.Stage, error) {
	fs := flag.NewFlagSet("count", flag.ContinueOnError)
	interval := fs.Duration("interval", 0, "Log a running count at this interval (0 = only at exit)")
	stopAfter := fs.Uint64("stop-after", 0, "Terminate the chain after this many packets (0 = never)")

	positionals, err := parseStageFlags(fs, args)
	if err != nil {
		return nil, err
	}
	if len(positionals) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", positionals[0])
	}

	return &countFilter{
		logger:    logger.With("stage", "count"),
		interval:  *interval,
		stopAfter: *stopAfter,
	}, nil
}

func (f *countFilter) Start() error {
	f.total = 0
	f.null = 0
	f.lastLog = time.Now()
	return nil
}

func (f *countFilter) Stop() error {
	f.logger.Info("packet count", "total", f.total, "null", f.null)
	return nil
}

func (f *countFilter) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) stage.Status {
	f.total++
	if pkt.IsNull() {
		f.null++
	}

	if f.interval > 0 && time.Since(f.lastLog) >= f.interval {
		f.logger.Info("packet count", "total", f.total, "null", f.null)
		f.lastLog = time.Now()
	}

	if f.stopAfter > 0 && f.total >= f.stopAfter {
		return stage.StatusStop
	}
	return stage.StatusOK
}

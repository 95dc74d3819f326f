package stages

import (
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// pidList is a custom flag type for repeatable -pid flags.
type pidList []ts.PID

func (l *pidList) String() string {
	parts := make([]string, len(*l))
	for i, pid := range *l {
		parts[i] = strconv.Itoa(int(pid))
	}
	return strings.Join(parts, ", ")
}

func (l *pidList) Set(value string) error {
	// Accept decimal and 0x-prefixed hex
	v, err := strconv.ParseUint(value, 0, 16)
	if err != nil || v > 0x1FFF {
		return fmt.Errorf("invalid PID %q", value)
	}
	*l = append(*l, ts.PID(v))
	return nil
}

// skipFilter replaces packets with stuffing: the first -count packets of
// the stream, and every packet on a listed PID.
type skipFilter struct {
	logger *slog.Logger
	count  uint64
	pids   map[ts.PID]bool

	seen    uint64
	skipped uint64
}

func newSkipFilter(args []string, logger *slog.Logger) (stage.Stage, error) {
	fs := flag.NewFlagSet("skip", flag.ContinueOnError)
	count := fs.Uint64("count", 0, "Replace the first N packets with stuffing")
	var pids pidList
	fs.Var(&pids, "pid", "Replace packets on this PID with stuffing (can repeat)")

	positionals, err := parseStageFlags(fs, args)
	if err != nil {
		return nil, err
	}
	if len(positionals) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", positionals[0])
	}

	pidSet := make(map[ts.PID]bool, len(pids))
	for _, pid := range pids {
		pidSet[pid] = true
	}

	return &skipFilter{
		logger: logger.With("stage", "skip"),
		count:  *count,
		pids:   pidSet,
	}, nil
}

func (f *skipFilter) Start() error {
	f.seen = 0
	f.skipped = 0
	return nil
}

func (f *skipFilter) Stop() error {
	f.logger.Info("skip summary", "seen", f.seen, "skipped", f.skipped)
	return nil
}

func (f *skipFilter) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) stage.Status {
	f.seen++
	if f.seen <= f.count || f.pids[pkt.PID()] {
		f.skipped++
		return stage.StatusDrop
	}
	return stage.StatusOK
}

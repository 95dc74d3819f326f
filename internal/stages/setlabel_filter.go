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

// labelList is a custom flag type for repeatable label flags.
type labelList []int

func (l *labelList) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

func (l *labelList) Set(value string) error {
	v, err := strconv.Atoi(value)
	if err != nil || v < 0 || v >= ts.LabelCount {
		return fmt.Errorf("label must be 0..%d, got %q", ts.LabelCount-1, value)
	}
	*l = append(*l, v)
	return nil
}

// mask folds the list into a label bitmask.
func (l labelList) mask() ts.LabelSet {
	var s ts.LabelSet
	for _, v := range l {
		s.Set(v)
	}
	return s
}

// setLabelFilter sets or clears metadata labels on matching packets.
// Labels travel with the packet and are visible to downstream filters.
type setLabelFilter struct {
	logger *slog.Logger
	set    []int
	clear  []int
	pids   map[ts.PID]bool // empty = match all packets
}

func newSetLabelFilter(args []string, logger *slog.Logger) (stage.Stage, error) {
	fs := flag.NewFlagSet("setlabel", flag.ContinueOnError)
	var set, clear labelList
	var pids pidList
	fs.Var(&set, "set", "Set this label on matching packets (can repeat)")
	fs.Var(&clear, "clear", "Clear this label on matching packets (can repeat)")
	fs.Var(&pids, "pid", "Only touch packets on this PID (can repeat, default all)")

	positionals, err := parseStageFlags(fs, args)
	if err != nil {
		return nil, err
	}
	if len(positionals) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", positionals[0])
	}
	if len(set) == 0 && len(clear) == 0 {
		return nil, fmt.Errorf("at least one -set or -clear is required")
	}

	pidSet := make(map[ts.PID]bool, len(pids))
	for _, pid := range pids {
		pidSet[pid] = true
	}

	return &setLabelFilter{
		logger: logger.With("stage", "setlabel"),
		set:    set,
		clear:  clear,
		pids:   pidSet,
	}, nil
}

func (f *setLabelFilter) Start() error { return nil }
func (f *setLabelFilter) Stop() error  { return nil }

func (f *setLabelFilter) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) stage.Status {
	if len(f.pids) > 0 && !f.pids[pkt.PID()] {
		return stage.StatusOK
	}
	for _, label := range f.set {
		meta.Labels.Set(label)
	}
	for _, label := range f.clear {
		meta.Labels.Clear(label)
	}
	return stage.StatusOK
}

package stages

import (
	"flag"
	"fmt"
	"log/slog"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// dropOutput discards every packet. Useful as a sink for load generation
// and chain debugging.
type dropOutput struct {
	logger *slog.Logger
	total  uint64
}

func newDropOutput(args []string, logger *slog.Logger) (stage.Stage, error) {
	fs := flag.NewFlagSet("drop", flag.ContinueOnError)
	positionals, err := parseStageFlags(fs, args)
	if err != nil {
		return nil, err
	}
	if len(positionals) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", positionals[0])
	}
	return &dropOutput{logger: logger.With("stage", "drop-output")}, nil
}

func (o *dropOutput) Start() error {
	o.total = 0
	return nil
}

func (o *dropOutput) Stop() error {
	o.logger.Info("dropped packets", "count", o.total)
	return nil
}

func (o *dropOutput) Send(pkts []ts.Packet, meta []ts.Metadata) (int, error) {
	o.total += uint64(len(pkts))
	return len(pkts), nil
}

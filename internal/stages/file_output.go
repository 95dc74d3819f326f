package stages

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// fileOutput writes packets to a file or stdout.
type fileOutput struct {
	logger *slog.Logger
	path   string
	append bool

	f *os.File
	w *bufio.Writer
}

func newFileOutput(args []string, logger *slog.Logger) (stage.Stage, error) {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	appendFlag := fs.Bool("append", false, "Append to the file instead of truncating it")

	positionals, err := parseStageFlags(fs, args)
	if err != nil {
		return nil, err
	}

	path := ""
	switch len(positionals) {
	case 0:
	case 1:
		path = positionals[0]
	default:
		return nil, fmt.Errorf("at most one file path expected, got %v", positionals)
	}

	return &fileOutput{
		logger: logger.With("stage", "file-output"),
		path:   path,
		append: *appendFlag,
	}, nil
}

func (o *fileOutput) Start() error {
	if o.path == "" || o.path == "-" {
		o.f = os.Stdout
	} else {
		flags := os.O_WRONLY | os.O_CREATE
		if o.append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(o.path, flags, 0o644)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		o.f = f
	}
	o.w = bufio.NewWriterSize(o.f, 64*ts.PacketSize)
	return nil
}

func (o *fileOutput) Stop() error {
	if o.w != nil {
		if err := o.w.Flush(); err != nil {
			return err
		}
		o.w = nil
	}
	if o.f != nil && o.f != os.Stdout {
		if err := o.f.Close(); err != nil {
			return err
		}
	}
	o.f = nil
	return nil
}

func (o *fileOutput) Send(pkts []ts.Packet, meta []ts.Metadata) (int, error) {
	for k := range pkts {
		if _, err := o.w.Write(pkts[k][:]); err != nil {
			return k, fmt.Errorf("write output: %w", err)
		}
		if meta[k].Flush {
			if err := o.w.Flush(); err != nil {
				return k, fmt.Errorf("flush output: %w", err)
			}
		}
	}
	return len(pkts), nil
}

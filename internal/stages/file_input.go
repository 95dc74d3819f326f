package stages

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// fileInput reads transport stream packets from a file or stdin.
// Misaligned input is resynchronized on the next sync byte.
type fileInput struct {
	logger *slog.Logger
	path   string
	loop   bool

	f       *os.File
	r       *bufio.Reader
	resyncs uint64

	// sinceRewind counts packets read since Start or the last rewind.
	// A full pass that yields nothing means the file can never produce
	// a packet, so looping must stop instead of spinning.
	sinceRewind uint64

	// pendingErr is a read error held back so a partial batch can be
	// delivered first.
	pendingErr error
	done       bool
}

func newFileInput(args []string, logger *slog.Logger) (stage.Stage, error) {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	loop := fs.Bool("loop", false, "Restart at the beginning of the file on end of file")

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

	if *loop && (path == "" || path == "-") {
		return nil, errors.New("-loop requires a regular file, not stdin")
	}

	return &fileInput{
		logger: logger.With("stage", "file-input"),
		path:   path,
		loop:   *loop,
	}, nil
}

func (i *fileInput) Start() error {
	i.pendingErr = nil
	i.done = false
	i.resyncs = 0
	i.sinceRewind = 0

	if i.path == "" || i.path == "-" {
		i.f = os.Stdin
	} else {
		f, err := os.Open(i.path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		i.f = f
	}
	i.r = bufio.NewReaderSize(i.f, 64*ts.PacketSize)
	return nil
}

func (i *fileInput) Stop() error {
	if i.f != nil && i.f != os.Stdin {
		if err := i.f.Close(); err != nil {
			return err
		}
	}
	i.f = nil
	i.r = nil
	return nil
}

func (i *fileInput) IsRealTime() bool { return false }

func (i *fileInput) Receive(pkts []ts.Packet) (int, error) {
	if i.done {
		return 0, nil
	}
	if i.pendingErr != nil {
		err := i.pendingErr
		i.pendingErr = nil
		i.done = true
		return 0, err
	}

	n := 0
	for n < len(pkts) {
		err := i.readPacket(&pkts[n])
		if err == nil {
			i.sinceRewind++
			n++
			continue
		}
		if errors.Is(err, io.EOF) {
			if i.loop && i.sinceRewind > 0 {
				if rerr := i.rewind(); rerr != nil {
					i.pendingErr = rerr
					break
				}
				continue
			}
			if i.loop {
				i.logger.Warn("file too short to loop, ending input", "path", i.path)
			}
			i.done = true
			break
		}
		i.pendingErr = err
		break
	}

	// Deliver a partial batch before surfacing a read error.
	if n == 0 && i.pendingErr != nil {
		err := i.pendingErr
		i.pendingErr = nil
		i.done = true
		return 0, err
	}
	return n, nil
}

// readPacket reads one packet, scanning forward to the next sync byte
// when alignment is lost. A truncated trailing packet counts as EOF.
func (i *fileInput) readPacket(p *ts.Packet) error {
	if _, err := io.ReadFull(i.r, p[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	if p.HasSyncByte() {
		return nil
	}

	i.resyncs++
	i.logger.Debug("sync byte lost, resynchronizing", "resyncs", i.resyncs)

	for {
		b, err := i.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return io.EOF
			}
			return err
		}
		if b != ts.SyncByte {
			continue
		}
		p[0] = b
		if _, err := io.ReadFull(i.r, p[1:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return io.EOF
			}
			return err
		}
		return nil
	}
}

func (i *fileInput) rewind() error {
	if _, err := i.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind input: %w", err)
	}
	i.r.Reset(i.f)
	i.sinceRewind = 0
	return nil
}

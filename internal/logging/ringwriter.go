package logging

import (
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single captured line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of lines kept in a RingWriter.
	MaxBufferedLines = 100
)

// RingWriter is an io.Writer that keeps the most recent log lines in a
// circular buffer. When the TUI owns the terminal, the logger writes here
// instead of stderr and the dashboard renders the tail.
type RingWriter struct {
	buffer []string
	bufIdx int
	// partial holds an incomplete trailing line between Write calls.
	partial string
	mu      sync.Mutex
}

// NewRingWriter creates an empty RingWriter.
func NewRingWriter() *RingWriter {
	return &RingWriter{
		buffer: make([]string, MaxBufferedLines),
	}
}

// Write splits p into lines and stores each one. Always succeeds.
func (w *RingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	text := w.partial + string(p)
	for {
		nl := strings.IndexByte(text, '\n')
		if nl < 0 {
			break
		}
		w.addLocked(text[:nl])
		text = text[nl+1:]
	}
	w.partial = text

	return len(p), nil
}

// AddLine stores a single line directly, bypassing newline splitting.
func (w *RingWriter) AddLine(line string) {
	w.mu.Lock()
	w.addLocked(line)
	w.mu.Unlock()
}

func (w *RingWriter) addLocked(line string) {
	if line == "" {
		return
	}
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}
	w.buffer[w.bufIdx] = line
	w.bufIdx = (w.bufIdx + 1) % MaxBufferedLines
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (w *RingWriter) RecentLines(n int) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)

	// Read from circular buffer in order
	for i := 0; i < n; i++ {
		idx := (w.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if w.buffer[idx] != "" {
			lines = append(lines, w.buffer[idx])
		}
	}

	return lines
}

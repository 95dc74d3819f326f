package engine

import (
	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// runOutput is the goroutine body of the output stage executor. Passing a
// consumed batch grows the input stage's free window through the ring; it
// never pushes packets forward.
func (e *Executor) runOutput() error {
	out := e.stageInstance().(stage.Output)
	e.setState(StateRunning)

	if err := out.Start(); err != nil {
		e.logger.Error("output_start_failed", "error", err)
		e.PassPackets(0, 0, ts.ConfidenceLow, false, true)
		e.setState(StateStopped)
		return err
	}

	var loopErr error
	lastBitrate := ts.Bitrate(0)
	lastConfidence := ts.ConfidenceLow

	for {
		if e.PendingRestart() {
			e.ProcessPendingRestart()
			out = e.stageInstance().(stage.Output)
		}

		first, count, bitrate, confidence, end, aborted, timedOut := e.WaitWork(1)
		if aborted || timedOut {
			// Terminal: latch end of input toward the input stage so it
			// stops producing, cascade the abort backward to the last
			// filter. The aborted flag itself is never forced onto the
			// input stage.
			e.PassPackets(0, lastBitrate, lastConfidence, true, true)
			break
		}
		lastBitrate, lastConfidence = bitrate, confidence

		failed := false
		if count > 0 {
			sent, err := out.Send(e.buffer.Packets(first, count), e.buffer.Metadata(first, count))
			if err != nil {
				e.logger.Error("output_send_failed", "error", err)
				loopErr = err
				failed = true
			} else if sent < count {
				e.logger.Error("output_short_write", "sent", sent, "count", count)
				failed = true
			}
		}

		if !e.PassPackets(count, bitrate, confidence, end, failed) {
			break
		}
	}

	e.setState(StateStopping)
	if err := out.Stop(); err != nil {
		e.logger.Warn("output_stop_failed", "error", err)
	}
	e.setState(StateStopped)
	return loopErr
}

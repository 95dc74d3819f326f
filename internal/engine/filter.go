package engine

import (
	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// runFilter is the goroutine body of a filter stage executor: wait for a
// batch, run the stage over every packet of the contiguous window, hand
// the batch downstream.
func (e *Executor) runFilter() error {
	f := e.stageInstance().(stage.Filter)
	e.setState(StateRunning)

	if err := f.Start(); err != nil {
		e.logger.Error("filter_start_failed", "error", err)
		e.PassPackets(0, 0, ts.ConfidenceLow, false, true)
		e.setState(StateStopped)
		return err
	}

	lastBitrate := ts.Bitrate(0)
	lastConfidence := ts.ConfidenceLow

	for {
		if e.PendingRestart() {
			e.ProcessPendingRestart()
			f = e.stageInstance().(stage.Filter)
		}

		first, count, bitrate, confidence, end, aborted, timedOut := e.WaitWork(1)
		if aborted || timedOut {
			// Terminal: drain downstream with end of input, cascade the
			// abort backward.
			e.PassPackets(0, lastBitrate, lastConfidence, true, true)
			break
		}
		lastBitrate, lastConfidence = bitrate, confidence

		pkts := e.buffer.Packets(first, count)
		meta := e.buffer.Metadata(first, count)
		stop := false
		for i := 0; i < count && !stop; i++ {
			switch f.ProcessPacket(&pkts[i], &meta[i]) {
			case stage.StatusDrop:
				pkts[i] = ts.NullPacket
			case stage.StatusStop:
				stop = true
			}
		}
		if stop {
			// The stage declared end of stream: drain downstream,
			// stop production upstream.
			end = true
		}

		if !e.PassPackets(count, bitrate, confidence, end, stop) {
			break
		}
	}

	e.setState(StateStopping)
	if err := f.Stop(); err != nil {
		e.logger.Warn("filter_stop_failed", "error", err)
	}
	e.setState(StateStopped)
	return nil
}

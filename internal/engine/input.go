package engine

import (
	"errors"
	"io"

	"github.com/tsforge/tspump/internal/stage"
	"github.com/tsforge/tspump/internal/ts"
)

// runInput is the goroutine body of the input stage executor. Its window
// is the free space of the circular buffer: the output stage grows it
// through the ring every time packets leave the pipeline.
func (e *Executor) runInput() error {
	in := e.stageInstance().(stage.Input)
	e.setState(StateRunning)

	if err := in.Start(); err != nil {
		e.logger.Error("input_start_failed", "error", err)
		// Propagate end of input so downstream stages drain and stop.
		e.PassPackets(0, 0, ts.ConfidenceLow, true, false)
		e.setState(StateStopped)
		return err
	}

	bitrate, confidence := e.queryBitrate(in, 0, ts.ConfidenceLow)
	var inputIndex uint64

	for {
		if e.PendingRestart() {
			e.ProcessPendingRestart()
			in = e.stageInstance().(stage.Input)
			inputIndex = 0
		}

		first, count, _, _, end, aborted, timedOut := e.WaitWork(1)
		if aborted || timedOut || end {
			// Unwind: signal end of input downstream so successors
			// drain, and abort upstream through the ring.
			e.PassPackets(0, bitrate, confidence, true, true)
			break
		}

		// Real-time sources are drained in smaller batches to bound the
		// latency added by the buffer.
		if in.IsRealTime() && e.maxBatch > 0 && count > e.maxBatch {
			count = e.maxBatch
		}

		n, err := in.Receive(e.buffer.Packets(first, count))
		endOfInput := n == 0
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.logger.Error("input_receive_failed", "error", err)
			}
			endOfInput = true
		}

		if n > 0 {
			meta := e.buffer.Metadata(first, n)
			for i := range meta {
				meta[i].Reset()
				meta[i].InputIndex = inputIndex
				inputIndex++
			}
			prev := bitrate
			bitrate, confidence = e.queryBitrate(in, bitrate, confidence)
			if bitrate != prev {
				meta[0].BitrateChanged = true
			}
		}

		if !e.PassPackets(n, bitrate, confidence, endOfInput, false) {
			break
		}
	}

	e.setState(StateStopping)
	if err := in.Stop(); err != nil {
		e.logger.Warn("input_stop_failed", "error", err)
	}
	e.setState(StateStopped)
	return nil
}

// queryBitrate refreshes the input bitrate estimate when the source can
// evaluate one; otherwise the previous estimate stands.
func (e *Executor) queryBitrate(in stage.Input, cur ts.Bitrate, conf ts.BitrateConfidence) (ts.Bitrate, ts.BitrateConfidence) {
	if bp, ok := in.(stage.BitrateProvider); ok {
		if br, c := bp.Bitrate(); br != 0 {
			return br, c
		}
	}
	return cur, conf
}

// stageInstance returns the current processing instance, which a restart
// may have replaced.
func (e *Executor) stageInstance() stage.Stage {
	e.coord.mu.Lock()
	defer e.coord.mu.Unlock()
	return e.st
}

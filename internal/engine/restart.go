package engine

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrRestartInterrupted is delivered to a restart caller whose pending
// request was superseded by a newer restart of the same stage before the
// stage reached its next safe point.
var ErrRestartInterrupted = errors.New("engine: restart interrupted by another concurrent restart")

// ErrRestartFailed is delivered when neither the replacement parameters
// nor the fallback to the previous parameters produced a running stage.
var ErrRestartFailed = errors.New("engine: stage restart failed")

// ErrStageStopped is returned when a restart is requested for a stage
// whose processing loop has already terminated.
var ErrStageStopped = errors.New("engine: stage already stopped")

// restartRequest describes one pending restart of a stage. At most one is
// outstanding per stage; a newer request supersedes the pending one.
//
// Completion is signaled on the request's own lock and condition, never
// on the coordinator lock, so a caller blocked on completion does not
// stall the pipeline. The coordinator lock is always taken before the
// request lock.
type restartRequest struct {
	id       uint64
	sameArgs bool
	args     []string
	reporter *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	completed bool
	err       error
}

func newRestartRequest(id uint64, sameArgs bool, args []string, reporter *slog.Logger) *restartRequest {
	rd := &restartRequest{
		id:       id,
		sameArgs: sameArgs,
		args:     args,
		reporter: reporter,
	}
	rd.cond = sync.NewCond(&rd.mu)
	return rd
}

// fail resolves the request with an error. Caller holds the request lock.
func (rd *restartRequest) failLocked(err error) {
	rd.completed = true
	rd.err = err
	rd.cond.Signal()
}

// Restart stops and recreates the stage's processing instance with its
// current parameters. It blocks the caller until the stage has processed
// the request at its next safe point.
func (e *Executor) Restart(reporter *slog.Logger) error {
	return e.restart(newRestartRequest(e.coord.NextID(), true, nil, reporter))
}

// RestartWithArgs stops the stage and recreates it from a replacement
// argument list. If the new parameters are invalid or the stage fails to
// start with them, the previous parameters are tried before the restart
// is reported failed.
func (e *Executor) RestartWithArgs(args []string, reporter *slog.Logger) error {
	return e.restart(newRestartRequest(e.coord.NextID(), false, args, reporter))
}

func (e *Executor) restart(rd *restartRequest) error {
	if rd.reporter == nil {
		rd.reporter = e.logger
	}

	e.coord.mu.Lock()

	// A stopped stage has no loop left to service the request.
	if e.state == StateStopped {
		e.coord.mu.Unlock()
		return ErrStageStopped
	}

	// Supersede any pending request: its caller gets an explicit
	// interrupted outcome, never silence.
	if old := e.restartData; old != nil {
		old.mu.Lock()
		old.reporter.Error("restart_interrupted", "stage", e.name, "request_id", old.id)
		old.failLocked(ErrRestartInterrupted)
		old.mu.Unlock()
	}

	e.restartData = rd
	e.toDo.Signal()
	e.coord.mu.Unlock()

	// Wait for the stage loop to process the request. This never holds
	// the coordinator lock.
	rd.mu.Lock()
	for !rd.completed {
		rd.cond.Wait()
	}
	err := rd.err
	rd.mu.Unlock()
	return err
}

// PendingRestart reports whether a restart request is waiting, without
// executing it.
func (e *Executor) PendingRestart() bool {
	e.coord.mu.Lock()
	defer e.coord.mu.Unlock()
	return e.restartData != nil
}

// ProcessPendingRestart executes a pending restart request if there is
// one. It is called by the stage's own loop at a safe point between
// packet batches. The first result tells whether a restart was attempted,
// the second whether it succeeded.
func (e *Executor) ProcessPendingRestart() (restarted, success bool) {
	e.coord.mu.Lock()
	defer e.coord.mu.Unlock()

	rd := e.restartData
	if rd == nil {
		return false, true
	}

	rd.mu.Lock()
	defer rd.mu.Unlock()

	rd.reporter.Info("restarting_stage", "stage", e.name, "request_id", rd.id, "same_args", rd.sameArgs)
	e.setStateLocked(StateRestarting)

	// Stop the current instance and reset session accounting. The sticky
	// end-of-input and abort flags only survive until a restart.
	if err := e.st.Stop(); err != nil {
		rd.reporter.Warn("stage_stop_failed", "stage", e.name, "error", err)
	}
	e.sessionPackets = 0
	e.inputEnd = false
	e.aborting = false

	if rd.sameArgs {
		success = e.startInstance(e.args, rd.reporter)
	} else {
		previous := e.args
		success = e.startInstance(rd.args, rd.reporter)
		if !success {
			// Fall back to the previous configuration.
			rd.reporter.Warn("restart_fallback",
				"stage", e.name,
				"reason", "replacement parameters rejected",
			)
			success = e.startInstance(previous, rd.reporter)
		}
	}

	if success {
		rd.completed = true
		rd.cond.Signal()
	} else {
		rd.failLocked(ErrRestartFailed)
	}

	// Clear the pending flag last.
	e.restartData = nil
	e.restarts++
	e.setStateLocked(StateRunning)

	if e.callbacks.OnRestart != nil {
		e.callbacks.OnRestart(e.index, e.name, success)
	}

	e.logger.Debug("restart_processed", "stage", e.name, "success", success)
	return true, success
}

// startInstance rebuilds the stage from an argument list and starts it.
// Rebuilding runs the stage's parameter analysis, so invalid replacement
// arguments are caught here. Caller holds the coordinator lock.
func (e *Executor) startInstance(args []string, reporter *slog.Logger) bool {
	st, err := e.registry.Build(e.typ, e.name, args, e.logger)
	if err != nil {
		reporter.Error("stage_analyze_failed", "stage", e.name, "error", err)
		return false
	}
	if err := st.Start(); err != nil {
		reporter.Error("stage_start_failed", "stage", e.name, "error", err)
		return false
	}
	e.st = st
	e.args = args
	return true
}

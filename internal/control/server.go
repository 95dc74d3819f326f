// Package control exposes the pump's runtime control API over HTTP:
// stage restarts, pipeline abort and a JSON status snapshot.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tsforge/tspump/internal/engine"
)

// Pipeline is the slice of the engine the control API drives.
type Pipeline interface {
	StageCount() int
	Snapshot() engine.Status
	Abort()
	RestartStage(i int, args []string) error
}

// Server serves the control endpoints.
type Server struct {
	addr   string
	pipe   Pipeline
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a control server for one pipeline.
func NewServer(addr string, pipe Pipeline, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		pipe:   pipe,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/restart", s.handleRestart)
	mux.HandleFunc("/abort", s.handleAbort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second, // restarts block until processed
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// Handler returns the control mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the control server in a goroutine.
// Returns immediately. Use Shutdown to stop.
func (s *Server) Start() error {
	s.logger.Info("control_server_starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("control_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// handleStatus returns the pipeline snapshot as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.pipe.Snapshot()); err != nil {
		s.logger.Error("status_encode_error", "error", err)
	}
}

// handleRestart restarts one stage:
//
//	POST /restart?stage=N            same arguments
//	POST /restart?stage=N&args=a&args=b   replacement arguments
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	index, err := strconv.Atoi(q.Get("stage"))
	if err != nil {
		http.Error(w, "stage must be a chain index", http.StatusBadRequest)
		return
	}
	if index < 0 || index >= s.pipe.StageCount() {
		http.Error(w, "no stage at that index", http.StatusNotFound)
		return
	}

	var args []string
	if rawArgs, ok := q["args"]; ok {
		args = rawArgs
	}

	s.logger.Info("restart_requested", "stage", index, "new_args", args != nil)

	if err := s.pipe.RestartStage(index, args); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, engine.ErrRestartInterrupted):
			status = http.StatusConflict
		case errors.Is(err, engine.ErrStageStopped):
			status = http.StatusGone
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("restarted\n"))
}

// handleAbort requests a cooperative shutdown of the whole pipeline.
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("abort_requested")
	s.pipe.Abort()

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("aborting\n"))
}

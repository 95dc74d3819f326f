package control

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tsforge/tspump/internal/engine"
	"github.com/tsforge/tspump/internal/logging"
)

// fakePipeline records control calls without running anything.
type fakePipeline struct {
	mu         sync.Mutex
	stages     int
	restarts   []restartCall
	restartErr error
	aborted    bool
}

type restartCall struct {
	index int
	args  []string
}

func (f *fakePipeline) StageCount() int { return f.stages }

func (f *fakePipeline) Snapshot() engine.Status {
	return engine.Status{
		BufferPackets: 1000,
		Uptime:        5 * time.Second,
		Stages: []engine.StageStatus{
			{Index: 0, Name: "random", Type: "input", State: "running", Count: 1000},
		},
	}
}

func (f *fakePipeline) Abort() {
	f.mu.Lock()
	f.aborted = true
	f.mu.Unlock()
}

func (f *fakePipeline) RestartStage(i int, args []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, restartCall{index: i, args: args})
	return f.restartErr
}

func newTestServer(t *testing.T, pipe *fakePipeline) *httptest.Server {
	t.Helper()
	logger := logging.NewLoggerWithWriter(io.Discard, "text", "error")
	srv := httptest.NewServer(NewServer("", pipe, logger).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusEndpoint(t *testing.T) {
	pipe := &fakePipeline{stages: 1}
	srv := newTestServer(t, pipe)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}

	var st engine.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.BufferPackets != 1000 {
		t.Errorf("BufferPackets = %d, want 1000", st.BufferPackets)
	}
	if len(st.Stages) != 1 || st.Stages[0].Name != "random" {
		t.Errorf("Stages = %+v", st.Stages)
	}
}

func TestStatusEndpoint_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakePipeline{stages: 1})

	resp, err := http.Post(srv.URL+"/status", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestRestartEndpoint_SameArgs(t *testing.T) {
	pipe := &fakePipeline{stages: 3}
	srv := newTestServer(t, pipe)

	resp, err := http.Post(srv.URL+"/restart?stage=1", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(pipe.restarts) != 1 {
		t.Fatalf("restarts = %d, want 1", len(pipe.restarts))
	}
	if pipe.restarts[0].index != 1 {
		t.Errorf("restart index = %d, want 1", pipe.restarts[0].index)
	}
	// nil args means restart with the previous arguments
	if pipe.restarts[0].args != nil {
		t.Errorf("restart args = %v, want nil", pipe.restarts[0].args)
	}
}

func TestRestartEndpoint_NewArgs(t *testing.T) {
	pipe := &fakePipeline{stages: 3}
	srv := newTestServer(t, pipe)

	resp, err := http.Post(srv.URL+"/restart?stage=2&args=-count&args=100", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	call := pipe.restarts[0]
	if call.index != 2 {
		t.Errorf("restart index = %d, want 2", call.index)
	}
	if len(call.args) != 2 || call.args[0] != "-count" || call.args[1] != "100" {
		t.Errorf("restart args = %v, want [-count 100]", call.args)
	}
}

func TestRestartEndpoint_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		path       string
		restartErr error
		wantStatus int
	}{
		{"missing stage", "/restart", nil, http.StatusBadRequest},
		{"non-numeric stage", "/restart?stage=abc", nil, http.StatusBadRequest},
		{"index out of range", "/restart?stage=9", nil, http.StatusNotFound},
		{"negative index", "/restart?stage=-1", nil, http.StatusNotFound},
		{"superseded", "/restart?stage=0", engine.ErrRestartInterrupted, http.StatusConflict},
		{"stage stopped", "/restart?stage=0", engine.ErrStageStopped, http.StatusGone},
		{"restart failed", "/restart?stage=0", engine.ErrRestartFailed, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pipe := &fakePipeline{stages: 3, restartErr: tc.restartErr}
			srv := newTestServer(t, pipe)

			resp, err := http.Post(srv.URL+tc.path, "text/plain", nil)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestRestartEndpoint_GetRejected(t *testing.T) {
	srv := newTestServer(t, &fakePipeline{stages: 1})

	resp, err := http.Get(srv.URL + "/restart?stage=0")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestAbortEndpoint(t *testing.T) {
	pipe := &fakePipeline{stages: 1}
	srv := newTestServer(t, pipe)

	resp, err := http.Post(srv.URL+"/abort", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if !strings.Contains(string(body), "aborting") {
		t.Errorf("body = %q", body)
	}

	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	if !pipe.aborted {
		t.Error("Abort was not called on the pipeline")
	}
}

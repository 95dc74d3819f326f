package tui

import (
	"strings"
	"testing"
)

func TestStateStyle(t *testing.T) {
	testCases := []struct {
		state string
		want  string
	}{
		{"running", stateRunning.Render("x")},
		{"idle", stateStarting.Render("x")},
		{"restarting", stateStarting.Render("x")},
		{"stopping", stateEnding.Render("x")},
		{"stopped", stateStopped.Render("x")},
		{"unknown", stateError.Render("x")},
	}
	for _, tc := range testCases {
		if got := StateStyle(tc.state).Render("x"); got != tc.want {
			t.Errorf("StateStyle(%q) rendered %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestFlagLabel(t *testing.T) {
	if got := FlagLabel(false, false); got != "" {
		t.Errorf("no flags = %q, want empty", got)
	}
	if got := FlagLabel(true, false); !strings.Contains(got, "end") {
		t.Errorf("input end = %q", got)
	}
	// abort wins over input end
	if got := FlagLabel(true, true); !strings.Contains(got, "abort") {
		t.Errorf("aborting = %q", got)
	}
}

func TestRenderWindowBar(t *testing.T) {
	full := RenderWindowBar(100, 100, 20)
	if !strings.Contains(full, "100%") {
		t.Errorf("full bar = %q", full)
	}
	empty := RenderWindowBar(0, 100, 20)
	if !strings.Contains(empty, "0%") {
		t.Errorf("empty bar = %q", empty)
	}
	half := RenderWindowBar(50, 100, 20)
	if !strings.Contains(half, "50%") {
		t.Errorf("half bar = %q", half)
	}
	// zero capacity must not divide by zero
	if got := RenderWindowBar(5, 0, 20); !strings.Contains(got, "0%") {
		t.Errorf("zero capacity bar = %q", got)
	}
}

func TestRenderWindowBar_ClampsWidth(t *testing.T) {
	bar := RenderWindowBar(50, 100, 2)
	if bar == "" {
		t.Error("narrow bar rendered empty")
	}
}

func TestRenderKeyValue(t *testing.T) {
	out := RenderKeyValue("waits", "42")
	if !strings.Contains(out, "waits:") || !strings.Contains(out, "42") {
		t.Errorf("RenderKeyValue = %q", out)
	}
}

package tui

import (
	"strings"
	"testing"
	"time"
)

func renderedModel(t *testing.T) Model {
	t.Helper()
	m := testModel()
	updated, _ := m.Update(TickMsg(time.Now()))
	return updated.(Model)
}

func TestView_ShowsHeader(t *testing.T) {
	view := renderedModel(t).View()

	for _, want := range []string{"tspump 1.2.3", "00:01:30", "buffer 1000 pkts", "random -> skip -> drop"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_ShowsStages(t *testing.T) {
	view := renderedModel(t).View()

	for _, want := range []string{"STAGES", "random", "skip", "drop", "running", "stopping", "5.00 Mb/s", "end"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_ShowsFlowSummary(t *testing.T) {
	m := testModel()
	m.stats.RecordHandoff(100)
	m.stats.RecordWait(2 * time.Millisecond)
	m.stats.RecordRestart(true)
	updated, _ := m.Update(TickMsg(time.Now()))
	view := updated.(Model).View()

	for _, want := range []string{"FLOW", "hand-offs", "waits", "1 ok, 0 failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_ShowsLogTail(t *testing.T) {
	m := testModel()
	m.logs.AddLine("stage restarted")
	updated, _ := m.Update(TickMsg(time.Now()))
	view := updated.(Model).View()

	if !strings.Contains(view, "LOG") || !strings.Contains(view, "stage restarted") {
		t.Error("view missing log tail")
	}
}

func TestView_HidesLogSectionWhenEmpty(t *testing.T) {
	view := renderedModel(t).View()
	if strings.Contains(view, "LOG") {
		t.Error("view shows LOG section without log lines")
	}
}

func TestView_Footer(t *testing.T) {
	view := renderedModel(t).View()
	for _, want := range []string{"q quit", "r refresh", "metrics :17095", "control :17096"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_EmptyWhenQuitting(t *testing.T) {
	m := renderedModel(t)
	m.quitting = true
	if view := m.View(); view != "" {
		t.Errorf("quitting view = %q, want empty", view)
	}
}

package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// StatusReport is the decoded state of a running pump, scraped from its
// metrics endpoint. Used by the -status diagnostic mode.
type StatusReport struct {
	Version       string
	UptimeSeconds float64
	BufferPackets int
	BitrateBits   float64
	Stages        []StageReport
}

// StageReport is the scraped state of one stage.
type StageReport struct {
	Index    int
	Type     string
	Name     string
	State    string
	Window   int
	Packets  float64
	Restarts float64
	InputEnd bool
	Aborting bool
}

// StatusScraper queries the metrics endpoint of a running instance.
type StatusScraper struct {
	httpClient *http.Client
}

// NewStatusScraper creates a scraper with a bounded request timeout.
func NewStatusScraper() *StatusScraper {
	return &StatusScraper{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Scrape fetches and decodes the pump metrics at url.
func (s *StatusScraper) Scrape(url string) (*StatusReport, error) {
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	// Parse Prometheus text format
	decoder := expfmt.NewDecoder(resp.Body, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)

	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		families[mf.GetName()] = &mf
	}

	if _, ok := families["tspump_buffer_packets"]; !ok {
		return nil, fmt.Errorf("no tspump metrics at %s", url)
	}

	return buildReport(families), nil
}

func buildReport(families map[string]*dto.MetricFamily) *StatusReport {
	report := &StatusReport{
		UptimeSeconds: gaugeValue(families, "tspump_uptime_seconds"),
		BufferPackets: int(gaugeValue(families, "tspump_buffer_packets")),
		BitrateBits:   gaugeValue(families, "tspump_bitrate_bits_per_second"),
	}

	if mf, ok := families["tspump_info"]; ok && len(mf.GetMetric()) > 0 {
		for _, label := range mf.GetMetric()[0].GetLabel() {
			if label.GetName() == "version" {
				report.Version = label.GetValue()
			}
		}
	}

	stages := make(map[int]*StageReport)
	perStage := func(name string, assign func(st *StageReport, v float64)) {
		mf, ok := families[name]
		if !ok {
			return
		}
		for _, metric := range mf.GetMetric() {
			st := stageFor(stages, metric)
			if st == nil {
				continue
			}
			v := metric.GetGauge().GetValue()
			if metric.GetCounter() != nil {
				v = metric.GetCounter().GetValue()
			}
			assign(st, v)
		}
	}

	perStage("tspump_stage_window_packets", func(st *StageReport, v float64) { st.Window = int(v) })
	perStage("tspump_stage_state", func(st *StageReport, v float64) { st.State = stateName(int(v)) })
	perStage("tspump_stage_input_end", func(st *StageReport, v float64) { st.InputEnd = v != 0 })
	perStage("tspump_stage_aborting", func(st *StageReport, v float64) { st.Aborting = v != 0 })
	perStage("tspump_stage_packets_total", func(st *StageReport, v float64) { st.Packets = v })
	perStage("tspump_stage_restarts_total", func(st *StageReport, v float64) { st.Restarts += v })

	for _, st := range stages {
		report.Stages = append(report.Stages, *st)
	}
	sort.Slice(report.Stages, func(i, j int) bool {
		return report.Stages[i].Index < report.Stages[j].Index
	})

	return report
}

// stageFor finds or creates the StageReport addressed by a metric's labels.
func stageFor(stages map[int]*StageReport, metric *dto.Metric) *StageReport {
	var index = -1
	var typ, name string
	for _, label := range metric.GetLabel() {
		switch label.GetName() {
		case "stage":
			if v, err := strconv.Atoi(label.GetValue()); err == nil {
				index = v
			}
		case "type":
			typ = label.GetValue()
		case "name":
			name = label.GetValue()
		}
	}
	if index < 0 {
		return nil
	}

	st, ok := stages[index]
	if !ok {
		st = &StageReport{Index: index, Type: typ, Name: name}
		stages[index] = st
	}
	return st
}

func gaugeValue(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

func stateName(v int) string {
	switch v {
	case 0:
		return "idle"
	case 1:
		return "running"
	case 2:
		return "restarting"
	case 3:
		return "stopping"
	case 4:
		return "stopped"
	default:
		return "unknown"
	}
}

// Format renders the report for terminal output.
func (r *StatusReport) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "tspump %s  up %s  buffer %d packets  bitrate %.0f b/s\n",
		r.Version,
		(time.Duration(r.UptimeSeconds) * time.Second).String(),
		r.BufferPackets,
		r.BitrateBits,
	)

	for _, st := range r.Stages {
		flags := ""
		if st.InputEnd {
			flags += " end"
		}
		if st.Aborting {
			flags += " abort"
		}
		fmt.Fprintf(&b, "  [%d] %-6s %-12s %-10s window=%-5d packets=%-10.0f restarts=%.0f%s\n",
			st.Index, st.Type, st.Name, st.State, st.Window, st.Packets, st.Restarts, flags)
	}

	return b.String()
}

// Package metrics provides Prometheus metrics for tspump.
//
// Per-stage gauges are refreshed from pipeline snapshots by a poller;
// counters and histograms are driven directly by executor callbacks so
// no event is lost between polls.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsforge/tspump/internal/engine"
)

// --- Overview ---
var (
	pumpInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tspump_info",
			Help: "Information about the pump (value always 1)",
		},
		[]string{"version"},
	)

	pumpBufferPackets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tspump_buffer_packets",
			Help: "Global buffer capacity in packets",
		},
	)

	pumpUptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tspump_uptime_seconds",
			Help: "Seconds since the pipeline started",
		},
	)

	pumpBitrateBits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tspump_bitrate_bits_per_second",
			Help: "Bitrate estimate propagated to the output stage",
		},
	)

	pumpBitrateConfidence = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tspump_bitrate_confidence",
			Help: "Confidence of the bitrate estimate (0=low 1=pcr 2=clock 3=override)",
		},
	)
)

// --- Per-stage ---
var (
	stageLabels = []string{"stage", "type", "name"}

	pumpStageWindowPackets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tspump_stage_window_packets",
			Help: "Packets currently owned by this stage",
		},
		stageLabels,
	)

	pumpStageState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tspump_stage_state",
			Help: "Lifecycle state (0=idle 1=running 2=restarting 3=stopping 4=stopped)",
		},
		stageLabels,
	)

	pumpStageInputEnd = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tspump_stage_input_end",
			Help: "End of input seen by this stage (0 or 1)",
		},
		stageLabels,
	)

	pumpStageAborting = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tspump_stage_aborting",
			Help: "Abort flag of this stage (0 or 1)",
		},
		stageLabels,
	)

	pumpStagePacketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tspump_stage_packets_total",
			Help: "Packets handed off downstream by this stage",
		},
		stageLabels,
	)

	pumpStageRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tspump_stage_restarts_total",
			Help: "Completed restart attempts of this stage",
		},
		[]string{"stage", "type", "name", "success"},
	)
)

// --- Flow ---
var (
	pumpHandoffBatchPackets = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tspump_handoff_batch_packets",
			Help:    "Packets transferred per hand-off",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. 2048
		},
	)

	pumpWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tspump_wait_seconds",
			Help:    "Time stages spend blocked waiting for packets",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs .. ~26s
		},
	)
)

// Collector wires the pipeline into the Prometheus metrics above.
type Collector struct {
	version string
	stages  []engine.StageSpec
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	Stages  []engine.StageSpec
}

// NewCollector creates a collector on the default Prometheus registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		version: cfg.Version,
		stages:  cfg.Stages,
	}

	registry.MustRegister(
		pumpInfo,
		pumpBufferPackets,
		pumpUptimeSeconds,
		pumpBitrateBits,
		pumpBitrateConfidence,

		pumpStageWindowPackets,
		pumpStageState,
		pumpStageInputEnd,
		pumpStageAborting,
		pumpStagePacketsTotal,
		pumpStageRestartsTotal,

		pumpHandoffBatchPackets,
		pumpWaitSeconds,
	)

	pumpInfo.WithLabelValues(cfg.Version).Set(1)
	return c
}

// labels returns the label values for one stage index.
func (c *Collector) labels(index int) []string {
	s := c.stages[index]
	return []string{strconv.Itoa(index), s.Type.String(), s.Name}
}

// Callbacks returns executor callbacks feeding the event-driven metrics.
func (c *Collector) Callbacks() engine.Callbacks {
	return engine.Callbacks{
		OnHandoff: func(index, count int) {
			if count > 0 {
				pumpStagePacketsTotal.WithLabelValues(c.labels(index)...).Add(float64(count))
				pumpHandoffBatchPackets.Observe(float64(count))
			}
		},
		OnWait: func(index int, blocked time.Duration, count int) {
			pumpWaitSeconds.Observe(blocked.Seconds())
		},
		OnRestart: func(index int, name string, success bool) {
			s := c.stages[index]
			pumpStageRestartsTotal.WithLabelValues(
				strconv.Itoa(index), s.Type.String(), s.Name, strconv.FormatBool(success),
			).Inc()
		},
	}
}

// UpdateStatus refreshes the snapshot-driven gauges.
func (c *Collector) UpdateStatus(st engine.Status) {
	pumpBufferPackets.Set(float64(st.BufferPackets))
	pumpUptimeSeconds.Set(st.Uptime.Seconds())

	for _, stg := range st.Stages {
		labels := []string{strconv.Itoa(stg.Index), stg.Type, stg.Name}

		pumpStageWindowPackets.WithLabelValues(labels...).Set(float64(stg.Count))
		pumpStageState.WithLabelValues(labels...).Set(float64(stateValue(stg.State)))
		pumpStageInputEnd.WithLabelValues(labels...).Set(boolValue(stg.InputEnd))
		pumpStageAborting.WithLabelValues(labels...).Set(boolValue(stg.Aborting))
	}

	// The output stage carries the bitrate the whole chain settled on
	if n := len(st.Stages); n > 0 {
		last := st.Stages[n-1]
		pumpBitrateBits.Set(float64(last.Bitrate))
		pumpBitrateConfidence.Set(float64(last.Confidence))
	}
}

// Poll refreshes the gauges from snapshot until ctx is done.
func (c *Collector) Poll(ctx context.Context, interval time.Duration, snapshot func() engine.Status) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.UpdateStatus(snapshot())
		}
	}
}

func stateValue(state string) int {
	switch state {
	case "idle":
		return 0
	case "running":
		return 1
	case "restarting":
		return 2
	case "stopping":
		return 3
	case "stopped":
		return 4
	default:
		return -1
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

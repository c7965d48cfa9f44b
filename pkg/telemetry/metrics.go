// Package telemetry exports session counters to Prometheus.
package telemetry

import (
	"time"

	"github.com/lokutor-ai/voicepal/pkg/live"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements live.Metrics as a prometheus.Collector.
type Metrics struct {
	framesSent    prometheus.Counter
	bytesSent     prometheus.Counter
	framesGated   *prometheus.CounterVec
	chunkSeconds  prometheus.Histogram
	interruptions prometheus.Counter
	stateChanges  *prometheus.CounterVec
	state         *prometheus.GaugeVec
	failures      *prometheus.CounterVec
	activeSources prometheus.Gauge

	collectors []prometheus.Collector
}

var states = []live.ConnectionState{live.Disconnected, live.Connecting, live.Connected, live.Errored}

// NewMetrics creates the collectors and registers them on registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicepal_capture_frames_sent_total",
			Help: "Capture frames transmitted to the remote channel",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicepal_capture_bytes_sent_total",
			Help: "PCM bytes transmitted to the remote channel",
		}),
		framesGated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicepal_capture_frames_gated_total",
			Help: "Capture frames withheld, by reason",
		}, []string{"reason"}),
		chunkSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicepal_playback_chunk_seconds",
			Help:    "Duration of scheduled playback chunks",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),
		interruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicepal_playback_interruptions_total",
			Help: "Playback flushes caused by barge-in",
		}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicepal_session_state_changes_total",
			Help: "Connection state transitions, by target state",
		}, []string{"state"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voicepal_session_state",
			Help: "1 for the current connection state",
		}, []string{"state"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicepal_session_failures_total",
			Help: "Session failures, by error kind",
		}, []string{"kind"}),
		activeSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voicepal_playback_active_sources",
			Help: "Scheduled playback buffers not yet finished",
		}),
	}
	m.collectors = []prometheus.Collector{
		m.framesSent, m.bytesSent, m.framesGated, m.chunkSeconds, m.interruptions,
		m.stateChanges, m.state, m.failures, m.activeSources,
	}
	m.setState(live.Disconnected)

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

func (m *Metrics) FrameSent(bytes int) {
	m.framesSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) FrameGated(reason live.GateReason) {
	m.framesGated.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) ChunkScheduled(d time.Duration) {
	m.chunkSeconds.Observe(d.Seconds())
}

func (m *Metrics) Interrupted() {
	m.interruptions.Inc()
}

func (m *Metrics) StateChanged(state live.ConnectionState) {
	m.stateChanges.WithLabelValues(string(state)).Inc()
	m.setState(state)
}

func (m *Metrics) setState(current live.ConnectionState) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(string(s)).Set(v)
	}
}

func (m *Metrics) SessionFailed(kind live.ErrorKind) {
	m.failures.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ActiveSources(n int) {
	m.activeSources.Set(float64(n))
}

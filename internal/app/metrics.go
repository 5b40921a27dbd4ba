package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ayusman/airdrums/internal/kit"
	"github.com/ayusman/airdrums/internal/trigger"
)

// Observation results counted by ObservationsTotal.
const (
	ResultOK          = "ok"
	ResultUnknownSide = "unknown_side"
	ResultInvalid     = "invalid"
)

// Metrics holds Prometheus metrics for the drum pipeline. It implements
// trigger.Observer.
type Metrics struct {
	TriggersTotal     *prometheus.CounterVec
	SuppressedTotal   *prometheus.CounterVec
	ObservationsTotal *prometheus.CounterVec
	FramesTotal       *prometheus.CounterVec
	DetectDuration    prometheus.Histogram
	ActiveMode        prometheus.Gauge
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrums_triggers_total",
			Help: "Drum hits by hand and finger.",
		}, []string{"side", "finger"}),
		SuppressedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrums_suppressed_total",
			Help: "Rising edges dropped by the cooldown, by hand and finger.",
		}, []string{"side", "finger"}),
		ObservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrums_observations_total",
			Help: "Detected hands by processing result.",
		}, []string{"result"}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrums_frames_total",
			Help: "Camera frames processed by pipeline mode.",
		}, []string{"mode"}),
		DetectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "airdrums_detect_duration_seconds",
			Help:    "Hand landmark detection time per frame.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 8), // 5ms .. ~640ms
		}),
		ActiveMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airdrums_active_mode",
			Help: "1 while the pipeline runs at the active frame rate.",
		}),
	}

	reg.MustRegister(
		m.TriggersTotal,
		m.SuppressedTotal,
		m.ObservationsTotal,
		m.FramesTotal,
		m.DetectDuration,
		m.ActiveMode,
	)

	return m
}

// Triggered counts a hit.
func (m *Metrics) Triggered(ev trigger.Event) {
	m.TriggersTotal.WithLabelValues(ev.Side.String(), ev.Finger.String()).Inc()
}

// Suppressed counts an edge that fell inside the cooldown.
func (m *Metrics) Suppressed(side kit.Side, finger kit.Finger, _ time.Duration) {
	m.SuppressedTotal.WithLabelValues(side.String(), finger.String()).Inc()
}

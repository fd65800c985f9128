// Package metrics exposes counter and occupancy metrics for Prometheus
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teslashibe/go-occupancy/pkg/tracking"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame counters
	FramesProcessed atomic.Uint64
	InvalidFrames   atomic.Uint64
	DetectionRounds atomic.Uint64

	// Current state
	LiveEntities atomic.Int64
	Occupancy    atomic.Int64
	MaxCapacity  atomic.Int64

	crossings         *prometheus.CounterVec
	detectionLatency  prometheus.Histogram
	alertsSent        prometheus.Counter
	dashboardClients  atomic.Int64
	processingLatency prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		crossings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "occupancy_crossings_total",
			Help: "Boundary crossings by direction",
		}, []string{"event"}),
		detectionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "occupancy_detection_seconds",
			Help:    "Detector forward pass latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		processingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "occupancy_frame_processing_seconds",
			Help:    "Time to process one frame including tracking and drawing",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		alertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_capacity_alerts_total",
			Help: "Capacity alerts raised",
		}),
	}

	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.crossings, m.detectionLatency, m.processingLatency, m.alertsSent)

	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"occupancy_frames_processed_total", "Total frames processed", func() float64 { return float64(m.FramesProcessed.Load()) }},
		{"occupancy_invalid_frames_total", "Total frames rejected as invalid", func() float64 { return float64(m.InvalidFrames.Load()) }},
		{"occupancy_detection_rounds_total", "Total detection rounds", func() float64 { return float64(m.DetectionRounds.Load()) }},
		{"occupancy_live_entities", "Entities currently tracked", func() float64 { return float64(m.LiveEntities.Load()) }},
		{"occupancy_current", "People currently inside", func() float64 { return float64(m.Occupancy.Load()) }},
		{"occupancy_max_capacity", "Configured max capacity (0 = unset)", func() float64 { return float64(m.MaxCapacity.Load()) }},
		{"occupancy_dashboard_clients", "Connected dashboard websocket clients", func() float64 { return float64(m.dashboardClients.Load()) }},
	}

	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.fn,
		))
	}
}

// ObserveFrame records one processed frame
func (m *Metrics) ObserveFrame(res tracking.Result, elapsed time.Duration) {
	m.FramesProcessed.Add(1)
	m.LiveEntities.Store(int64(len(res.Entities)))
	m.processingLatency.Observe(elapsed.Seconds())

	if res.Status == tracking.StatusDetecting {
		m.DetectionRounds.Add(1)
		m.detectionLatency.Observe(res.DetectionDuration.Seconds())
	}

	for _, ev := range res.Events {
		m.crossings.WithLabelValues(ev.String()).Inc()
	}
}

// ObserveOccupancy records the ledger's count and limit
func (m *Metrics) ObserveOccupancy(occupancy, maxCapacity int) {
	m.Occupancy.Store(int64(occupancy))
	m.MaxCapacity.Store(int64(maxCapacity))
}

// AlertSent counts a capacity alert
func (m *Metrics) AlertSent() {
	m.alertsSent.Inc()
}

// SetDashboardClients records the number of websocket clients
func (m *Metrics) SetDashboardClients(n int) {
	m.dashboardClients.Store(int64(n))
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

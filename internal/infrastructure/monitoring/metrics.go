package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Frame legs
const (
	LegClient = "client"
	LegScale  = "scale"
)

// Frame directions
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Wire metrics
	FramesTotal *prometheus.CounterVec
	FrameBytes  *prometheus.HistogramVec
	ErrorFrames *prometheus.CounterVec

	// Connection metrics
	ConnectionsActive *prometheus.GaugeVec
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec

	// Tile worker metrics
	TilesTotal   *prometheus.CounterVec
	TileDuration *prometheus.HistogramVec

	// Artifact metrics
	ArtifactsPersisted prometheus.Counter
	ArtifactBytes      prometheus.Histogram

	// Lifecycle metrics
	LifecycleState prometheus.Gauge
	Uptime         prometheus.GaugeFunc
	startTime      time.Time

	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current values for logs and tests
type MetricsSnapshot struct {
	TotalRequests     int64
	TotalFailures     int64
	ActiveConnections int64
	TilesProcessed    int64
}

// NewMetrics creates a new metrics collector backed by its own registry so
// several collectors can coexist in one process.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		startTime: time.Now(),

		FramesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tilerelay_frames_total",
				Help: "Total number of frames read or written",
			},
			[]string{"leg", "direction"},
		),
		FrameBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tilerelay_frame_bytes",
				Help:    "Frame payload size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"leg", "direction"},
		),
		ErrorFrames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tilerelay_error_frames_total",
				Help: "Total number of error frames sent",
			},
			[]string{"leg", "kind"},
		),

		ConnectionsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tilerelay_connections_active",
				Help: "Number of connections currently being served",
			},
			[]string{"service"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tilerelay_requests_total",
				Help: "Total number of handled requests by outcome",
			},
			[]string{"service", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tilerelay_request_duration_seconds",
				Help:    "Request handling duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service"},
		),

		TilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tilerelay_tiles_total",
				Help: "Total number of tiles processed by workers",
			},
			[]string{"transport", "filtered"},
		),
		TileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tilerelay_tile_duration_seconds",
				Help:    "Per-tile worker duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"transport"},
		),

		ArtifactsPersisted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tilerelay_artifacts_persisted_total",
				Help: "Total number of scaled images persisted",
			},
		),
		ArtifactBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tilerelay_artifact_bytes",
				Help:    "Persisted artifact size in bytes",
				Buckets: []float64{1000, 10000, 100000, 1000000, 10000000},
			},
		),

		LifecycleState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tilerelay_lifecycle_state",
				Help: "Process lifecycle state (0 running, 1 draining, 2 terminated)",
			},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tilerelay_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFrame records one frame crossing a leg
func (m *Metrics) RecordFrame(leg, direction string, size int) {
	m.FramesTotal.WithLabelValues(leg, direction).Inc()
	m.FrameBytes.WithLabelValues(leg, direction).Observe(float64(size))
}

// RecordErrorFrame records an error frame sent on a leg
func (m *Metrics) RecordErrorFrame(leg, kind string) {
	m.ErrorFrames.WithLabelValues(leg, kind).Inc()
}

// ConnectionOpened increments the active connection gauge
func (m *Metrics) ConnectionOpened(service string) {
	m.ConnectionsActive.WithLabelValues(service).Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// ConnectionClosed decrements the active connection gauge
func (m *Metrics) ConnectionClosed(service string) {
	m.ConnectionsActive.WithLabelValues(service).Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// RecordRequest records a finished request and its outcome ("ok" or an error kind)
func (m *Metrics) RecordRequest(service, outcome string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, outcome).Inc()
	m.RequestDuration.WithLabelValues(service).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if outcome != "ok" {
		m.snapshot.TotalFailures++
	}
	m.mu.Unlock()
}

// RecordTile records one tile worker run
func (m *Metrics) RecordTile(transport string, filtered bool, duration time.Duration) {
	label := "false"
	if filtered {
		label = "true"
	}
	m.TilesTotal.WithLabelValues(transport, label).Inc()
	m.TileDuration.WithLabelValues(transport).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TilesProcessed++
	m.mu.Unlock()
}

// RecordArtifact records a persisted artifact
func (m *Metrics) RecordArtifact(size int) {
	m.ArtifactsPersisted.Inc()
	m.ArtifactBytes.Observe(float64(size))
}

// SetLifecycleState records the numeric lifecycle state
func (m *Metrics) SetLifecycleState(state int) {
	m.LifecycleState.Set(float64(state))
}

// Snapshot returns a copy of the tracked counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Fields renders the snapshot as log fields
func (s MetricsSnapshot) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("requests", s.TotalRequests),
		zap.Int64("failures", s.TotalFailures),
		zap.Int64("active_connections", s.ActiveConnections),
		zap.Int64("tiles", s.TilesProcessed),
	}
}

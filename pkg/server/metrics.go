package server

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// getMetrics returns the process-wide metrics instance. Prometheus
// collectors register globally, so they are created once even when
// several servers exist in one process (tests).
func getMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = NewMetrics()
	})
	return sharedMetrics
}

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	activeSessions       prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter

	commandsReceived *prometheus.CounterVec // by command
	commandDuration  *prometheus.HistogramVec

	evictions prometheus.Counter
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "accountserver_active_sessions",
				Help: "Current number of active sessions",
			},
		),
		sessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "accountserver_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		sessionsDisconnected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "accountserver_sessions_disconnected_total",
				Help: "Total number of sessions disconnected",
			},
		),
		commandsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accountserver_commands_received_total",
				Help: "Total number of commands received by command name",
			},
			[]string{"command"},
		),
		commandDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accountserver_command_duration_seconds",
				Help:    "Time taken to process a command",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		evictions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "accountserver_evictions_total",
				Help: "Total number of sessions evicted by forced logins",
			},
		),
	}
}

// RecordActiveSessions updates the active session count
func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordSessionCreated increments the session creation counter
func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

// RecordSessionDisconnected increments the session disconnection counter
func (m *Metrics) RecordSessionDisconnected() {
	m.sessionsDisconnected.Inc()
}

// RecordCommand records one processed command and its duration
func (m *Metrics) RecordCommand(command string, duration time.Duration) {
	m.commandsReceived.WithLabelValues(command).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordEviction increments the eviction counter
func (m *Metrics) RecordEviction() {
	m.evictions.Inc()
}

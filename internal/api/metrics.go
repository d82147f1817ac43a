package api

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nerrad567/graychat-core/internal/room"
)

const metricsNamespace = "graychat"

// Handshake results.
const (
	handshakeAccepted     = "accepted"
	handshakeUnauthorized = "unauthorized"
	handshakeInvalidRoom  = "invalid_room"
	handshakeNotFound     = "not_found"
	handshakeError        = "error"
)

// metrics holds the server's Prometheus collectors.
type metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	decisions   *prometheus.CounterVec
	handshakes  *prometheus.CounterVec
	connections prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "access_decisions_total",
			Help:      "Room access decisions by action and result.",
		}, []string{"action", "result"}),
		handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ws_handshakes_total",
			Help:      "WebSocket handshake gate outcomes.",
		}, []string{"result"}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
	}
}

func (m *metrics) observeRequest(method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, statusLabel(status)).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// observeDecision counts one room.Decide outcome.
func (m *metrics) observeDecision(action room.Action, err error) {
	result := "allow"
	switch {
	case err == nil:
	case errors.Is(err, room.ErrAuthRequired):
		result = "auth_required"
	default:
		result = "forbidden"
	}
	m.decisions.WithLabelValues(string(action), result).Inc()
}

func (m *metrics) observeHandshake(result string) {
	m.handshakes.WithLabelValues(result).Inc()
}

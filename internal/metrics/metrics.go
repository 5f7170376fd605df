// Package metrics exposes Prometheus collectors for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomrelay"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Relay holds the relay's collectors. A nil *Relay is valid and records nothing.
type Relay struct {
	ActiveConnections     prometheus.Gauge
	ActiveRooms           prometheus.Gauge
	FramesReceived        *prometheus.CounterVec
	Deliveries            prometheus.Counter
	DeliveryFailures      prometheus.Counter
	Kicks                 prometheus.Counter
	HeartbeatTerminations prometheus.Counter
	RateLimited           prometheus.Counter
}

// NewRelay creates and registers the relay metrics on reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of open client connections.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "active",
			Help:      "Number of rooms with at least one member.",
		}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_received_total",
			Help:      "Inbound frames by request type.",
		}, []string{"type"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Frames queued for delivery to a client.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "delivery_failures_total",
			Help:      "Frames dropped because the recipient could not accept them.",
		}),
		Kicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "kicks_total",
			Help:      "Members removed by a room owner.",
		}),
		HeartbeatTerminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "terminations_total",
			Help:      "Connections terminated after a missed heartbeat.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rate_limited_frames_total",
			Help:      "Inbound frames discarded by the per-connection rate limit.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.ActiveRooms,
		m.FramesReceived,
		m.Deliveries,
		m.DeliveryFailures,
		m.Kicks,
		m.HeartbeatTerminations,
		m.RateLimited,
	)
	return m
}

var knownFrameTypes = map[string]struct{}{
	"create": {}, "join": {}, "leave": {}, "message": {}, "exists": {}, "kick": {},
}

// ConnectionOpened increments the open connection gauge.
func (m *Relay) ConnectionOpened() {
	if m != nil {
		m.ActiveConnections.Inc()
	}
}

// ConnectionClosed decrements the open connection gauge.
func (m *Relay) ConnectionClosed() {
	if m != nil {
		m.ActiveConnections.Dec()
	}
}

// SetRooms records the number of live rooms.
func (m *Relay) SetRooms(n int) {
	if m != nil {
		m.ActiveRooms.Set(float64(n))
	}
}

// FrameReceived counts an inbound frame. Unrecognised types share one label
// value to keep cardinality bounded.
func (m *Relay) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	if _, ok := knownFrameTypes[frameType]; !ok {
		frameType = "other"
	}
	m.FramesReceived.WithLabelValues(frameType).Inc()
}

// Delivered counts a send attempt as a delivery or, when ok is false, a failure.
func (m *Relay) Delivered(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Deliveries.Inc()
	} else {
		m.DeliveryFailures.Inc()
	}
}

// Kicked counts a member removed by a room owner.
func (m *Relay) Kicked() {
	if m != nil {
		m.Kicks.Inc()
	}
}

// HeartbeatTerminated counts a connection dropped for missing a heartbeat.
func (m *Relay) HeartbeatTerminated() {
	if m != nil {
		m.HeartbeatTerminations.Inc()
	}
}

// FrameRateLimited counts an inbound frame discarded by the rate limiter.
func (m *Relay) FrameRateLimited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}

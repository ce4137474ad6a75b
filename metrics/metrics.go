package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors shared by the socket layer and the router.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Connections   prometheus.Gauge
	FramesIn      *prometheus.CounterVec
	FramesDropped *prometheus.CounterVec
	EventsOut     *prometheus.CounterVec
	Rejected      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "messenger",
			Name:      "socket_connections",
			Help:      "Open WebSocket connections on this node.",
		}),
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messenger",
			Name:      "frames_in_total",
			Help:      "Client frames accepted, by event type.",
		}, []string{"type"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messenger",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped, by reason.",
		}, []string{"reason"}),
		EventsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messenger",
			Name:      "events_out_total",
			Help:      "Server events fanned out, by event type.",
		}, []string{"type"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messenger",
			Name:      "requests_rejected_total",
			Help:      "Socket and REST operations rejected by validation, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.Connections, m.FramesIn, m.FramesDropped, m.EventsOut, m.Rejected)
	return m
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) FrameIn(kind string) {
	if m != nil {
		m.FramesIn.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) FrameDropped(reason string) {
	if m != nil {
		m.FramesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) EventOut(kind string) {
	if m != nil {
		m.EventsOut.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Reject(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}

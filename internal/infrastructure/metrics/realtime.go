package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics holds Prometheus metrics for the notification fan-out.
type RealtimeMetrics struct {
	ActiveConnections prometheus.Gauge
	MessagesDelivered prometheus.Counter
	DeliveryFailures  prometheus.Counter
	EventsDropped     prometheus.Counter
	HandshakeRejected *prometheus.CounterVec
}

// NewRealtimeMetrics creates and registers realtime metrics on the given registry.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	m := &RealtimeMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of live WebSocket connections.",
		}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_delivered_total",
			Help:      "Total number of event messages written to connections.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "delivery_failures_total",
			Help:      "Total number of failed sends that caused a disconnect.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped before dispatch.",
		}),
		HandshakeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "handshake_rejected_total",
			Help:      "Total number of refused connection attempts by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.MessagesDelivered,
		m.DeliveryFailures,
		m.EventsDropped,
		m.HandshakeRejected,
	)
	return m
}

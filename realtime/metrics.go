package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by one client.
type Metrics struct {
	framesSent        *prometheus.CounterVec
	framesReceived    *prometheus.CounterVec
	framesQueued      prometheus.Counter
	framesDropped     *prometheus.CounterVec
	connectAttempts   prometheus.Counter
	messagesDelivered *prometheus.CounterVec
	connectionState   prometheus.Gauge
}

// NewMetrics registers the client collectors on registry. A nil registry gets
// a private one so several clients can live in one process.
func NewMetrics(namespace string, registry prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "realtime"
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the socket, by event type",
		}, []string{"event_type"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames decoded from the socket, by event type",
		}, []string{"event_type"}),

		framesQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_queued_total",
			Help:      "Outbound frames queued until the next connection",
		}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Outbound frames discarded, by reason",
		}, []string{"reason"}),

		connectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Socket connection attempts",
		}),

		messagesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Channel messages handed to listeners, by channel",
		}, []string{"channel"}),

		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0=uninitialized .. 6=failed)",
		}),
	}
}

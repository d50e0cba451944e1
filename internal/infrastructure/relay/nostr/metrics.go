package nostrrelay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "pls_relay"

type relayMetrics struct {
	published  *prometheus.CounterVec
	received   *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	reconnects *prometheus.CounterVec
	connected  prometheus.Gauge
}

// newRelayMetrics registers the collectors on registry. A nil registry
// leaves them unregistered.
func newRelayMetrics(registry prometheus.Registerer) *relayMetrics {
	factory := promauto.With(registry)
	return &relayMetrics{
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "published_events_total",
			Help:      "number of events sent to a relay, by outcome",
		}, []string{"relay", "result"}),
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "received_events_total",
			Help:      "number of verified events received from a relay",
		}, []string{"relay"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_events_total",
			Help:      "number of events received from a relay that failed verification",
		}, []string{"relay"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "subscription_retries_total",
			Help:      "number of times a relay subscription was restarted",
		}, []string{"relay"}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_relays",
			Help:      "number of open relay connections",
		}),
	}
}

package broker

import "github.com/prometheus/client_golang/prometheus"

// metrics is the broker's Prometheus surface, exposed at GET /metrics via
// the same library Oremus-Labs-ol-model-manager depends on.
type metrics struct {
	connectionsTotal   prometheus.Counter
	connectionsCurrent prometheus.Gauge
	envelopesTotal     *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvbroker_connections_total",
			Help: "Total accepted client connections.",
		}),
		connectionsCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvbroker_connections_current",
			Help: "Currently live client connections.",
		}),
		envelopesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvbroker_envelopes_total",
			Help: "Inbound envelopes processed, by opcode.",
		}, []string{"opcode"}),
	}
	registerer.MustRegister(
		m.connectionsTotal,
		m.connectionsCurrent,
		m.envelopesTotal,
	)
	return m
}

// Package metrics contains the Prometheus instrumentation for the
// collaboration server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	ConnectionsOpen   prometheus.Gauge
	CommandsTotal     *prometheus.CounterVec
	BroadcastsTotal   prometheus.Counter
	DroppedDeliveries prometheus.Counter
}

// New creates and registers the server metrics with the given registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teamboard_connections_open",
			Help: "Current number of open client connections",
		}),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamboard_commands_total",
				Help: "Total number of processed commands",
			},
			[]string{"command", "outcome"}, // outcome: ok/error
		),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamboard_broadcasts_total",
			Help: "Total number of fan-out messages accepted by the hub",
		}),
		DroppedDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamboard_dropped_deliveries_total",
			Help: "Deliveries dropped because a client send buffer was full",
		}),
	}

	registerer.MustRegister(
		m.ConnectionsOpen,
		m.CommandsTotal,
		m.BroadcastsTotal,
		m.DroppedDeliveries,
	)
	return m
}

// NewNop returns metrics backed by a private registry, for tests and for
// wiring without a gateway.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

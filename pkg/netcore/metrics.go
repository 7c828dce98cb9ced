package netcore

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the reactor's Prometheus collectors on an isolated
// registry, so a process embedding multiple Protocol instances (tests,
// or a future multi-network host) never collides on the global default
// registry, following the same isolated-registry pattern used for this
// module's daemon-level metrics.
type Metrics struct {
	Registry *prometheus.Registry

	ReconnectAttemptsTotal *prometheus.CounterVec
	HandshakeFailuresTotal *prometheus.CounterVec
	InventoryAcceptedTotal *prometheus.CounterVec
	InventoryDroppedTotal  *prometheus.CounterVec
	InventoryRelayedTotal  *prometheus.CounterVec
	DisconnectsTotal       *prometheus.CounterVec

	NegotiatedPeers    prometheus.Gauge
	RoutingTableProjects prometheus.Gauge
}

// NewMetrics builds a Metrics instance with every collector registered
// on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ReconnectAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshgit",
				Subsystem: "peer",
				Name:      "reconnect_attempts_total",
				Help:      "Reconnect attempts issued for persistent peers, by outcome.",
			},
			[]string{"result"},
		),
		HandshakeFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshgit",
				Subsystem: "peer",
				Name:      "handshake_failures_total",
				Help:      "Handshake attempts that ended in a disconnect before Negotiated, by reason.",
			},
			[]string{"reason"},
		),
		InventoryAcceptedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshgit",
				Subsystem: "gossip",
				Name:      "inventory_accepted_total",
				Help:      "Inbound Inventory messages admitted into routing.",
			},
			[]string{},
		),
		InventoryDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshgit",
				Subsystem: "gossip",
				Name:      "inventory_dropped_total",
				Help:      "Inbound Inventory messages dropped as stale re-advertisements.",
			},
			[]string{},
		),
		InventoryRelayedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshgit",
				Subsystem: "gossip",
				Name:      "inventory_relayed_total",
				Help:      "Outbound relay writes produced from an admitted Inventory.",
			},
			[]string{},
		),
		DisconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshgit",
				Subsystem: "peer",
				Name:      "disconnects_total",
				Help:      "Connections torn down, by DisconnectReason kind.",
			},
			[]string{"reason"},
		),
		NegotiatedPeers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meshgit",
				Subsystem: "peer",
				Name:      "negotiated_peers",
				Help:      "Connections currently in the Negotiated state.",
			},
		),
		RoutingTableProjects: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meshgit",
				Subsystem: "gossip",
				Name:      "routing_table_projects",
				Help:      "Distinct project ids currently present in the routing table.",
			},
		),
	}

	reg.MustRegister(
		m.ReconnectAttemptsTotal,
		m.HandshakeFailuresTotal,
		m.InventoryAcceptedTotal,
		m.InventoryDroppedTotal,
		m.InventoryRelayedTotal,
		m.DisconnectsTotal,
		m.NegotiatedPeers,
		m.RoutingTableProjects,
	)

	return m
}

// Package metrics exposes the Prometheus counters and gauges operators use
// to watch session churn and protocol health (SPEC_FULL.md §7).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConnectionsAccepted counts TCP accepts per listener (login, auth).
	ConnectionsAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ac5gate",
		Name:      "connections_accepted_total",
		Help:      "TCP connections accepted, by listener.",
	}, []string{"listener"})

	// ActiveAuthSessions tracks live authentication state machines.
	ActiveAuthSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ac5gate",
		Name:      "active_auth_sessions",
		Help:      "Authentication sessions currently in progress.",
	})

	// AuthCompletions counts terminal authentication outcomes.
	AuthCompletions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ac5gate",
		Name:      "auth_completions_total",
		Help:      "Authentication sessions that reached a terminal state, by outcome.",
	}, []string{"outcome"})

	// ProtocolViolations counts disconnects caused by malformed or
	// out-of-order protocol traffic, by subsystem.
	ProtocolViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ac5gate",
		Name:      "protocol_violations_total",
		Help:      "Connections torn down due to a protocol violation, by subsystem.",
	}, []string{"subsystem"})

	// FSDPRetransmits counts sequenced FSDP packets resent after RTO
	// expiry.
	FSDPRetransmits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ac5gate",
		Name:      "fsdp_retransmits_total",
		Help:      "FSDP sequenced packets retransmitted after RTO expiry.",
	})
)

// Registry bundles the collectors above into a fresh prometheus.Registry,
// keeping this package's metrics out of the default global registry.
func Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		ConnectionsAccepted,
		ActiveAuthSessions,
		AuthCompletions,
		ProtocolViolations,
		FSDPRetransmits,
	)
	return reg
}

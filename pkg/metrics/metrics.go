// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package metrics exposes lispd's Prometheus instrumentation: dropped
// datagrams, outstanding nonces, current NAT status, and locator
// reachability transitions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "lispd"

var (
	// DroppedDatagrams counts dropped datagrams, labeled by reason: outbound
	// ones rejected before sending (e.g. "mtu-exceeded") and inbound ones
	// discarded on receipt (e.g. "malformed", "auth").
	DroppedDatagrams = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_datagrams_total",
		Help:      "Datagrams dropped, inbound or outbound, by reason.",
	}, []string{"reason"})

	// OutstandingNonces reports the number of nonces currently awaiting a
	// reply across all purposes.
	OutstandingNonces = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outstanding_nonces",
		Help:      "Number of nonces currently awaiting a matching reply.",
	})

	// NATStatus reports the device's current NAT-status belief as a set of
	// gauges, exactly one of which is 1 at a time.
	NATStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "nat_status",
		Help:      "Current NAT-status belief (1 for the active status, 0 otherwise).",
	}, []string{"status"})

	// LocatorTransitions counts reachability transitions observed via RLOC
	// probing, labeled by locator and the state transitioned to.
	LocatorTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "locator_transitions_total",
		Help:      "Locator reachability transitions observed by RLOC probing.",
	}, []string{"locator", "state"})
)

// MustRegister registers every lispd collector against reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(DroppedDatagrams, OutstandingNonces, NATStatus, LocatorTransitions)
}

// RecordDrop increments the dropped-datagram counter for reason.
func RecordDrop(reason string) {
	DroppedDatagrams.WithLabelValues(reason).Inc()
}

// SetOutstandingNonces sets the outstanding-nonce gauge.
func SetOutstandingNonces(n int) {
	OutstandingNonces.Set(float64(n))
}

// SetNATStatus zeroes every status gauge and sets only the active one.
func SetNATStatus(status string) {
	NATStatus.Reset()
	NATStatus.WithLabelValues(status).Set(1)
}

// RecordLocatorTransition increments the transition counter for a locator
// moving into state.
func RecordLocatorTransition(locator, state string) {
	LocatorTransitions.WithLabelValues(locator, state).Inc()
}

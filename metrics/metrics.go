/*
Package metrics exposes Prometheus counters for the credit engine.

PURPOSE:
  Operational visibility into the hot paths: how many entries are
  posted per type, how authorizations resolve, and how settlements
  reconcile. Scraped via GET /metrics (promhttp).
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesPosted counts committed ledger entries by type.
	EntriesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_ledger_entries_posted_total",
		Help: "Ledger entries committed, by entry type.",
	}, []string{"type"})

	// Authorizations counts booking credit authorizations by result:
	// granted, insufficient, state, conflict, error.
	Authorizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_gate_authorizations_total",
		Help: "Booking credit authorization attempts, by result.",
	}, []string{"result"})

	// Reconciliations counts settlement reconciliations by outcome.
	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_settlement_reconciliations_total",
		Help: "Settlement reconciliations, by outcome.",
	}, []string{"outcome"})

	// LockConflicts counts bounded-wait failures on per-link sections.
	LockConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credit_ledger_lock_conflicts_total",
		Help: "Per-link exclusive section acquisitions that timed out.",
	})
)

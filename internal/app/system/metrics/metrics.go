// internal/app/system/metrics/metrics.go

// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcileTotal counts reconciliation runs by terminal outcome
	// (resolved, needs_onboarding, transient, superseded).
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muster_reconcile_total",
		Help: "Membership reconciliation runs by outcome",
	}, []string{"outcome"})

	// ReconcileRepairsTotal counts repair-forward re-adds of a member
	// missing from their cached group.
	ReconcileRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muster_reconcile_repairs_total",
		Help: "Memberships repaired forward during reconciliation",
	})

	// LockAcquireTotal counts advisory-lock acquisition attempts.
	LockAcquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muster_lock_acquire_total",
		Help: "Advisory lock acquisition attempts by result (acquired, busy, error)",
	}, []string{"result"})

	// GroupDeletionsTotal counts completed locked group deletions.
	GroupDeletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muster_group_deletions_total",
		Help: "Group deletions completed under lock",
	})
)

package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callbacksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paysync_callbacks_received_total",
		Help: "Gateway callbacks accepted at the ingress.",
	})
	callbacksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paysync_callbacks_rejected_total",
		Help: "Gateway callbacks rejected by signature verification.",
	})
	callbacksDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paysync_callbacks_discarded_total",
		Help: "Callbacks discarded because they would regress order status.",
	})
	reconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paysync_reconcile_outcomes_total",
		Help: "Reconciliation outcomes by source and result.",
	}, []string{"source", "outcome"})
	pollEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paysync_poll_events_total",
		Help: "Transaction events returned by the gateway event stream.",
	})
	pollEventsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paysync_poll_events_deduped_total",
		Help: "Polled events skipped by the in-memory dedup set.",
	})
	pollEventsStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paysync_poll_events_stale_total",
		Help: "Polled events skipped because they exceed the age horizon.",
	})
	sweepFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paysync_sweep_finalized_total",
		Help: "Provisional orders finalized by the reconciliation sweep.",
	})
	sweepDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paysync_sweep_deleted_total",
		Help: "Expired provisional orders deleted by the sweep.",
	})
	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paysync_sweep_failures_total",
		Help: "Per-order sweep checks that failed and were isolated.",
	})
	finalizeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paysync_finalize_retries_total",
		Help: "Retries of the atomic finalize-transaction write.",
	})
)

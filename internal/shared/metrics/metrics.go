package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived counts events handed to the dispatcher.
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vol_events_received_total",
			Help: "Events handed to the dispatcher, by source and kind",
		},
		[]string{"source", "kind"},
	)

	// Decisions counts novelty decisions.
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vol_novelty_decisions_total",
			Help: "Novelty decisions, by source and outcome (deliver, suppress, record, conflict, exhausted)",
		},
		[]string{"source", "outcome"},
	)

	// Deliveries counts per-subscriber delivery attempts.
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vol_deliveries_total",
			Help: "Per-subscriber deliveries, by source and result (ok, gone, refused, failed, unbound, filtered)",
		},
		[]string{"source", "result"},
	)

	// SubscriptionCleanups counts subscriptions removed because the destination disappeared.
	SubscriptionCleanups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vol_subscription_cleanups_total",
			Help: "Subscriptions removed after their destination was gone",
		},
		[]string{"source"},
	)

	// PollErrors counts resources skipped in a poll cycle.
	PollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vol_poll_errors_total",
			Help: "Resources skipped by the poller, by source and stage (fetch, dispatch)",
		},
		[]string{"source", "stage"},
	)

	// LeaseRenewals counts push lease requests.
	LeaseRenewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vol_lease_requests_total",
			Help: "Push lease requests, by source, mode and result",
		},
		[]string{"source", "mode", "result"},
	)

	// WebhookTasks counts detached webhook processing units.
	WebhookTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vol_webhook_tasks_total",
			Help: "Detached webhook processing units, by source and result",
		},
		[]string{"source", "result"},
	)
)

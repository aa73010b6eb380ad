package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики pipeline'а приёма и выполнения.
var (
	// WebhooksAccepted — принятые webhook-доставки, создавшие новый run.
	WebhooksAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hookrelay_webhooks_accepted_total",
		Help: "Webhook deliveries that created a new run",
	})

	// WebhooksDeduplicated — повторные доставки, схлопнутые в существующий run.
	WebhooksDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hookrelay_webhooks_deduplicated_total",
		Help: "Webhook deliveries collapsed into an existing run",
	})

	// WebhooksRejected — отклонённые доставки по причинам.
	WebhooksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_webhooks_rejected_total",
		Help: "Webhook deliveries rejected at admission",
	}, []string{"reason"})

	// ActionAttempts — попытки вызова downstream action по исходу.
	ActionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_action_attempts_total",
		Help: "Downstream action invocation attempts by outcome",
	}, []string{"outcome"})

	// RunsTerminalized — runs, достигшие терминального статуса.
	RunsTerminalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_runs_terminalized_total",
		Help: "Runs that reached a terminal status",
	}, []string{"status"})

	// SweepRequeued — runs, подхваченные idle-sweep'ом воркера.
	SweepRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hookrelay_sweep_requeued_total",
		Help: "Stale queued runs picked up by the worker sweep",
	})
)

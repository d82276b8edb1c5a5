// Package metrics holds the Prometheus collectors shared across lexi.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WSConnections is the number of open realtime connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lexi_ws_connections",
		Help: "Open realtime connections",
	})

	// OnlineUsers is the number of users with at least one open connection.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lexi_online_users",
		Help: "Users with at least one open realtime connection",
	})

	// Broadcasts counts relay events by type.
	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexi_relay_broadcasts_total",
		Help: "Relay events published, by event type",
	}, []string{"type"})

	// BroadcastFailures counts per-connection delivery failures.
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lexi_relay_delivery_failures_total",
		Help: "Failed deliveries to individual connections",
	})

	// AIQueryDuration measures AI backend query latency by outcome.
	AIQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lexi_ai_query_duration_seconds",
		Help:    "AI backend query latency",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"outcome"})

	// AITasks counts detached AI reply tasks by outcome.
	AITasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexi_ai_tasks_total",
		Help: "Detached AI reply tasks, by outcome",
	}, []string{"outcome"})

	// EmbeddingCommands counts embedding commands by outcome.
	EmbeddingCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexi_embedding_commands_total",
		Help: "Embedding commands published, by outcome",
	}, []string{"outcome"})

	// HTTPRequests counts edge requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexi_http_requests_total",
		Help: "HTTP requests, by route and status",
	}, []string{"method", "route", "status"})

	// HTTPDuration measures edge request latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lexi_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// ReconcileRuns counts background reconciliation runs by job and outcome.
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexi_reconcile_runs_total",
		Help: "Background reconciliation runs, by job and outcome",
	}, []string{"job", "outcome"})
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

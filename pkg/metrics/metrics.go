// Package metrics provides Prometheus instruments for the delivery core.
// Everything here is observational; nothing reads a metric to make a
// control-flow decision.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed counts events entering the router, labeled by kind
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opentrack",
			Name:      "events_processed_total",
			Help:      "Total events fanned out to destinations",
		},
		[]string{"type"},
	)

	// Deliveries counts per-destination outcomes
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opentrack",
			Name:      "deliveries_total",
			Help:      "Per-destination delivery outcomes",
		},
		[]string{"integration", "status"},
	)

	// DeliveryDuration tracks per-destination delivery latency
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "opentrack",
			Name:      "delivery_duration_seconds",
			Help:      "Per-destination delivery latency",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"integration"},
	)

	// RetryAttempts counts retried delivery attempts
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opentrack",
			Name:      "retry_attempts_total",
			Help:      "Delivery attempts beyond the first, per destination",
		},
		[]string{"integration"},
	)

	// SchemaChanges counts remote schema mutations by the table manager
	SchemaChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opentrack",
			Name:      "schema_changes_total",
			Help:      "Warehouse tables created or widened",
		},
		[]string{"operation"},
	)
)

// Outcome label values for Deliveries
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Wallet operations by transaction type and outcome kind",
		},
		[]string{"type", "outcome"},
	)

	LedgerOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Latency of wallet operations including retries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
		[]string{"type"},
	)

	RequestsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_requests_processed_total",
			Help: "Deposit and withdrawal requests moved to a terminal status",
		},
		[]string{"kind", "status"},
	)

	PositionsMatured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_positions_matured_total",
			Help: "Staking and investment positions closed",
		},
		[]string{"position"},
	)

	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_audit_events_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

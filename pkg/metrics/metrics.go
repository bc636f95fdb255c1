// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks devserver HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total devserver HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ReconciliationsTotal tracks entitlement reconciliation runs by outcome.
	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_reconciliations_total",
			Help: "Entitlement reconciliation runs",
		},
		[]string{"outcome"},
	)

	// EntitlementSyncFailures tracks platform receipts that could not be
	// mirrored to the backend.
	EntitlementSyncFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlement_sync_failures_total",
			Help: "Platform entitlement sync failures",
		},
	)

	// MessagesSentTotal tracks chat sends by outcome.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Chat message send attempts",
		},
		[]string{"outcome"},
	)

	// QuotaRejectionsTotal tracks sends rejected by the local free-tier gate.
	QuotaRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_quota_rejections_total",
			Help: "Sends rejected before any network call by the quota gate",
		},
	)

	// PurchasesTotal tracks purchase flow outcomes.
	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_purchases_total",
			Help: "Platform purchase flow outcomes",
		},
		[]string{"outcome"},
	)

	// SendDuration tracks end-to-end chat send latency.
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_send_duration_seconds",
			Help:    "Chat message send duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)
)

// Reconciliation outcome labels.
const (
	OutcomeSubscribed    = "subscribed"
	OutcomeNotSubscribed = "not_subscribed"
	OutcomeError         = "error"
)

// RecordRequest records metrics for a devserver HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordReconciliation records a reconciliation run.
func RecordReconciliation(outcome string) {
	ReconciliationsTotal.WithLabelValues(outcome).Inc()
}

// RecordSend records a chat send attempt.
func RecordSend(outcome string, duration float64) {
	MessagesSentTotal.WithLabelValues(outcome).Inc()
	SendDuration.Observe(duration)
}

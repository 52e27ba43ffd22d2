// Package metrics holds the Prometheus collectors shared by the binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "peerlend"

var (
	LoansOriginated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loans_originated_total",
		Help:      "Loans created after passing the capacity check.",
	})

	OriginationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "originations_rejected_total",
		Help:      "Loan requests rejected, by reason.",
	}, []string{"reason"})

	PaymentsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_scheduled_total",
		Help:      "Payments appended to a loan history, by trigger.",
	}, []string{"trigger"})

	ScheduleConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedule_conflicts_total",
		Help:      "Appends rejected because another writer appended first.",
	})

	UnsupportedFrequencies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unsupported_frequencies_total",
		Help:      "Reference frequencies that could not be resolved.",
	})

	LedgerExports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_exports_total",
		Help:      "Payments written to the servicing ledger, by result.",
	}, []string{"result"})

	BillingCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "billing_cycle_duration_seconds",
		Help:      "Duration of one billing cycle over all loans.",
		Buckets:   prometheus.DefBuckets,
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	})

	SuspiciousRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_suspicious_requests_total",
		Help:      "Requests matching a known attack pattern.",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method, route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

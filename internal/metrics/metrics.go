package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	JobsClaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeledger_jobs_claimed_total",
			Help: "Total number of jobs claimed from the job store",
		},
		[]string{"agent"},
	)

	JobsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeledger_jobs_dispatched_total",
			Help: "Total number of dispatched jobs by outcome",
		},
		[]string{"agent", "status"}, // completed, failed, released
	)

	EventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeledger_events_emitted_total",
			Help: "Total number of events appended and published",
		},
		[]string{"type"},
	)

	PollErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeledger_poll_errors_total",
			Help: "Total number of failed claim or dispatch iterations",
		},
		[]string{"agent"},
	)

	// Buckets: 5ms to ~41s
	DispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifeledger_dispatch_duration_seconds",
			Help:    "Handler execution time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"agent"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifeledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusReleased  = "released"
)

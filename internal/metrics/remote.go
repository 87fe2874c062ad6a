package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Remote events API metrics
var (
	// RemoteRequestsTotal counts calls to the events API by operation and outcome
	RemoteRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_api_requests_total",
			Help:      "Total number of events API requests",
		},
		[]string{"operation", "outcome"}, // outcome: success|network|authentication|authorization|not_found|validation|error
	)

	// RemoteRequestDuration records events API latency in seconds
	RemoteRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_api_request_duration_seconds",
			Help:      "Events API request latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// ListDegradedTotal counts event listings that fell back to an empty result
	ListDegradedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_degraded_total",
			Help:      "Total number of event listings answered with an empty result after a failure",
		},
		[]string{"reason"}, // reason: network|status|decode
	)
)

// Package observability holds the Prometheus metrics shared across packages.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequests counts provider API calls by platform and outcome.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supernova_api_requests_total",
		Help: "Provider API requests by platform and outcome",
	}, []string{"platform", "outcome"})

	// APILatency records provider API latency by platform.
	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supernova_api_request_seconds",
		Help:    "Provider API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform"})

	// SyncRuns counts sync runs by result.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supernova_sync_runs_total",
		Help: "Sync runs by result",
	}, []string{"result"})

	// SyncDuration records how long a full sync took.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "supernova_sync_duration_seconds",
		Help:    "Duration of a full sync in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// CommentsAdded counts comments newly merged into the store.
	CommentsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supernova_comments_added_total",
		Help: "Comments newly added to the inbox by platform",
	}, []string{"platform"})

	// AccountFailures counts per-account fetch failures by error kind.
	AccountFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supernova_account_fetch_failures_total",
		Help: "Account fetch failures by platform and error kind",
	}, []string{"platform", "kind"})

	// Replies counts reply attempts by platform and result.
	Replies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supernova_replies_total",
		Help: "Reply attempts by platform and result",
	}, []string{"platform", "result"})
)

// TrackAPI returns a function that records request latency when called.
func TrackAPI(platform string) func() {
	start := time.Now()
	return func() {
		APILatency.WithLabelValues(platform).Observe(time.Since(start).Seconds())
	}
}

// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResourceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_resource_fetch_total",
			Help: "Resource fetches by key and outcome (ok, failed, missed)",
		},
		[]string{"resource", "outcome"},
	)

	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portfolio_aggregation_duration_seconds",
			Help:    "Duration of aggregation runs in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 16},
		},
		[]string{"outcome"},
	)

	AggregationProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portfolio_aggregation_progress",
			Help: "Progress of the current aggregation run (0-100)",
		},
	)

	SnapshotDegradedResources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portfolio_snapshot_degraded_resources",
			Help: "Number of resources left empty in the latest snapshot",
		},
	)

	NotificationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_notification_events_total",
			Help: "Notification feed events by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	NotificationsUnread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portfolio_notifications_unread",
			Help: "Unread notifications in the bound session's feed",
		},
	)

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_api_requests_total",
			Help: "Backend API requests by method and status class",
		},
		[]string{"method", "status"},
	)
)

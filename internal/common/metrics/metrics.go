// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CatalogSnapshotsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_snapshots_delivered_total",
			Help: "Total number of full deal snapshots delivered to subscribers",
		},
		[]string{"feed"},
	)

	CatalogSubscriptionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_subscription_errors_total",
			Help: "Total number of terminated catalog subscriptions",
		},
		[]string{"feed"},
	)

	NegotiationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "negotiations_submitted_total",
			Help: "Total number of negotiation submissions by outcome",
		},
		[]string{"outcome"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of live session contexts",
		},
	)

	ProfileFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "profile_fetch_duration_seconds",
			Help: "Duration of role-profile resolution in seconds",
		},
	)
)

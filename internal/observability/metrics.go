package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesActive    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_navigation", Name: "rides_active", Help: "Ride sessions currently in progress"})
	RidesCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_navigation", Name: "rides_completed_total", Help: "Ride sessions completed"})
	RidesCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_navigation", Name: "rides_cancelled_total", Help: "Ride sessions cancelled"})

	SharedStopsAccepted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_navigation", Name: "shared_stops_accepted_total", Help: "Proposed shared stops accepted by the route matcher"})
	SharedStopsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_navigation", Name: "shared_stops_rejected_total", Help: "Proposed shared stops rejected by the route matcher"},
		[]string{"reason"},
	)

	TrackingSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_navigation", Name: "tracking_subscribers", Help: "Clients joined to ride tracking rooms"})
	TrackingPublished   = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_navigation", Name: "tracking_published_total", Help: "Location and timer events published to rooms"},
		[]string{"kind"},
	)
	NotificationsFanned = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_navigation", Name: "notifications_fanned_total", Help: "Lifecycle notifications fanned out to subscriber rooms"})

	DirectionsRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_navigation", Name: "directions_requests_total", Help: "Directions provider calls"},
		[]string{"provider", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_navigation", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_navigation",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

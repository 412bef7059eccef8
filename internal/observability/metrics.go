package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_requested_total", Help: "Total ride requests accepted"})
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "matches_total", Help: "Match attempts by outcome"},
		[]string{"outcome"},
	)
	OffersPublished = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offers_published_total", Help: "Dispatch offers published to drivers"})
	AcceptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accepts_total", Help: "Ride accept attempts by result"},
		[]string{"result"},
	)
	RidesCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_completed_total", Help: "Rides reaching completed"})
	RidesCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_cancelled_total", Help: "Rides cancelled, by canceller"},
		[]string{"by"},
	)
	ScheduledActivations = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "scheduled_activations_total", Help: "Scheduled rides promoted to pending"})
	SOSAlerts            = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "sos_alerts_total", Help: "SOS alerts triggered"})
	DriversAvailable     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "drivers_available", Help: "Drivers currently available"})
	PaymentFailures      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "payment_failures_total", Help: "Payment charges that failed after completion"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "booking_requests_total", Help: "Total seat requests accepted"})
	BookingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pooling", Name: "booking_decisions_total", Help: "Total host decisions applied"},
		[]string{"decision"},
	)
	RidesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "rides_created_total", Help: "Total rides published"})

	ChatMessagesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "chat_messages_total", Help: "Total chat messages appended"})
	ChatSessionsActive  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_pooling", Name: "chat_sessions_active", Help: "Connected chat sessions"})
	ChatBroadcastErrors = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pooling", Name: "chat_broadcast_errors_total", Help: "Chat deliveries that failed"})

	RoutingEstimatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pooling", Name: "routing_estimates_total", Help: "Routing estimate outcomes"},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pooling", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_pooling",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Per-endpoint request counter with the final status code.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	// Auth outcomes by flow (login, refresh, logout, ...) and result.
	AuthOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_flow_total",
			Help: "Total auth flow outcomes",
		},
		[]string{"flow", "outcome"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(RequestCounter, RequestDuration, AuthOutcomes)
}

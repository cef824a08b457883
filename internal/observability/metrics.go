// Package observability provides Prometheus metrics and log message
// sanitization.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ordswap"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	ReservationsTotal *prometheus.CounterVec
	OrdersCreated     prometheus.Counter
	SellFailures      *prometheus.CounterVec
	BroadcastErrors   prometheus.Counter

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the service's metrics against reg. Tests pass a
// fresh registry; the process passes the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ReservationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		OrdersCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signer",
			Name:      "orders_created_total",
			Help:      "Orders created after a finalized swap",
		}),
		SellFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signer",
			Name:      "sell_failures_total",
			Help:      "Failed sell attempts by failure code",
		}, []string{"code"}),
		BroadcastErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signer",
			Name:      "broadcast_errors_total",
			Help:      "Broadcast failures after order creation",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

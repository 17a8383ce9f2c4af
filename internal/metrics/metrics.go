// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tablebill"

// Metrics groups the HTTP and billing collectors.
type Metrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	OrdersCreated          prometheus.Counter
	ValidationFailures     prometheus.Counter
	RefundsIssued          prometheus.Counter
	RefundAmount           prometheus.Counter
	ReconciliationFailures prometheus.Counter
	PaymentsRecorded       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"method", "route"}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders persisted.",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_validation_failures_total",
			Help:      "Order submissions rejected by validation.",
		}),
		RefundsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_issued_total",
			Help:      "Refunds committed.",
		}),
		RefundAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_amount_total",
			Help:      "Sum of refunded amounts including VAT.",
		}),
		ReconciliationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_reconciliation_failures_total",
			Help:      "Refunds blocked because the breakdown did not reconcile.",
		}),
		PaymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Payments recorded by method.",
		}, []string{"method"}),
	}

	reg.MustRegister(
		m.Requests,
		m.LatencyMS,
		m.OrdersCreated,
		m.ValidationFailures,
		m.RefundsIssued,
		m.RefundAmount,
		m.ReconciliationFailures,
		m.PaymentsRecorded,
	)
	return m
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

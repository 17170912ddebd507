// Package metrics exposes the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_http_requests_total",
		Help: "Handled HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shop_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_orders_completed_total",
		Help: "Orders that transitioned from incomplete to complete.",
	})

	StockUnitsDecrementedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_stock_units_decremented_total",
		Help: "Product units removed from stock by order completion.",
	})

	StockUnderflowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_stock_underflows_total",
		Help: "Order completions rejected because stock would go negative.",
	})
)

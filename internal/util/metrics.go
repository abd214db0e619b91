package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersFinalizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_finalized_total",
		Help: "Total number of orders finalized (stock committed, order persisted)",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order finalizations",
	}, []string{"stage"})

	ShipmentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipments_created_total",
		Help: "Total number of transport orders created with the carrier",
	})

	// Shipment exists with the carrier but the inventory/order commit
	// failed afterwards. Operators reconcile these by hand.
	ShipmentsOrphanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipments_orphaned_total",
		Help: "Shipments created whose inventory/order commit subsequently failed",
	})

	StockCommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_commit_latency_seconds",
		Help:    "Latency of the transactional stock decrement and order write",
		Buckets: prometheus.DefBuckets,
	})

	StockCommitRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_commit_retries_total",
		Help: "Transaction attempts retried due to write conflicts",
	})

	PaymentRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_requests_total",
		Help: "Requests to the payment gateway",
	}, []string{"operation", "outcome"})

	PaymentDeclinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_declined_total",
		Help: "Transactions confirmed but declined by the gateway",
	})

	ShippingAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipping_api_requests_total",
		Help: "Requests to the carrier API",
	}, []string{"operation", "outcome"})

	ShippingAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipping_api_latency_seconds",
		Help:    "Latency of carrier API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ProductCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_cache_requests_total",
		Help: "Product catalog cache lookups",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

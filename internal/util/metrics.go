package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_created_total",
		Help: "Total number of POS sales committed",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sales_failed_total",
		Help: "Total number of rejected or failed POS sales",
	}, []string{"reason"})

	SaleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_sale_latency_seconds",
		Help:    "Latency of the create sale workflow",
		Buckets: prometheus.DefBuckets,
	})

	InventoryDecrementFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_decrement_failed_total",
		Help: "Total number of guarded inventory decrements that did not apply",
	}, []string{"reason"})

	DuplicateSaleSuspected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_duplicate_sale_suspected_total",
		Help: "Sales matching an identical amount at the same location within the guard window",
	})

	DegradedStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sale_degraded_steps_total",
		Help: "Non-fatal sale steps that failed after the order was committed",
	}, []string{"step"})

	LoyaltyPointsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_awarded_total",
		Help: "Total loyalty points credited by POS sales",
	})

	LoyaltyTierChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_tier_changes_total",
		Help: "Total number of loyalty tier changes by new tier",
	}, []string{"tier"})

	CRMSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_sync_total",
		Help: "CRM visit pushes by result",
	}, []string{"result"})

	CRMSyncLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crm_sync_latency_seconds",
		Help:    "Latency of CRM visit pushes",
		Buckets: prometheus.DefBuckets,
	})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Total number of outbox events relayed to Kafka",
	})

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

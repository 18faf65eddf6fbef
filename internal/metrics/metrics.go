// Package metrics exposes Prometheus collectors for the gateway and stores.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Load outcomes recorded by StoreLoads.
const (
	LoadApplied    = "applied"
	LoadSuperseded = "superseded"
	LoadFailed     = "failed"
)

var (
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigboard_gateway_requests_total",
			Help: "Total number of backend requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gigboard_gateway_request_duration_seconds",
			Help:    "Duration of backend requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigboard_store_loads_total",
			Help: "Listing loads by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)

	StoreRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gigboard_store_records",
			Help: "Number of cached listings per scope",
		},
		[]string{"scope"},
	)
)

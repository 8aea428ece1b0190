// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

// Package metrics defines the Prometheus instrumentation for AquaSync.
//
// Covered areas:
//   - Gateway request latency and outcome classification
//   - Query cache efficiency (hits, misses, coalesced fetches, supersessions)
//   - Realtime listener state and reconnect activity
//   - Circuit breaker state per backend
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway metrics

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aquasync_gateway_request_duration_seconds",
			Help:    "Duration of backend HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "entity"},
	)

	GatewayRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasync_gateway_request_errors_total",
			Help: "Total backend request failures by error kind",
		},
		[]string{"entity", "kind"}, // kind: unreachable, unauthorized, client_error, server_error
	)

	// Query cache metrics

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasync_cache_hits_total",
			Help: "Total cache reads served fresh without a fetch",
		},
		[]string{"entity"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasync_cache_misses_total",
			Help: "Total cache reads that triggered a background fetch",
		},
		[]string{"entity"},
	)

	CacheCoalesced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasync_cache_coalesced_total",
			Help: "Total cache reads that joined an already in-flight fetch",
		},
		[]string{"entity"},
	)

	CacheSuperseded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasync_cache_superseded_total",
			Help: "Total fetch completions discarded because a newer fetch was issued",
		},
		[]string{"entity"},
	)

	CachePatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasync_cache_patches_total",
			Help: "Total push-event reconciliations applied via patch",
		},
		[]string{"entity", "operation"},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aquasync_cache_entries",
			Help: "Current number of cache entries",
		},
	)

	// Realtime listener metrics

	RealtimeState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aquasync_realtime_state",
			Help: "Listener state (0=closed, 1=connecting, 2=open, 3=reconnecting)",
		},
		[]string{"entity"},
	)

	RealtimeReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasync_realtime_reconnects_total",
			Help: "Total reconnect attempts per entity channel",
		},
		[]string{"entity"},
	)

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasync_realtime_events_total",
			Help: "Total change events received by type",
		},
		[]string{"entity", "event_type"},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aquasync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquasync_circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker by outcome",
		},
		[]string{"name", "outcome"}, // outcome: success, failure, rejected
	)
)

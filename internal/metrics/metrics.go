// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

// Package metrics provides Prometheus instrumentation for the engine:
// training throughput, ranking latency, repository operations, and
// circuit breaker state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Training Metrics
	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "itemwise_training_duration_seconds",
			Help:    "Duration of training passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"}, // "incremental", "batch"
	)

	TrainingRatings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itemwise_training_ratings_total",
			Help: "Total number of ratings merged into the accumulator",
		},
		[]string{"mode"},
	)

	// Ranking Metrics
	RankingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itemwise_ranking_requests_total",
			Help: "Total number of top-K ranking requests",
		},
		[]string{"status"}, // "ok", "error"
	)

	RankingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "itemwise_ranking_duration_seconds",
			Help:    "Duration of top-K ranking requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RankingCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "itemwise_ranking_candidates",
			Help:    "Number of candidate items scored per ranking request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 .. 16384
		},
	)

	// Repository Metrics
	RepositoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itemwise_repository_operations_total",
			Help: "Total number of repository operations",
		},
		[]string{"operation", "status"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "itemwise_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itemwise_circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "outcome"}, // "success", "failure", "rejected"
	)

	// Ingest Metrics
	IngestEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itemwise_ingest_events_total",
			Help: "Total number of rating events consumed from the pipeline",
		},
		[]string{"status"}, // "ok", "malformed"
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "itemwise_ingest_batch_size",
			Help:    "Number of rating events per incremental training flush",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itemwise_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "itemwise_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)
)

// RecordRepositoryOp increments the repository operation counter with a
// success/error status derived from err.
func RecordRepositoryOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RepositoryOperations.WithLabelValues(operation, status).Inc()
}

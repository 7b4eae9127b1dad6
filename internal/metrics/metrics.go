// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package metrics exposes Prometheus instrumentation for the catalog
// database, the upstream collectors, the hit tracker and the read API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vodhive_db_query_duration_seconds",
			Help:    "Duration of catalog database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodhive_db_query_errors_total",
			Help: "Total number of catalog database query errors",
		},
		[]string{"operation", "table"},
	)

	// Upstream source metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodhive_upstream_requests_total",
			Help: "Total upstream CMS API requests by source and outcome",
		},
		[]string{"source", "outcome"}, // outcome: ok, error, timeout
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vodhive_upstream_request_duration_seconds",
			Help:    "Upstream CMS API request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 15},
		},
		[]string{"source"},
	)

	SourceHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vodhive_source_health_success_rate",
			Help: "Smoothed success rate per upstream source (0..1)",
		},
		[]string{"source"},
	)

	// Collection metrics
	CollectVideosProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodhive_collect_videos_total",
			Help: "Videos processed by collection tasks, by result",
		},
		[]string{"result"}, // inserted, merged, skipped, failed
	)

	CollectTaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vodhive_collect_task_duration_seconds",
			Help:    "Duration of completed collection tasks in seconds",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	CollectTasksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vodhive_collect_tasks_active",
			Help: "Number of collection tasks currently running",
		},
	)

	// Hit tracker metrics
	HitsBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vodhive_hits_buffered",
			Help: "Hit increments currently buffered in memory",
		},
	)

	HitsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vodhive_hits_flushed_total",
			Help: "Hit increments flushed to storage",
		},
	)

	HitsFlushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vodhive_hits_flush_errors_total",
			Help: "Hit flush attempts that failed and were re-buffered",
		},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodhive_cache_hits_total",
			Help: "In-memory cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodhive_cache_misses_total",
			Help: "In-memory cache misses by cache name",
		},
		[]string{"cache"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodhive_api_requests_total",
			Help: "Total read API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vodhive_api_request_duration_seconds",
			Help:    "Read API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Rating enricher metrics
	RatingLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodhive_rating_lookups_total",
			Help: "External rating lookups by outcome",
		},
		[]string{"outcome"}, // cached, fetched, failed, skipped
	)
)

// RecordDBQuery records the duration of a database operation and counts
// errors. Call from the database layer after each statement.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordUpstreamRequest records one upstream API call.
func RecordUpstreamRequest(source, outcome string, duration time.Duration) {
	UpstreamRequests.WithLabelValues(source, outcome).Inc()
	UpstreamRequestDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordAPIRequest records one read API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the Prometheus metrics for the profile
// service. Metrics are registered on the default registry via promauto and
// exposed by the /metrics endpoint in main.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationRuns counts profile generation runs by outcome
	// (completed, failed, skipped_locked).
	GenerationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profile_generation_runs_total",
		Help: "Profile generation runs by outcome",
	}, []string{"outcome"})

	// GenerationDuration observes wall time of full generation runs.
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "profile_generation_duration_seconds",
		Help:    "Wall time of full profile generation runs",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// GenerationTasks counts per-artifact generation tasks by result
	// (ok, failed, skipped_cooldown).
	GenerationTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profile_generation_tasks_total",
		Help: "Per-artifact generation tasks by system and result",
	}, []string{"system", "result"})

	// CacheReads counts ChartCache reads by outcome (hit, miss, coalesced).
	CacheReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profile_chart_cache_reads_total",
		Help: "ChartCache reads by outcome",
	}, []string{"outcome"})

	// UpstreamRequestDuration observes calculation service call latency
	// per task, by status class.
	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "profile_upstream_request_duration_seconds",
		Help:    "Calculation service request latency by task and status",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"task", "status"})

	// ResolverRequests counts dasha resolutions by source
	// (cache, external, calculated).
	ResolverRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "profile_dasha_resolutions_total",
		Help: "Dasha resolutions by serving source",
	}, []string{"source"})
)

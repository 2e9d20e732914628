// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes Prometheus instrumentation for the sync and
// delegation paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the registry and the application metrics. It satisfies the
// recorder interface the delegation and sync services accept.
type Manager struct {
	registry *prometheus.Registry

	delegationsTotal  *prometheus.CounterVec
	delegatedResults  prometheus.Counter
	remainingSites    prometheus.Counter
	syncRunsTotal     *prometheus.CounterVec
	syncDuration      prometheus.Histogram
	sitesRegistered   prometheus.Gauge
	cacheEntries      prometheus.Gauge
	searchesTotal     *prometheus.CounterVec
	searchDuration    prometheus.Histogram
	upstreamErrorsTot *prometheus.CounterVec
}

func NewManager() *Manager {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Manager{
		registry: registry,
		delegationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prowlink_delegations_total",
			Help: "Total number of delegation requests by outcome",
		}, []string{"outcome"}),
		delegatedResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "prowlink_delegated_results_total",
			Help: "Total number of normalized results returned by delegation",
		}),
		remainingSites: factory.NewCounter(prometheus.CounterOpts{
			Name: "prowlink_remaining_sites_total",
			Help: "Total number of candidate sites handed back for local handling",
		}),
		syncRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prowlink_sync_runs_total",
			Help: "Total number of indexer sync runs by status",
		}, []string{"status"}),
		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prowlink_sync_duration_seconds",
			Help:    "Time spent on one indexer sync pass",
			Buckets: prometheus.DefBuckets,
		}),
		sitesRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prowlink_sites_registered",
			Help: "Sites registered by the most recent sync pass",
		}),
		cacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prowlink_cache_entries",
			Help: "Entries in the current indexer mapping cache generation",
		}),
		searchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prowlink_upstream_searches_total",
			Help: "Total number of search calls against the aggregator by result",
		}, []string{"result"}),
		searchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prowlink_upstream_search_duration_seconds",
			Help:    "Latency of aggregator search calls",
			Buckets: prometheus.DefBuckets,
		}),
		upstreamErrorsTot: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prowlink_upstream_errors_total",
			Help: "Upstream API failures by endpoint",
		}, []string{"endpoint"}),
	}
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) RecordDelegation(outcome string, handled, remaining int) {
	m.delegationsTotal.WithLabelValues(outcome).Inc()
	m.delegatedResults.Add(float64(handled))
	m.remainingSites.Add(float64(remaining))
}

func (m *Manager) RecordSyncRun(status string, registered, mapped int, duration time.Duration) {
	m.syncRunsTotal.WithLabelValues(status).Inc()
	m.syncDuration.Observe(duration.Seconds())
	m.sitesRegistered.Set(float64(registered))
}

func (m *Manager) RecordCacheSize(entries int) {
	m.cacheEntries.Set(float64(entries))
}

// RecordSearch tracks one aggregator search round trip.
func (m *Manager) RecordSearch(err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.searchesTotal.WithLabelValues(result).Inc()
	m.searchDuration.Observe(duration.Seconds())
}

// RecordUpstreamError tracks a failed call against a named API endpoint.
func (m *Manager) RecordUpstreamError(endpoint string) {
	m.upstreamErrorsTot.WithLabelValues(endpoint).Inc()
}

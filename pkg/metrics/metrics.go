// Package metrics defines the Prometheus collectors shared by the searcher,
// indexer, ingestion and analytics services. Every metric lives under the
// "queryengine" namespace, grouped by subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "queryengine"

var (
	requestBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	nodeBuckets    = prometheus.ExponentialBuckets(0.0001, 4, 8)
	hitBuckets     = []float64{0, 1, 5, 10, 25, 50, 100}
)

// Metrics holds every collector. Fields are grouped by the component that
// records them.
type Metrics struct {
	// middleware
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// search handler
	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram

	// executor
	QueryNodesEvaluated *prometheus.CounterVec
	QueryNodeDuration   *prometheus.HistogramVec
	QueryErrorsTotal    *prometheus.CounterVec

	// result cache
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec

	// indexer and segment reload
	DocsIndexedTotal    prometheus.Counter
	IndexFlushesTotal   *prometheus.CounterVec
	SegmentDocCount     prometheus.Gauge
	SegmentReloadsTotal *prometheus.CounterVec
}

// New registers on the default registry, which StartServer exposes when
// given a nil gatherer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers every collector on reg. Tests pass a fresh
// prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	var all []prometheus.Collector
	counter := func(subsystem, name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help})
		all = append(all, c)
		return c
	}
	counterVec := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
		all = append(all, c)
		return c
	}
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help})
		all = append(all, g)
		return g
	}
	gaugeVec := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
		all = append(all, g)
		return g
	}
	histogram := func(subsystem, name, help string, buckets []float64) prometheus.Histogram {
		h := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets})
		all = append(all, h)
		return h
	}
	histogramVec := func(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
		all = append(all, h)
		return h
	}

	m := &Metrics{
		HTTPRequestsTotal:    counterVec("http", "requests_total", "HTTP requests by method, route and status.", "method", "path", "status"),
		HTTPRequestDuration:  histogramVec("http", "request_duration_seconds", "HTTP request latency.", requestBuckets, "method", "path"),
		HTTPRequestsInFlight: gauge("http", "requests_in_flight", "HTTP requests being served."),

		SearchQueriesTotal: counterVec("search", "queries_total", "Search requests by outcome: ok, zero_result or error.", "result_type"),
		SearchLatency:      histogramVec("search", "latency_seconds", "Search latency by cache status: hit or miss.", requestBuckets, "cache_status"),
		SearchResultsCount: histogram("search", "hits", "Hits returned per search.", hitBuckets),

		QueryNodesEvaluated: counterVec("query", "nodes_evaluated_total", "Query tree nodes evaluated, by node kind.", "kind"),
		QueryNodeDuration:   histogramVec("query", "node_duration_seconds", "Node evaluation time, children included.", nodeBuckets, "kind"),
		QueryErrorsTotal:    counterVec("query", "errors_total", "Failed executions by query error kind.", "kind"),

		CacheHitsTotal:      counter("cache", "hits_total", "Result cache hits."),
		CacheMissesTotal:    counter("cache", "misses_total", "Result cache misses."),
		CircuitBreakerState: gaugeVec("cache", "circuit_breaker_state", "Breaker state by name: 0 closed, 1 open, 2 half-open.", "name"),

		DocsIndexedTotal:    counter("indexer", "docs_indexed_total", "Documents added to the in-memory index."),
		IndexFlushesTotal:   counterVec("indexer", "flushes_total", "Segment flushes by status.", "status"),
		SegmentDocCount:     gauge("segment", "documents", "Documents in the segment being served."),
		SegmentReloadsTotal: counterVec("segment", "reloads_total", "Segment reloads by status.", "status"),
	}
	reg.MustRegister(all...)
	return m
}

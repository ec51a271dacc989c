package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/proto"
)

// latencyWindow bounds how many recent latencies feed the percentiles.
const latencyWindow = 10000

// defaultTopKinds is how many root query kinds Stats reports.
const defaultTopKinds = 10

type AggregatedStats struct {
	TotalSearches    int64            `json:"total_searches"`
	FailedSearches   int64            `json:"failed_searches"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
	ZeroResultCount  int64            `json:"zero_result_count"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     int64            `json:"p50_latency_ms"`
	P95LatencyMs     int64            `json:"p95_latency_ms"`
	P99LatencyMs     int64            `json:"p99_latency_ms"`
	ErrorsByKind     map[string]int64 `json:"errors_by_kind"`
	TopQueryKinds    []KindCount      `json:"top_query_kinds"`
	QueriesPerMinute float64          `json:"queries_per_minute"`
}

type KindCount struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

// Aggregator folds query events into running statistics.
type Aggregator struct {
	mu           sync.Mutex
	total        int64
	failed       int64
	cacheHits    int64
	cacheMisses  int64
	zeroResults  int64
	latencies    []int64
	next         int
	errorsByKind map[string]int64
	kindCounts   map[string]int64
	startTime    time.Time
	now          func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:    make([]int64, 0, latencyWindow),
		errorsByKind: make(map[string]int64),
		kindCounts:   make(map[string]int64),
		startTime:    time.Now(),
		now:          time.Now,
	}
}

// HandleEvent returns a Kafka MessageHandler that records query events.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[proto.QueryEvent](value)
		if err != nil {
			return err
		}
		agg.Record(event)
		return nil
	}
}

func (a *Aggregator) Record(event proto.QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if event.RootKind != "" {
		a.kindCounts[event.RootKind]++
	}
	if event.ErrorKind != "" {
		a.failed++
		a.errorsByKind[event.ErrorKind]++
		return
	}
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if event.TotalHits == 0 {
		a.zeroResults++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(defaultTopKinds)
}

// StatsTop is Stats reporting the top most frequent root query kinds.
func (a *Aggregator) StatsTop(top int) AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalSearches:   a.total,
		FailedSearches:  a.failed,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		ErrorsByKind:    make(map[string]int64, len(a.errorsByKind)),
	}
	for k, v := range a.errorsByKind {
		stats.ErrorsByKind[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueryKinds = topN(a.kindCounts, top)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// ErrorCounts returns failed searches per error kind, most frequent first.
func (a *Aggregator) ErrorCounts() []KindCount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return topN(a.errorsByKind, len(a.errorsByKind))
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []KindCount {
	result := make([]KindCount, 0, len(counts))
	for kind, count := range counts {
		result = append(result, KindCount{Kind: kind, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Kind < result[j].Kind
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

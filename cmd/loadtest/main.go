// Command loadtest replays a mix of query DSL bodies against a running
// searcher and reports latency percentiles, cache hits and error kinds.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/handler"
)

// defaultQueries exercises every node family once.
var defaultQueries = []string{
	`{"query": {"term": {"body": "fox"}}}`,
	`{"query": {"bool": {"must": [{"term": {"body": "quick"}}], "must_not": [{"term": {"status": "closed"}}]}}}`,
	`{"query": {"bool": {"should": [{"term": {"body": "quick"}}, {"term": {"body": "lazy"}}, {"term": {"body": "dog"}}], "minimum_should_match": 2}}}`,
	`{"query": {"span_near": {"clauses": [{"span_term": {"body": "quick"}}, {"span_term": {"body": "fox"}}], "slop": 1, "in_order": true}}}`,
	`{"query": {"has_child": {"parent_type": "question", "type": "answer", "score_mode": "max", "query": {"term": {"body": "fox"}}}}}`,
	`{"query": {"function_score": {"query": {"term": {"status": "open"}}, "combine_mode": "multiply", "functions": [{"field_value_factor": {"field": "votes", "modifier": "log1p", "missing": 1}}]}}}`,
	`{"query": {"simple_query_string": {"query": "\"quick brown\" dog", "field": "body"}}, "size": 20}`,
}

type stats struct {
	total     atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
	kinds     map[string]int64
}

func (s *stats) record(d time.Duration, code int, cacheHit bool, kind string) {
	s.total.Add(1)
	if code < 200 || code >= 300 {
		s.failed.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	if kind != "" {
		s.kinds[kind]++
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queryFile := flag.String("queries", "", "file with one JSON search body per line")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}

	fmt.Println("=== Query Engine Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique\n\n", len(queries))

	s := &stats{codes: make(map[int]int64), kinds: make(map[string]int64)}
	if err := run(*baseURL, *concurrency, *duration, queries, s); err != nil {
		fmt.Fprintf(os.Stderr, "load test aborted: %v\n", err)
		os.Exit(1)
	}
	report(s, *duration)
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("line %d is not valid JSON", len(out)+1)
		}
		out = append(out, string(line))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s holds no queries", path)
	}
	return out, nil
}

func run(baseURL string, concurrency int, duration time.Duration, queries []string, s *stats) error {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				body := queries[i%len(queries)]
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/search", bytes.NewBufferString(body))
				if err != nil {
					return err
				}
				req.Header.Set("Content-Type", "application/json")

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					s.record(elapsed, 0, false, "transport")
					continue
				}
				kind := ""
				if resp.StatusCode >= 400 {
					var e handler.ErrorResponse
					if json.NewDecoder(resp.Body).Decode(&e) == nil {
						kind = e.Kind
					}
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				s.record(elapsed, resp.StatusCode, resp.Header.Get("X-Cache") == "HIT", kind)
			}
			return nil
		})
	}
	return g.Wait()
}

func report(s *stats, duration time.Duration) {
	total := s.total.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Failed:          %d\n", s.failed.Load())
	fmt.Printf("Cache Hits:      %d\n", s.cacheHits.Load())
	if total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
	fmt.Println("\n=== Latency ===")
	fmt.Printf("Min:    %s\n", s.latencies[0])
	fmt.Printf("P50:    %s\n", percentile(s.latencies, 50))
	fmt.Printf("P95:    %s\n", percentile(s.latencies, 95))
	fmt.Printf("P99:    %s\n", percentile(s.latencies, 99))
	fmt.Printf("Max:    %s\n", s.latencies[len(s.latencies)-1])

	fmt.Println("\n=== Status Codes ===")
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, s.codes[code])
	}
	if len(s.kinds) > 0 {
		fmt.Println("\n=== Error Kinds ===")
		for kind, n := range s.kinds {
			fmt.Printf("  %s: %d\n", kind, n)
		}
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (p*len(sorted)+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

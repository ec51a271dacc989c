// Package cache memoizes search results in an external key-value store.
// Concurrent identical queries are collapsed into one execution and store
// failures degrade to uncached execution behind a circuit breaker.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the byte-valued backend the cache writes to. Get reports a
// missing key with pkgredis.ErrMiss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Options struct {
	TTL     time.Duration
	Metrics *metrics.Metrics
	// Breaker configures the circuit breaker around store calls.
	Breaker resilience.CircuitBreakerConfig
}

type QueryCache struct {
	store      Store
	ttl        time.Duration
	breaker    *resilience.CircuitBreaker
	group      singleflight.Group
	generation atomic.Uint64
	metrics    *metrics.Metrics
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

type Stats struct {
	Hits         int64  `json:"hits"`
	Misses       int64  `json:"misses"`
	Generation   uint64 `json:"generation"`
	BreakerState string `json:"breaker_state"`
}

func New(store Store, opts Options) *QueryCache {
	c := &QueryCache{
		store:   store,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "query-cache"),
	}
	bcfg := opts.Breaker
	if bcfg.CallTimeout <= 0 {
		bcfg.CallTimeout = 250 * time.Millisecond
	}
	if m := opts.Metrics; m != nil {
		next := bcfg.OnStateChange
		bcfg.OnStateChange = func(name string, from, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			if next != nil {
				next(name, from, to)
			}
		}
	}
	c.breaker = resilience.NewCircuitBreaker("query-cache", bcfg)
	return c
}

// Key derives the cache key for a query body and result size. The body is
// re-encoded so that formatting and object key order do not matter.
func (c *QueryCache) Key(body []byte, size int) (string, error) {
	canonical, err := canonicalize(body)
	if err != nil {
		return "", fmt.Errorf("canonicalizing query: %w", err)
	}
	h := xxhash.New()
	h.Write(canonical)
	h.WriteString("|size=")
	h.WriteString(strconv.Itoa(size))
	return fmt.Sprintf("%sg%d:%016x", keyPrefix, c.generation.Load(), h.Sum64()), nil
}

func canonicalize(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Get looks up key. Store errors are logged and reported as a miss.
func (c *QueryCache) Get(ctx context.Context, key string) (*executor.Result, bool) {
	var data []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.store.Get(ctx, key)
		if errors.Is(err, pkgredis.ErrMiss) {
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.recordMiss()
		return nil, false
	}
	if data == nil {
		c.recordMiss()
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs compute once for
// all concurrent callers with the same key. Errors are never cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func(ctx context.Context) (*executor.Result, error),
) (*executor.Result, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Result), false, nil
}

// Invalidate moves the cache to a new key generation so no earlier entry can
// be served, then deletes the stored entries.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	gen := c.generation.Add(1)
	var deleted int64
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "generation", gen, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Generation:   c.generation.Load(),
		BreakerState: c.breaker.GetState().String(),
	}
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

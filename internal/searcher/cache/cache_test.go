package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/resilience"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func result(id string) *executor.Result {
	return &executor.Result{QueryID: "q", TotalHits: 1, MaxScore: 1, Hits: []executor.Hit{{ID: id, Score: 1}}}
}

func TestKeyIgnoresFormatting(t *testing.T) {
	c := New(newMemStore(), Options{})
	a, err := c.Key([]byte(`{"term":{"body":"fox"},"x":1}`), 10)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Key([]byte("{ \"x\": 1,\n \"term\": {\"body\": \"fox\"} }"), 10)
	if a != b {
		t.Errorf("keys differ: %s vs %s", a, b)
	}
	other, _ := c.Key([]byte(`{"term":{"body":"fox"},"x":1}`), 5)
	if other == a {
		t.Error("size should change the key")
	}
	if !strings.HasPrefix(a, keyPrefix) {
		t.Errorf("key %q missing prefix", a)
	}
	if _, err := c.Key([]byte(`{bad`), 10); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestGetOrCompute(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(newMemStore(), Options{TTL: time.Minute, Metrics: m})
	ctx := context.Background()
	key, _ := c.Key([]byte(`{"match_all":{}}`), 10)

	calls := 0
	compute := func(context.Context) (*executor.Result, error) {
		calls++
		return result("d1"), nil
	}
	got, hit, err := c.GetOrCompute(ctx, key, compute)
	if err != nil || hit || got.Hits[0].ID != "d1" {
		t.Fatalf("first call: %+v hit=%v err=%v", got, hit, err)
	}
	got, hit, err = c.GetOrCompute(ctx, key, compute)
	if err != nil || !hit || got.Hits[0].ID != "d1" {
		t.Fatalf("second call: %+v hit=%v err=%v", got, hit, err)
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
	if testutil.ToFloat64(m.CacheHitsTotal) != 1 || testutil.ToFloat64(m.CacheMissesTotal) != 1 {
		t.Errorf("hits=%v misses=%v", testutil.ToFloat64(m.CacheHitsTotal), testutil.ToFloat64(m.CacheMissesTotal))
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New(newMemStore(), Options{})
	ctx := context.Background()
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(ctx, "k", func(context.Context) (*executor.Result, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	got, hit, err := c.GetOrCompute(ctx, "k", func(context.Context) (*executor.Result, error) { return result("d2"), nil })
	if err != nil || hit || got.Hits[0].ID != "d2" {
		t.Errorf("got %+v hit=%v err=%v", got, hit, err)
	}
}

func TestConcurrentCallersShareOneComputation(t *testing.T) {
	c := New(newMemStore(), Options{})
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (*executor.Result, error) {
		calls.Add(1)
		<-release
		return result("d1"), nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(context.Background(), "same", compute); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Errorf("compute ran %d times, want 1", n)
	}
}

func TestInvalidateChangesGeneration(t *testing.T) {
	store := newMemStore()
	c := New(store, Options{})
	ctx := context.Background()
	body := []byte(`{"match_all":{}}`)
	before, _ := c.Key(body, 10)
	c.Set(ctx, before, result("d1"))

	if err := c.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	after, _ := c.Key(body, 10)
	if before == after {
		t.Error("key should change after invalidation")
	}
	if _, ok := c.Get(ctx, after); ok {
		t.Error("stale entry served after invalidation")
	}
	if len(store.data) != 0 {
		t.Errorf("store still holds %d keys", len(store.data))
	}
	if c.Stats().Generation != 1 {
		t.Errorf("generation = %d, want 1", c.Stats().Generation)
	}
}

func TestStoreFailureDegradesAndTripsBreaker(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	store := newMemStore()
	store.fail(errors.New("connection refused"))
	c := New(store, Options{
		Metrics: m,
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, hit, err := c.GetOrCompute(ctx, "k", func(context.Context) (*executor.Result, error) {
			return result("d1"), nil
		})
		if err != nil || hit || got == nil {
			t.Fatalf("call %d: got %+v hit=%v err=%v", i, got, hit, err)
		}
	}
	if s := c.Stats().BreakerState; s != "open" {
		t.Errorf("breaker = %s, want open", s)
	}
	if v := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("query-cache")); v != float64(resilience.StateOpen) {
		t.Errorf("breaker gauge = %v", v)
	}
}

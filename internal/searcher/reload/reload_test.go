package reload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/searchtest"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/proto"
)

type swapper struct {
	mu     sync.Mutex
	reader index.Reader
}

func (s *swapper) SetReader(r index.Reader) index.Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.reader
	s.reader = r
	return prev
}

type invalidator struct{ calls int }

func (i *invalidator) Invalidate(context.Context) error {
	i.calls++
	return nil
}

func writeSegment(t *testing.T, dir string, texts ...string) string {
	t.Helper()
	docs := make([]index.Document, len(texts))
	for i, text := range texts {
		docs[i] = searchtest.Text(string(rune('a'+i)), "body", text)
	}
	name, err := segment.NewWriter(dir).Write(searchtest.Index(t, docs...).Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	return filepath.Join(dir, name)
}

func newReloader(t *testing.T, dir string) (*Reloader, *swapper, *invalidator, *metrics.Metrics, *[]func()) {
	t.Helper()
	target := &swapper{}
	inv := &invalidator{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	r := New(target, dir, Options{Cache: inv, Metrics: m})
	var pending []func()
	r.after = func(_ time.Duration, f func()) { pending = append(pending, f) }
	t.Cleanup(func() {
		for _, f := range pending {
			f()
		}
		if c, ok := target.reader.(*segment.Reader); ok {
			c.Close()
		}
	})
	return r, target, inv, m, &pending
}

func TestLoadLatestSwapsAndInvalidates(t *testing.T) {
	dir := t.TempDir()
	r, target, inv, m, pending := newReloader(t, dir)

	if err := r.LoadLatest(context.Background()); !errors.Is(err, segment.ErrNoSegments) {
		t.Fatalf("err = %v, want ErrNoSegments", err)
	}
	if err := r.Ping(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("ping = %v, want ErrNotLoaded", err)
	}

	first := writeSegment(t, dir, "quick fox")
	if err := r.LoadLatest(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := writeSegment(t, dir, "quick fox", "lazy dog")
	if err := r.Load(context.Background(), second); err != nil {
		t.Fatal(err)
	}
	// Same segment again is a no-op.
	if err := r.Load(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	if r.Current() != second || target.reader.MaxDoc() != 2 {
		t.Errorf("current = %s maxDoc = %d", r.Current(), target.reader.MaxDoc())
	}
	if inv.calls != 2 {
		t.Errorf("invalidations = %d, want 2", inv.calls)
	}
	if len(*pending) != 1 {
		t.Errorf("scheduled closes = %d, want 1 for %s", len(*pending), first)
	}
	if got := testutil.ToFloat64(m.SegmentReloadsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("reloads = %v, want 2", got)
	}
}

func TestHandleIndexComplete(t *testing.T) {
	dir := t.TempDir()
	r, _, _, m, _ := newReloader(t, dir)
	handle := r.HandleIndexComplete()
	ctx := context.Background()

	encode := func(seg string) []byte {
		raw, _ := json.Marshal(proto.IndexCompleteEvent{Segment: seg})
		return raw
	}

	path := writeSegment(t, dir, "quick fox")
	if err := handle(ctx, nil, encode(filepath.Base(path))); err != nil {
		t.Fatal(err)
	}
	if r.Current() != path {
		t.Errorf("current = %s, want %s", r.Current(), path)
	}

	newest := writeSegment(t, dir, "lazy dog")
	if err := handle(ctx, nil, encode("seg_pruned.spdx")); err != nil {
		t.Fatal(err)
	}
	if r.Current() != newest {
		t.Errorf("pruned announcement should load newest, got %s", r.Current())
	}

	corrupt := filepath.Join(dir, "seg_99999999999999999999"+segment.Extension)
	if err := os.WriteFile(corrupt, bytes.Repeat([]byte("x"), 128), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := handle(ctx, nil, encode(filepath.Base(corrupt))); !errors.Is(err, kafka.ErrPoison) {
		t.Errorf("corrupt segment err = %v, want ErrPoison", err)
	}
	if err := handle(ctx, nil, encode("")); !errors.Is(err, kafka.ErrPoison) {
		t.Errorf("empty segment err = %v, want ErrPoison", err)
	}
	if got := testutil.ToFloat64(m.SegmentReloadsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed reloads = %v, want 1", got)
	}
}

package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/proto"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

const docs = `{"id":"q1","type":"question","text":{"body":"quick brown fox"}}
{"id":"a1","type":"answer","relation":"qa","parent":"q1","text":{"body":"use a fox"}}

{"id":"q1","type":"question","text":{"body":"duplicate"}}
`

func newEngine(t *testing.T, dir string, pub Publisher, m *metrics.Metrics) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), config.IndexerConfig{DataDir: dir, KeepSegments: 2}, pub, m)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestLoadFlushAndResume(t *testing.T) {
	dir := t.TempDir()
	pub := &recordingPublisher{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	e := newEngine(t, dir, pub, m)
	ctx := context.Background()

	added, err := e.LoadNDJSON(ctx, strings.NewReader(docs))
	if err != nil {
		t.Fatalf("LoadNDJSON: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	path, err := e.Flush(ctx)
	if err != nil || path == "" {
		t.Fatalf("Flush = %q, %v", path, err)
	}
	if again, _ := e.Flush(ctx); again != "" {
		t.Errorf("second flush wrote %s without new documents", again)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev, ok := pub.events[0].Value.(proto.IndexCompleteEvent)
	if !ok || ev.Docs != 2 {
		t.Errorf("event = %+v", pub.events[0].Value)
	}
	if got := testutil.ToFloat64(m.IndexFlushesTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("flushes = %v", got)
	}
	if got := testutil.ToFloat64(m.DocsIndexedTotal); got != 2 {
		t.Errorf("docs indexed = %v", got)
	}

	resumed := newEngine(t, dir, nil, nil)
	if resumed.DocCount() != 2 {
		t.Fatalf("resumed DocCount = %d, want 2", resumed.DocCount())
	}
	err = resumed.IndexDocument(ctx, index.Document{ID: "q1"})
	if !errors.Is(err, index.ErrDocumentExists) {
		t.Errorf("err = %v, want ErrDocumentExists", err)
	}
	if err := resumed.IndexDocument(ctx, index.Document{ID: "q2", Text: map[string]string{"body": "fox"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := resumed.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	latest, _ := segment.Latest(dir)
	r, err := segment.OpenReader(latest)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.DocCount() != 3 || r.DocFreq("body", "fox") != 3 {
		t.Errorf("latest segment docs=%d fox=%d", r.DocCount(), r.DocFreq("body", "fox"))
	}
}

func TestLoadNDJSONReportsLine(t *testing.T) {
	e := newEngine(t, t.TempDir(), nil, nil)
	_, err := e.LoadNDJSON(context.Background(), strings.NewReader("{\"id\":\"a\"}\n{oops\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("err = %v, want line 2", err)
	}
}

func TestSizeTriggeredFlush(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(context.Background(), config.IndexerConfig{DataDir: dir, SegmentMaxSize: 1}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.IndexDocument(context.Background(), index.Document{ID: "d1", Text: map[string]string{"body": "x"}}); err != nil {
		t.Fatal(err)
	}
	files, _ := segment.List(dir)
	if len(files) != 1 {
		t.Errorf("segments = %d, want 1", len(files))
	}
}

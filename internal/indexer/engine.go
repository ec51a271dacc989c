// Package indexer builds the positional index that the searcher serves.
// Documents accumulate in a MemoryIndex; every flush writes a full snapshot
// segment and announces it on the index.complete topic.
package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/proto"
)

// Publisher announces finished segments. *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Engine struct {
	mem         *index.MemoryIndex
	writer      *segment.Writer
	cfg         config.IndexerConfig
	publisher   Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	flushMu     sync.Mutex
	pending     atomic.Int64
	flushedSize atomic.Int64
}

// NewEngine opens cfg.DataDir and resumes from the newest segment in it, if
// any. publisher and m may be nil.
func NewEngine(ctx context.Context, cfg config.IndexerConfig, publisher Publisher, m *metrics.Metrics) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		mem:       index.NewMemoryIndex(),
		writer:    segment.NewWriter(cfg.DataDir),
		cfg:       cfg,
		publisher: publisher,
		metrics:   m,
		logger:    slog.Default().With("component", "indexer"),
	}
	if err := e.restore(ctx); err != nil {
		return nil, fmt.Errorf("restoring from latest segment: %w", err)
	}
	return e, nil
}

func (e *Engine) restore(ctx context.Context) error {
	path, err := segment.Latest(e.cfg.DataDir)
	if errors.Is(err, segment.ErrNoSegments) {
		e.logger.Info("no existing segment, starting empty")
		return nil
	}
	if err != nil {
		return err
	}
	reader, err := segment.OpenReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()
	snap, err := reader.Snapshot(ctx)
	if err != nil {
		return err
	}
	mem, err := index.FromSnapshot(snap)
	if err != nil {
		return err
	}
	e.mem = mem
	e.flushedSize.Store(mem.Size())
	e.logger.Info("resumed from segment", "segment", path, "docs", mem.DocCount(), "terms", len(snap.Terms))
	return nil
}

// IndexDocument adds doc to the in-memory index. A document whose ID is
// already indexed is rejected with index.ErrDocumentExists. Once the index
// has grown by cfg.SegmentMaxSize bytes since the last flush, a new segment
// is written before returning.
func (e *Engine) IndexDocument(ctx context.Context, doc index.Document) error {
	id, err := e.mem.AddDocument(doc)
	if err != nil {
		return err
	}
	e.pending.Add(1)
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	e.logger.Debug("document indexed in memory", "doc_id", doc.ID, "doc", id, "mem_size", e.mem.Size())
	if e.cfg.SegmentMaxSize > 0 && e.mem.Size()-e.flushedSize.Load() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index grew past threshold, flushing",
			"size", e.mem.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		if _, err := e.Flush(ctx); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

// LoadNDJSON indexes one JSON document per line from r and returns how many
// were added. Documents that are already indexed are skipped.
func (e *Engine) LoadNDJSON(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	added, line := 0, 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return added, err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc index.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return added, fmt.Errorf("line %d: %w", line, err)
		}
		if err := e.IndexDocument(ctx, doc); err != nil {
			if errors.Is(err, index.ErrDocumentExists) {
				e.logger.Warn("skipping duplicate document", "line", line, "doc_id", doc.ID)
				continue
			}
			return added, fmt.Errorf("line %d: %w", line, err)
		}
		added++
	}
	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("reading documents: %w", err)
	}
	return added, nil
}

// Flush writes the whole index as a new segment, prunes old segments and
// publishes an IndexCompleteEvent. It returns the segment path, or "" when
// nothing changed since the last flush.
func (e *Engine) Flush(ctx context.Context) (string, error) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	if e.pending.Load() == 0 {
		return "", nil
	}
	indexed := e.pending.Load()
	snap := e.mem.Snapshot()
	name, err := e.writer.Write(snap)
	if err != nil {
		e.recordFlush("error")
		return "", fmt.Errorf("writing segment: %w", err)
	}
	e.pending.Add(-indexed)
	e.flushedSize.Store(e.mem.Size())
	e.recordFlush("success")
	if e.metrics != nil {
		e.metrics.SegmentDocCount.Set(float64(len(snap.Docs)))
	}
	path := filepath.Join(e.cfg.DataDir, name)
	e.logger.Info("segment flushed", "segment", name, "terms", len(snap.Terms), "docs", len(snap.Docs))

	if removed, err := segment.Prune(e.cfg.DataDir, e.cfg.KeepSegments); err != nil {
		e.logger.Error("pruning old segments", "error", err)
	} else if removed > 0 {
		e.logger.Info("pruned old segments", "removed", removed)
	}
	if e.publisher != nil {
		event := proto.IndexCompleteEvent{
			Segment:   name,
			Docs:      len(snap.Docs),
			Terms:     len(snap.Terms),
			CreatedAt: time.Now().UTC(),
		}
		if err := e.publisher.Publish(ctx, kafka.Event{Key: name, Value: event}); err != nil {
			e.logger.Error("announcing segment failed", "segment", name, "error", err)
		}
	}
	return path, nil
}

func (e *Engine) recordFlush(status string) {
	if e.metrics != nil {
		e.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
	}
}

// StartFlushLoop flushes every cfg.FlushInterval until ctx is done, then
// performs a final flush.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if _, err := e.Flush(flushCtx); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				cancel()
				return
			case <-ticker.C:
				if _, err := e.Flush(ctx); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// Reader exposes the live in-memory index.
func (e *Engine) Reader() index.Reader { return e.mem }

// DocCount returns the number of indexed documents.
func (e *Engine) DocCount() int { return e.mem.DocCount() }

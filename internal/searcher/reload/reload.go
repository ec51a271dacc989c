// Package reload swaps the searcher onto newly written segments.
package reload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/proto"
)

// ErrNotLoaded is reported by Ping until a segment has been served.
var ErrNotLoaded = errors.New("no segment loaded")

// Swapper is implemented by executor.Executor.
type Swapper interface {
	SetReader(r index.Reader) index.Reader
}

// Invalidator is implemented by cache.QueryCache.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Options struct {
	// Cache is invalidated after every swap. Nil disables invalidation.
	Cache   Invalidator
	Metrics *metrics.Metrics
	// Grace is how long a replaced reader stays open for queries that
	// started on it.
	Grace time.Duration
}

type Reloader struct {
	target  Swapper
	dataDir string
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	current string
	open    func(path string) (*segment.Reader, error)
	after   func(d time.Duration, f func())
}

func New(target Swapper, dataDir string, opts Options) *Reloader {
	if opts.Grace <= 0 {
		opts.Grace = 30 * time.Second
	}
	return &Reloader{
		target:  target,
		dataDir: dataDir,
		opts:    opts,
		logger:  slog.Default().With("component", "segment-reloader"),
		open:    segment.OpenReader,
		after:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// LoadLatest serves the newest segment in the data directory. It returns
// segment.ErrNoSegments when there is none yet.
func (r *Reloader) LoadLatest(ctx context.Context) error {
	path, err := segment.Latest(r.dataDir)
	if err != nil {
		return err
	}
	return r.Load(ctx, path)
}

// Load opens path and swaps it in. Reloading the segment already served is
// a no-op.
func (r *Reloader) Load(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if path == r.current {
		return nil
	}
	reader, err := r.open(path)
	if err != nil {
		r.record("error")
		return fmt.Errorf("opening segment %s: %w", path, err)
	}
	prev := r.target.SetReader(reader)
	r.current = path
	r.record("success")
	r.logger.Info("segment loaded", "segment", path, "docs", reader.DocCount(), "terms", reader.Terms())

	if c, ok := prev.(io.Closer); ok {
		r.after(r.opts.Grace, func() {
			if err := c.Close(); err != nil {
				r.logger.Warn("closing replaced segment", "error", err)
			}
		})
	}
	if r.opts.Cache != nil {
		if err := r.opts.Cache.Invalidate(ctx); err != nil {
			r.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	return nil
}

// HandleIndexComplete reloads on every index.complete announcement. A
// segment that was already pruned is skipped in favour of the newest one.
func (r *Reloader) HandleIndexComplete() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[proto.IndexCompleteEvent](value)
		if err != nil {
			return err
		}
		if event.Segment == "" {
			return fmt.Errorf("%w: index.complete without segment", kafka.ErrPoison)
		}
		path := filepath.Join(r.dataDir, filepath.Base(event.Segment))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			r.logger.Info("announced segment already pruned, loading newest", "segment", event.Segment)
			return r.LoadLatest(ctx)
		}
		err = r.Load(ctx, path)
		if errors.Is(err, segment.ErrCorrupt) {
			return fmt.Errorf("%w: %v", kafka.ErrPoison, err)
		}
		return err
	}
}

// Current returns the path of the served segment, or "".
func (r *Reloader) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Ping satisfies health.Pinger.
func (r *Reloader) Ping(context.Context) error {
	if r.Current() == "" {
		return ErrNotLoaded
	}
	return nil
}

func (r *Reloader) record(status string) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.SegmentReloadsTotal.WithLabelValues(status).Inc()
	}
}

// Package analytics records one event per executed search, ships the events
// to Kafka in batches and aggregates them into dashboard statistics.
package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/proto"
)

// BatchPublisher writes events to the query-events topic. *kafka.Producer
// implements it.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers query events and flushes them when a batch fills up or
// the flush interval elapses. Track never blocks the search path; events
// are dropped when the buffer is full.
type Collector struct {
	publisher     BatchPublisher
	eventCh       chan proto.QueryEvent
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(publisher BatchPublisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan proto.QueryEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. It stops when ctx is cancelled or Close is
// called, publishing whatever is still buffered.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(context.Background(), batch)
					return
				}
				batch = append(batch, kafka.Event{Key: event.QueryID, Value: event})
				if len(batch) >= c.batchSize {
					batch = c.flush(ctx, batch)
				}
			case <-ticker.C:
				batch = c.flush(ctx, batch)
			case <-ctx.Done():
				c.drain(batch)
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track queues event for publishing.
func (c *Collector) Track(event proto.QueryEvent) {
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics buffer full, dropping events", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Close stops accepting events and waits for the final flush.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("publishing query events failed", "events", len(batch), "error", err)
	} else {
		c.logger.Debug("query events published", "events", len(batch))
	}
	return batch[:0]
}

func (c *Collector) drain(batch []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.flush(ctx, batch)
				return
			}
			batch = append(batch, kafka.Event{Key: event.QueryID, Value: event})
			if len(batch) >= c.batchSize {
				batch = c.flush(ctx, batch)
			}
		default:
			c.flush(ctx, batch)
			return
		}
	}
}

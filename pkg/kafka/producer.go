package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/config"
)

// Event is one message. Key picks the partition; Value is sent as JSON.
type Event struct {
	Key   string
	Value any
}

// ProducerOption tunes the writer for a topic's delivery needs.
type ProducerOption func(*kafka.Writer)

// WithBatching sets how many messages are grouped per request and how long
// a partial batch may wait.
func WithBatching(size int, timeout time.Duration) ProducerOption {
	return func(w *kafka.Writer) {
		w.BatchSize = size
		w.BatchTimeout = timeout
	}
}

// WithLeaderAck waits for the partition leader only. Query analytics use it;
// ingest and index.complete keep the default of all in-sync replicas.
func WithLeaderAck() ProducerOption {
	return func(w *kafka.Writer) { w.RequiredAcks = kafka.RequireOne }
}

// Producer publishes JSON-encoded events to one topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string, opts ...ProducerOption) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	for _, opt := range opts {
		opt(w)
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event before writing any, so a bad value fails
// the batch without a partial write.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages, err := encode(events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("publish failed", "count", len(messages), "error", err)
		return fmt.Errorf("publishing %d events to %s: %w", len(messages), p.writer.Topic, err)
	}
	p.logger.Debug("published", "count", len(messages))
	return nil
}

var jsonHeader = kafka.Header{Key: "content-type", Value: []byte("application/json")}

func encode(events []Event) ([]kafka.Message, error) {
	now := time.Now()
	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding event %d (key %q): %w", i, event.Key, err)
		}
		messages[i] = kafka.Message{
			Key:     []byte(event.Key),
			Value:   value,
			Headers: []kafka.Header{jsonHeader},
			Time:    now,
		}
	}
	return messages, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

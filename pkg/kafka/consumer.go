// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON, while the
// consumer decodes them via a pluggable MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/resilience"
)

// ErrPoison marks a message that can never be processed. The consumer logs
// and commits it instead of retrying.
var ErrPoison = errors.New("unprocessable message")

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// ConsumerOption customises a Consumer.
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	groupID     string
	startOffset int64
	retry       resilience.RetryConfig
}

// WithGroupID overrides the configured consumer group. Searchers use a
// per-instance group so that every instance sees every index.complete event.
func WithGroupID(id string) ConsumerOption {
	return func(o *consumerOptions) { o.groupID = id }
}

// FromFirstOffset makes a new consumer group start at the oldest retained
// message instead of the newest.
func FromFirstOffset() ConsumerOption {
	return func(o *consumerOptions) { o.startOffset = kafka.FirstOffset }
}

// WithRetry sets how often a failing handler is retried before the message
// is skipped.
func WithRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(o *consumerOptions) { o.retry = cfg }
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig
	topic   string
}

// NewConsumer creates a Consumer for the given topic and handler.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := consumerOptions{
		groupID:     cfg.ConsumerGroup,
		startOffset: kafka.LastOffset,
		retry:       resilience.RetryConfig{MaxAttempts: 3},
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.retry.Retryable = func(err error) bool { return !errors.Is(err, ErrPoison) }
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     o.groupID,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: o.startOffset,
	})

	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", o.groupID),
		handler: handler,
		retry:   o.retry,
		topic:   topic,
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled. A message whose handler keeps failing is logged and
// committed so that one bad record cannot stall the partition.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		err = resilience.Retry(ctx, c.topic, c.retry, func(ctx context.Context) error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("skipping message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into
// T. Decoding failures are poison.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("%w: decoding kafka message: %v", ErrPoison, err)
	}
	return result, nil
}

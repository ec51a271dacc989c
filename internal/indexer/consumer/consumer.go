// Package consumer feeds documents from the ingest topic into the indexer
// engine.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/proto"
)

// Indexer is the part of the engine the consumer drives.
type Indexer interface {
	IndexDocument(ctx context.Context, doc index.Document) error
}

// HandleMessage returns a Kafka MessageHandler that indexes every ingest
// event. Redelivered documents are acknowledged without being indexed twice.
func HandleMessage(engine Indexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[proto.IngestEvent](value)
		if err != nil {
			return err
		}
		doc := event.Document
		if doc.ID == "" {
			return fmt.Errorf("%w: ingest event %q has no document id", kafka.ErrPoison, key)
		}
		if err := engine.IndexDocument(ctx, doc); err != nil {
			if errors.Is(err, index.ErrDocumentExists) {
				logger.Debug("document already indexed", "doc_id", doc.ID)
				return nil
			}
			return fmt.Errorf("indexing document %s: %w", doc.ID, err)
		}
		logger.Debug("document indexed", "doc_id", doc.ID, "type", doc.Type)
		return nil
	}
}

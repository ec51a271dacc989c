// Package proto defines the JSON messages the indexer and searcher exchange
// over Kafka.
package proto

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

// IngestEvent carries one document to the indexer.
type IngestEvent struct {
	Document   index.Document `json:"document"`
	IngestedAt time.Time      `json:"ingested_at"`
}

// IndexCompleteEvent announces that a new segment is ready to be served.
type IndexCompleteEvent struct {
	Segment   string    `json:"segment"`
	Docs      int       `json:"docs"`
	Terms     int       `json:"terms"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryEvent describes one executed search request.
type QueryEvent struct {
	QueryID   string    `json:"query_id"`
	RequestID string    `json:"request_id,omitempty"`
	RootKind  string    `json:"root_kind"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/proto"
)

const (
	maxRequestBytes = 8 << 20
	maxBatch        = 1000
)

// BatchPublisher is implemented by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Response struct {
	Accepted int      `json:"accepted"`
	IDs      []string `json:"ids"`
}

type Handler struct {
	publisher BatchPublisher
	now       func() time.Time
	logger    *slog.Logger
}

func NewHandler(publisher BatchPublisher) *Handler {
	return &Handler{
		publisher: publisher,
		now:       time.Now,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Routes registers the ingest endpoints on mux and returns their paths.
func (h *Handler) Routes(mux *http.ServeMux) []string {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("POST /api/v1/documents/batch", h.IngestBatch)
	return []string{"/api/v1/documents", "/api/v1/documents/batch"}
}

// Ingest accepts a single document.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var doc index.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&doc); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	h.publish(w, r, []index.Document{doc})
}

// IngestBatch accepts a JSON array of documents. The batch is rejected as a
// whole if any document is invalid.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var docs []index.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&docs); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if len(docs) == 0 || len(docs) > maxBatch {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "batch must hold between 1 and 1000 documents"})
		return
	}
	h.publish(w, r, docs)
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request, docs []index.Document) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	events := make([]kafka.Event, 0, len(docs))
	ids := make([]string, 0, len(docs))
	now := h.now().UTC()
	for i, doc := range docs {
		if err := Validate(doc); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				h.writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":  "validation failed",
					"index":  i,
					"fields": verr.Fields,
				})
				return
			}
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		events = append(events, kafka.Event{
			Key:   PartitionKey(doc),
			Value: proto.IngestEvent{Document: doc, IngestedAt: now},
		})
		ids = append(ids, doc.ID)
	}

	if err := h.publisher.PublishBatch(ctx, events); err != nil {
		log.Error("publishing documents failed", "count", len(events), "error", err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "ingestion failed"})
		return
	}
	log.Info("documents accepted", "count", len(events))
	h.writeJSON(w, http.StatusAccepted, Response{Accepted: len(ids), IDs: ids})
}

// PartitionKey keeps a parent and its children on one partition, so a family
// is indexed in the order it was sent.
func PartitionKey(doc index.Document) string {
	if doc.Parent != "" {
		return doc.Parent
	}
	return doc.ID
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

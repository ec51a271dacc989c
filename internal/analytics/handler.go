package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

const maxTopKinds = 100

// Handler serves the aggregated query statistics.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Routes registers the analytics endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/errors", h.Errors)
}

// Stats answers GET /api/v1/analytics?top=N. top limits the query kind
// ranking to 1..100 entries and defaults to 10.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := defaultTopKinds
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopKinds {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "top must be an integer between 1 and 100").Error(),
			})
			return
		}
		top = n
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.StatsTop(top))
}

type errorsResponse struct {
	Failed int64       `json:"failed_searches"`
	ByKind []KindCount `json:"by_kind"`
}

// Errors answers GET /api/v1/analytics/errors?kind=K with failed searches
// per error kind. kind narrows the list to a single error kind.
func (h *Handler) Errors(w http.ResponseWriter, r *http.Request) {
	counts := h.aggregator.ErrorCounts()
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filtered := counts[:0]
		for _, c := range counts {
			if c.Kind == kind {
				filtered = append(filtered, c)
			}
		}
		counts = filtered
	}
	resp := errorsResponse{ByKind: counts}
	for _, c := range counts {
		resp.Failed += c.Count
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

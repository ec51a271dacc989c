// Package handler exposes the executor over HTTP: a JSON query DSL on POST
// and a short query string on GET.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/dsl"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/proto"
)

const maxBodyBytes = 1 << 20

type SearchExecutor interface {
	ExecuteRequest(ctx context.Context, req executor.Request) (*executor.Result, error)
	Validate(root query.Node) error
}

type Options struct {
	// DefaultField is searched by GET requests that name no field.
	DefaultField string
	Cache        *cache.QueryCache
	Collector    *analytics.Collector
	Metrics      *metrics.Metrics
}

type Handler struct {
	executor SearchExecutor
	registry *dsl.Registry
	opts     Options
	logger   *slog.Logger
}

func New(exec SearchExecutor, registry *dsl.Registry, opts Options) *Handler {
	if opts.DefaultField == "" {
		opts.DefaultField = "body"
	}
	return &Handler{
		executor: exec,
		registry: registry,
		opts:     opts,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes registers every endpoint on mux and returns the registered paths.
func (h *Handler) Routes(mux *http.ServeMux) []string {
	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search", h.SearchQueryString)
	mux.HandleFunc("POST /api/v1/search/validate", h.Validate)
	mux.HandleFunc("GET /api/v1/query-types", h.QueryTypes)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	return []string{
		"/api/v1/search",
		"/api/v1/search/validate",
		"/api/v1/query-types",
		"/api/v1/cache/stats",
		"/api/v1/cache/invalidate",
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Path  string `json:"path,omitempty"`
}

// Search executes a JSON body of the form
// {"query": {...}, "size": n, "timeout": "50ms", "profile": bool}.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "request body too large"))
		return
	}
	h.search(w, r, body)
}

// SearchQueryString executes ?q=...&field=...&operator=and|or&size=n as a
// simple_query_string query.
func (h *Handler) SearchQueryString(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := params.Get("q")
	if q == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	field := params.Get("field")
	if field == "" {
		field = h.opts.DefaultField
	}
	size := 0
	if s := params.Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "size must be a positive integer"))
			return
		}
		size = n
	}
	qs := map[string]string{"query": q, "field": field}
	if op := params.Get("operator"); op != "" {
		qs["default_operator"] = op
	}
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"simple_query_string": qs},
		"size":  size,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.search(w, r, body)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, body []byte) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := h.registry.ParseRequest(body)
	if err != nil {
		h.track(ctx, nil, nil, false, err, start)
		h.writeError(w, err)
		return
	}
	execReq := executor.Request{Query: req.Query, TopN: req.Size, Profile: req.Profile}
	if req.Timeout > 0 {
		execReq.Deadline = start.Add(req.Timeout)
	}
	execute := func(ctx context.Context) (*executor.Result, error) {
		return h.executor.ExecuteRequest(ctx, execReq)
	}

	var result *executor.Result
	cacheHit := false
	if h.opts.Cache != nil && !req.Profile {
		key, kerr := h.opts.Cache.Key(body, req.Size)
		if kerr != nil {
			result, err = execute(ctx)
		} else {
			result, cacheHit, err = h.opts.Cache.GetOrCompute(ctx, key, execute)
		}
	} else {
		result, err = execute(ctx)
	}
	if err != nil {
		log.Warn("search failed", "root", req.Query.Kind().String(), "error", err)
		h.track(ctx, req.Query, nil, false, err, start)
		h.writeError(w, err)
		return
	}
	if cacheHit {
		cp := *result
		cp.TookMs = time.Since(start).Milliseconds()
		result = &cp
		w.Header().Set("X-Cache", "HIT")
	}

	log.Info("search completed",
		"query_id", result.QueryID,
		"root", req.Query.Kind().String(),
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.track(ctx, req.Query, result, cacheHit, nil, start)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) track(ctx context.Context, root query.Node, result *executor.Result, cacheHit bool, err error, start time.Time) {
	latency := time.Since(start)
	if m := h.opts.Metrics; m != nil {
		switch {
		case err != nil:
			m.SearchQueriesTotal.WithLabelValues("error").Inc()
		case result.TotalHits == 0:
			m.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
		default:
			m.SearchQueriesTotal.WithLabelValues("ok").Inc()
		}
		if err == nil {
			status := "miss"
			if cacheHit {
				status = "hit"
			}
			m.SearchLatency.WithLabelValues(status).Observe(latency.Seconds())
			m.SearchResultsCount.Observe(float64(len(result.Hits)))
		}
	}
	if h.opts.Collector == nil {
		return
	}
	event := proto.QueryEvent{
		RequestID: middleware.GetRequestID(ctx),
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
	}
	if root != nil {
		event.RootKind = root.Kind().String()
	}
	if err != nil {
		event.ErrorKind = errorKind(err)
	} else {
		event.QueryID = result.QueryID
		event.TotalHits = result.TotalHits
		event.Returned = len(result.Hits)
	}
	h.opts.Collector.Track(event)
}

// Validate parses and validates a search body without executing it.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "request body too large"))
		return
	}
	req, err := h.registry.ParseRequest(body)
	if err == nil {
		err = h.executor.Validate(req.Query)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"valid": true, "root": req.Query.Kind().String()})
}

// QueryTypes lists the registered query and score function names.
func (h *Handler) QueryTypes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]string{
		"queries":   h.registry.Queries(),
		"functions": h.registry.Functions(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.opts.Cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":          stats.Hits,
		"misses":        stats.Misses,
		"total":         total,
		"hit_rate":      fmt.Sprintf("%.1f%%", hitRate),
		"generation":    stats.Generation,
		"breaker_state": stats.BreakerState,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.opts.Cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusBadGateway, "cache invalidation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func errorKind(err error) string {
	if kind := apperrors.KindOf(err); kind != nil {
		return kind.Error()
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Err.Error()
	}
	return "internal"
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	resp := ErrorResponse{Error: err.Error(), Kind: errorKind(err)}
	var qe *apperrors.QueryError
	if errors.As(err, &qe) && qe.Path != nil {
		resp.Path = apperrors.FormatPath(qe.Path)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("internal error", "error", err)
		resp.Error = "internal error"
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

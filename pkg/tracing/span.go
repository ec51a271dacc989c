// Package tracing records a tree of timed spans for one query execution.
// Spans travel through contexts; each evaluated query node opens a child of
// the span found in its context.
package tracing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
	ended     bool
}

// NewTraceID returns a random trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// StartSpan creates a new root span and stores it in the returned context.
// An empty traceID gets a fresh one.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = NewTraceID()
	}
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan creates a child span linked to the parent in ctx. Siblings
// may be started from concurrent goroutines.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := &Span{
		Name:      name,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}

	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}

	return context.WithValue(ctx, spanKey, child), child
}

// End records the span's duration. Only the first call has an effect.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.Duration = time.Since(s.StartTime)
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Profile is the serializable form of a span tree, returned to callers that
// ask for a query profile.
type Profile struct {
	Name       string         `json:"name"`
	DurationUs int64          `json:"duration_us"`
	Attrs      map[string]any `json:"attrs,omitempty"`
	Children   []*Profile     `json:"children,omitempty"`
}

// Profile snapshots the span tree. Children started concurrently are
// ordered by their "path" attribute when present, else by start time.
func (s *Span) Profile() *Profile {
	s.mu.Lock()
	p := &Profile{
		Name:       s.Name,
		DurationUs: s.Duration.Microseconds(),
		Attrs:      make(map[string]any, len(s.Attrs)),
	}
	for k, v := range s.Attrs {
		p.Attrs[k] = v
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	sort.SliceStable(children, func(i, j int) bool {
		pi, iok := children[i].pathAttr()
		pj, jok := children[j].pathAttr()
		if iok && jok {
			if len(pi) != len(pj) {
				return len(pi) < len(pj)
			}
			return pi < pj
		}
		return children[i].StartTime.Before(children[j].StartTime)
	})
	for _, c := range children {
		p.Children = append(p.Children, c.Profile())
	}
	return p
}

func (s *Span) pathAttr() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Attrs["path"].(string)
	return v, ok
}

// Log writes the span tree to logger, or slog.Default() when nil.
func (s *Span) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logRecursive(logger, 0)
}

// logRecursive recursively logs spans with increasing depth.
func (s *Span) logRecursive(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_us", s.Duration.Microseconds(),
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	logger.Debug("span", attrs...)

	for _, child := range children {
		child.logRecursive(logger, depth+1)
	}
}

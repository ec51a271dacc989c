// Package dsl decodes the JSON query language into query trees. Query and
// score function types are looked up by name in an immutable Registry.
package dsl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/function"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

// QueryDecoder builds a query node from the body found under its type name.
type QueryDecoder func(p *Parser, body json.RawMessage) (query.Node, error)

// FunctionDecoder builds a score function from the body found under its
// name inside a function_score entry.
type FunctionDecoder func(p *Parser, body json.RawMessage) (query.ScoreFunction, error)

// Registry maps type names to decoders. It is built once and never changes
// afterwards, so it can be shared between goroutines.
type Registry struct {
	queries   map[string]QueryDecoder
	functions map[string]FunctionDecoder
	scripts   *function.Scripts
	now       func() time.Time
}

type Option func(*Registry)

// WithQuery registers or replaces a query type.
func WithQuery(name string, dec QueryDecoder) Option {
	return func(r *Registry) { r.queries[name] = dec }
}

// WithFunction registers or replaces a score function type.
func WithFunction(name string, dec FunctionDecoder) Option {
	return func(r *Registry) { r.functions[name] = dec }
}

// WithScripts sets the scripts available to script_score.
func WithScripts(s *function.Scripts) Option {
	return func(r *Registry) { r.scripts = s }
}

// WithClock sets the time used for "now" in date origins and bounds.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns a registry holding every built-in type, adjusted by
// opts.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		queries: map[string]QueryDecoder{
			"term":                decodeTerm,
			"bool":                decodeBool,
			"match_all":           decodeMatchAll,
			"constant_score":      decodeConstantScore,
			"dis_max":             decodeDisMax,
			"range":               decodeRange,
			"ids":                 decodeIds,
			"simple_query_string": decodeQueryString,
			"span_term":           decodeSpanTerm,
			"span_near":           decodeSpanNear,
			"span_or":             decodeSpanOr,
			"span_not":            decodeSpanNot,
			"span_containing":     decodeSpanContaining,
			"span_within":         decodeSpanWithin,
			"span_first":          decodeSpanFirst,
			"has_child":           decodeHasChild,
			"has_parent":          decodeHasParent,
			"nested":              decodeNested,
			"function_score":      decodeFunctionScore,
		},
		functions: map[string]FunctionDecoder{
			"field_value_factor": decodeFieldValueFactor,
			"random_score":       decodeRandomScore,
			"gauss":              decodeDecay(function.DecayGauss),
			"linear":             decodeDecay(function.DecayLinear),
			"exp":                decodeDecay(function.DecayExp),
			"script_score":       decodeScript,
		},
		scripts: function.DefaultScripts(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Queries lists the registered query type names.
func (r *Registry) Queries() []string { return sortedKeys(r.queries) }

// Functions lists the registered score function names.
func (r *Registry) Functions() []string { return sortedKeys(r.functions) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ParseQuery decodes a single query object such as {"term": {...}}.
func (r *Registry) ParseQuery(data []byte) (query.Node, error) {
	p := &Parser{reg: r, path: []string{"query"}}
	return p.Query(data)
}

// SearchRequest is a decoded search body.
type SearchRequest struct {
	Query   query.Node
	Size    int
	Timeout time.Duration
	Profile bool
}

type searchBody struct {
	Query   json.RawMessage `json:"query"`
	Size    int             `json:"size"`
	Timeout string          `json:"timeout"`
	Profile bool            `json:"profile"`
}

// ParseRequest decodes {"query": ..., "size": n, "timeout": "50ms",
// "profile": bool}. A missing query matches every document.
func (r *Registry) ParseRequest(data []byte) (*SearchRequest, error) {
	p := &Parser{reg: r}
	var body searchBody
	if err := p.strict(data, &body); err != nil {
		return nil, err
	}
	if body.Size < 0 {
		return nil, p.shapeError("size must be non-negative, got %d", body.Size)
	}
	req := &SearchRequest{Size: body.Size, Profile: body.Profile}
	if body.Timeout != "" {
		d, err := time.ParseDuration(body.Timeout)
		if err != nil || d <= 0 {
			return nil, p.shapeError("invalid timeout %q", body.Timeout)
		}
		req.Timeout = d
	}
	if isNull(body.Query) {
		req.Query = query.MatchAll()
		return req, nil
	}
	p.path = []string{"query"}
	node, err := p.Query(body.Query)
	if err != nil {
		return nil, err
	}
	req.Query = node
	return req, nil
}

// Parser carries the registry and the JSON location during one decode.
type Parser struct {
	reg  *Registry
	path []string
}

// Query decodes a query object with exactly one key naming its type.
func (p *Parser) Query(raw json.RawMessage) (query.Node, error) {
	name, body, err := p.single(raw, "query")
	if err != nil {
		return nil, err
	}
	dec, ok := p.reg.queries[name]
	if !ok {
		return nil, p.shapeError("unknown query type %q", name)
	}
	p.push(name)
	defer p.pop()
	return dec(p, body)
}

// Sub decodes the query found under key.
func (p *Parser) Sub(key string, raw json.RawMessage) (query.Node, error) {
	p.push(key)
	defer p.pop()
	if isNull(raw) {
		return nil, p.shapeError("query is required")
	}
	return p.Query(raw)
}

// Subs decodes a query or an array of queries found under key.
func (p *Parser) Subs(key string, raw json.RawMessage) ([]query.Node, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if raw = bytes.TrimSpace(raw); len(raw) > 0 && raw[0] == '[' {
		p.push(key)
		err := json.Unmarshal(raw, &items)
		p.pop()
		if err != nil {
			return nil, p.shapeError("%s must be a query or an array of queries", key)
		}
	} else {
		items = []json.RawMessage{raw}
	}
	out := make([]query.Node, 0, len(items))
	for i, item := range items {
		n, err := p.Sub(fmt.Sprintf("%s[%d]", key, i), item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Scripts returns the scripts available to script_score.
func (p *Parser) Scripts() *function.Scripts { return p.reg.scripts }

// Now returns the registry clock.
func (p *Parser) Now() time.Time { return p.reg.now() }

func (p *Parser) push(s string) { p.path = append(p.path, s) }
func (p *Parser) pop()          { p.path = p.path[:len(p.path)-1] }

func (p *Parser) location() string {
	if len(p.path) == 0 {
		return "request"
	}
	return strings.Join(p.path, ".")
}

func (p *Parser) shapeError(format string, args ...any) error {
	return apperrors.NewQueryError(apperrors.ErrQueryShape, "%s: %s", p.location(), fmt.Sprintf(format, args...))
}

func (p *Parser) functionError(format string, args ...any) error {
	return apperrors.NewQueryError(apperrors.ErrScoreFunctionConfig, "%s: %s", p.location(), fmt.Sprintf(format, args...))
}

// strict decodes raw into v rejecting unknown keys.
func (p *Parser) strict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.WrapQueryError(apperrors.ErrQueryShape, err, "%s: malformed body", p.location())
	}
	return nil
}

// single splits an object that must hold exactly one key.
func (p *Parser) single(raw json.RawMessage, what string) (string, json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return "", nil, p.shapeError("%s must be a JSON object", what)
	}
	if len(m) != 1 {
		return "", nil, p.shapeError("%s must have exactly one key, got %d", what, len(m))
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// common holds the attributes every query accepts.
type common struct {
	Boost *float64 `json:"boost"`
	Name  string   `json:"_name"`
}

func (c common) apply(dst *query.Common) {
	if c.Boost != nil {
		dst.Boost = *c.Boost
	}
	dst.Name = c.Name
}

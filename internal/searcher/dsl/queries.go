package dsl

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
)

// fieldBody splits {"<field>": body}.
func (p *Parser) fieldBody(raw json.RawMessage) (string, json.RawMessage, error) {
	field, body, err := p.single(raw, "field clause")
	if err != nil {
		return "", nil, err
	}
	if field == "" {
		return "", nil, p.shapeError("field name is empty")
	}
	return field, body, nil
}

type termBody struct {
	common
	Value json.RawMessage `json:"value"`
}

// termValue accepts {"field": "v"}, {"field": 3} or
// {"field": {"value": "v", "boost": 2}}.
func (p *Parser) termValue(raw json.RawMessage) (string, string, common, error) {
	field, body, err := p.fieldBody(raw)
	if err != nil {
		return "", "", common{}, err
	}
	var c common
	if b := bytes.TrimSpace(body); len(b) > 0 && b[0] == '{' {
		var tb termBody
		if err := p.strict(body, &tb); err != nil {
			return "", "", common{}, err
		}
		c = tb.common
		body = tb.Value
	}
	v, err := p.scalar(body)
	if err != nil {
		return "", "", common{}, err
	}
	return field, v, c, nil
}

// scalar renders a JSON string, number or bool as a term.
func (p *Parser) scalar(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", p.shapeError("invalid value")
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", p.shapeError("value must be a string, number or bool")
	}
}

func decodeTerm(p *Parser, body json.RawMessage) (query.Node, error) {
	field, value, c, err := p.termValue(body)
	if err != nil {
		return nil, err
	}
	n := query.Term(field, value)
	c.apply(&n.Common)
	return n, nil
}

type boolBody struct {
	common
	Must               json.RawMessage `json:"must"`
	Filter             json.RawMessage `json:"filter"`
	Should             json.RawMessage `json:"should"`
	MustNot            json.RawMessage `json:"must_not"`
	MinimumShouldMatch *int            `json:"minimum_should_match"`
}

// decodeBool orders clauses must, filter, should, must_not, which fixes the
// child indices reported in error paths.
func decodeBool(p *Parser, body json.RawMessage) (query.Node, error) {
	var b boolBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	n := query.Boolean()
	b.common.apply(&n.Common)
	n.MinimumShouldMatch = b.MinimumShouldMatch
	for _, group := range []struct {
		key   string
		raw   json.RawMessage
		occur query.Occur
	}{
		{"must", b.Must, query.Must},
		{"filter", b.Filter, query.Filter},
		{"should", b.Should, query.Should},
		{"must_not", b.MustNot, query.MustNot},
	} {
		nodes, err := p.Subs(group.key, group.raw)
		if err != nil {
			return nil, err
		}
		for _, sub := range nodes {
			n.Clauses = append(n.Clauses, query.Clause{Occur: group.occur, Node: sub})
		}
	}
	return n, nil
}

func decodeMatchAll(p *Parser, body json.RawMessage) (query.Node, error) {
	var c common
	if err := p.strict(body, &c); err != nil {
		return nil, err
	}
	n := query.MatchAll()
	c.apply(&n.Common)
	return n, nil
}

type constantScoreBody struct {
	common
	Filter json.RawMessage `json:"filter"`
}

func decodeConstantScore(p *Parser, body json.RawMessage) (query.Node, error) {
	var b constantScoreBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	filter, err := p.Sub("filter", b.Filter)
	if err != nil {
		return nil, err
	}
	n := query.ConstantScore(filter)
	b.common.apply(&n.Common)
	return n, nil
}

type disMaxBody struct {
	common
	Queries    json.RawMessage `json:"queries"`
	TieBreaker float64         `json:"tie_breaker"`
}

func decodeDisMax(p *Parser, body json.RawMessage) (query.Node, error) {
	var b disMaxBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	queries, err := p.Subs("queries", b.Queries)
	if err != nil {
		return nil, err
	}
	n := query.DisMax(queries...)
	n.TieBreaker = b.TieBreaker
	b.common.apply(&n.Common)
	return n, nil
}

type rangeBody struct {
	common
	GT  json.RawMessage `json:"gt"`
	GTE json.RawMessage `json:"gte"`
	LT  json.RawMessage `json:"lt"`
	LTE json.RawMessage `json:"lte"`
}

func decodeRange(p *Parser, body json.RawMessage) (query.Node, error) {
	field, raw, err := p.fieldBody(body)
	if err != nil {
		return nil, err
	}
	var b rangeBody
	if err := p.strict(raw, &b); err != nil {
		return nil, err
	}
	n := query.Range(field)
	b.common.apply(&n.Common)
	for _, bound := range []struct {
		raw json.RawMessage
		dst **index.Value
	}{{b.GT, &n.GT}, {b.GTE, &n.GTE}, {b.LT, &n.LT}, {b.LTE, &n.LTE}} {
		if isNull(bound.raw) {
			continue
		}
		v, err := p.rangeValue(bound.raw)
		if err != nil {
			return nil, err
		}
		*bound.dst = &v
	}
	return n, nil
}

// rangeValue reads a number, a date ("now", RFC 3339 or YYYY-MM-DD) or a
// keyword.
func (p *Parser) rangeValue(raw json.RawMessage) (index.Value, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return index.Value{}, p.shapeError("invalid range bound")
	}
	switch v := v.(type) {
	case float64:
		return index.Number(v), nil
	case string:
		if t, ok := p.parseDate(v); ok {
			return index.Date(t), nil
		}
		return index.Keyword(v), nil
	default:
		return index.Value{}, p.shapeError("range bound must be a number or string")
	}
}

func (p *Parser) parseDate(s string) (time.Time, bool) {
	if s == "now" {
		return p.Now(), true
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type idsBody struct {
	common
	Values []string `json:"values"`
}

func decodeIds(p *Parser, body json.RawMessage) (query.Node, error) {
	var b idsBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	n := query.Ids(b.Values...)
	b.common.apply(&n.Common)
	return n, nil
}

type joinBody struct {
	common
	ParentType  string          `json:"parent_type"`
	ChildType   string          `json:"type"`
	Query       json.RawMessage `json:"query"`
	ScoreMode   string          `json:"score_mode"`
	MinChildren int             `json:"min_children"`
	MaxChildren int             `json:"max_children"`
}

var scoreModes = map[string]query.ScoreMode{
	"none": query.ScoreNone,
	"min":  query.ScoreMin,
	"max":  query.ScoreMax,
	"sum":  query.ScoreSum,
	"avg":  query.ScoreAvg,
}

func (p *Parser) scoreMode(name string, def query.ScoreMode) (query.ScoreMode, error) {
	if name == "" {
		return def, nil
	}
	m, ok := scoreModes[name]
	if !ok {
		return 0, p.shapeError("unknown score_mode %q", name)
	}
	return m, nil
}

// decodeHasChild reads {"parent_type": "question", "type": "answer",
// "query": {...}, "score_mode": "max"}.
func decodeHasChild(p *Parser, body json.RawMessage) (query.Node, error) {
	var b joinBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	mode, err := p.scoreMode(b.ScoreMode, query.ScoreNone)
	if err != nil {
		return nil, err
	}
	inner, err := p.Sub("query", b.Query)
	if err != nil {
		return nil, err
	}
	n := query.HasChild(b.ParentType, b.ChildType, mode, inner)
	n.MinChildren = b.MinChildren
	n.MaxChildren = b.MaxChildren
	b.common.apply(&n.Common)
	return n, nil
}

type nestedBody struct {
	common
	ParentType string          `json:"parent_type"`
	Path       string          `json:"path"`
	Query      json.RawMessage `json:"query"`
	ScoreMode  string          `json:"score_mode"`
}

// decodeNested reads {"parent_type": "question", "path": "answer",
// "query": {...}, "score_mode": "sum"}. Path names the child type; child
// scores are averaged unless score_mode says otherwise.
func decodeNested(p *Parser, body json.RawMessage) (query.Node, error) {
	var b nestedBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	if b.Path == "" {
		return nil, p.shapeError("nested requires a path")
	}
	mode, err := p.scoreMode(b.ScoreMode, query.ScoreAvg)
	if err != nil {
		return nil, err
	}
	inner, err := p.Sub("query", b.Query)
	if err != nil {
		return nil, err
	}
	n := query.HasChild(b.ParentType, b.Path, mode, inner)
	b.common.apply(&n.Common)
	return n, nil
}

type hasParentBody struct {
	common
	ParentType string          `json:"parent_type"`
	ChildType  string          `json:"child_type"`
	Query      json.RawMessage `json:"query"`
	Score      bool            `json:"score"`
}

// decodeHasParent reads {"parent_type": "question", "child_type": "answer",
// "query": {...}, "score": true}. Without score every child scores boost.
func decodeHasParent(p *Parser, body json.RawMessage) (query.Node, error) {
	var b hasParentBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	inner, err := p.Sub("query", b.Query)
	if err != nil {
		return nil, err
	}
	mode := query.ScoreNone
	if b.Score {
		mode = query.ScoreMax
	}
	n := query.HasParent(b.ParentType, b.ChildType, mode, inner)
	b.common.apply(&n.Common)
	return n, nil
}

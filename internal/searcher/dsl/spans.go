package dsl

import (
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
)

// span decodes the query under key and requires it to be a span query.
func (p *Parser) span(key string, raw json.RawMessage) (*query.SpanNode, error) {
	n, err := p.Sub(key, raw)
	if err != nil {
		return nil, err
	}
	s, ok := n.(*query.SpanNode)
	if !ok {
		p.push(key)
		defer p.pop()
		return nil, p.shapeError("expected a span query, got %s", n.Kind())
	}
	return s, nil
}

func (p *Parser) spanClauses(raw json.RawMessage) ([]*query.SpanNode, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, p.shapeError("clauses must be an array of span queries")
	}
	out := make([]*query.SpanNode, 0, len(items))
	for i, item := range items {
		s, err := p.span(fmt.Sprintf("clauses[%d]", i), item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeSpanTerm(p *Parser, body json.RawMessage) (query.Node, error) {
	field, value, c, err := p.termValue(body)
	if err != nil {
		return nil, err
	}
	n := query.SpanTermQuery(field, value)
	c.apply(&n.Common)
	return n, nil
}

type spanNearBody struct {
	common
	Clauses json.RawMessage `json:"clauses"`
	Slop    int             `json:"slop"`
	InOrder *bool           `json:"in_order"`
}

// decodeSpanNear defaults in_order to true.
func decodeSpanNear(p *Parser, body json.RawMessage) (query.Node, error) {
	var b spanNearBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	clauses, err := p.spanClauses(b.Clauses)
	if err != nil {
		return nil, err
	}
	inOrder := b.InOrder == nil || *b.InOrder
	n := query.SpanNearQuery(b.Slop, inOrder, clauses...)
	b.common.apply(&n.Common)
	return n, nil
}

type spanOrBody struct {
	common
	Clauses json.RawMessage `json:"clauses"`
}

func decodeSpanOr(p *Parser, body json.RawMessage) (query.Node, error) {
	var b spanOrBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	clauses, err := p.spanClauses(b.Clauses)
	if err != nil {
		return nil, err
	}
	n := query.SpanOrQuery(clauses...)
	b.common.apply(&n.Common)
	return n, nil
}

type spanNotBody struct {
	common
	Include json.RawMessage `json:"include"`
	Exclude json.RawMessage `json:"exclude"`
	Pre     int             `json:"pre"`
	Post    int             `json:"post"`
	Dist    *int            `json:"dist"`
}

// decodeSpanNot accepts dist as shorthand for equal pre and post.
func decodeSpanNot(p *Parser, body json.RawMessage) (query.Node, error) {
	var b spanNotBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	include, err := p.span("include", b.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := p.span("exclude", b.Exclude)
	if err != nil {
		return nil, err
	}
	pre, post := b.Pre, b.Post
	if b.Dist != nil {
		if pre != 0 || post != 0 {
			return nil, p.shapeError("dist cannot be combined with pre or post")
		}
		pre, post = *b.Dist, *b.Dist
	}
	n := query.SpanNotQuery(include, exclude, pre, post)
	b.common.apply(&n.Common)
	return n, nil
}

type spanPairBody struct {
	common
	Big    json.RawMessage `json:"big"`
	Little json.RawMessage `json:"little"`
}

func (p *Parser) spanPair(body json.RawMessage) (*query.SpanNode, *query.SpanNode, common, error) {
	var b spanPairBody
	if err := p.strict(body, &b); err != nil {
		return nil, nil, common{}, err
	}
	big, err := p.span("big", b.Big)
	if err != nil {
		return nil, nil, common{}, err
	}
	little, err := p.span("little", b.Little)
	if err != nil {
		return nil, nil, common{}, err
	}
	return big, little, b.common, nil
}

func decodeSpanContaining(p *Parser, body json.RawMessage) (query.Node, error) {
	big, little, c, err := p.spanPair(body)
	if err != nil {
		return nil, err
	}
	n := query.SpanContainingQuery(big, little)
	c.apply(&n.Common)
	return n, nil
}

func decodeSpanWithin(p *Parser, body json.RawMessage) (query.Node, error) {
	big, little, c, err := p.spanPair(body)
	if err != nil {
		return nil, err
	}
	n := query.SpanWithinQuery(big, little)
	c.apply(&n.Common)
	return n, nil
}

type spanFirstBody struct {
	common
	Match json.RawMessage `json:"match"`
	End   int             `json:"end"`
}

func decodeSpanFirst(p *Parser, body json.RawMessage) (query.Node, error) {
	var b spanFirstBody
	if err := p.strict(body, &b); err != nil {
		return nil, err
	}
	match, err := p.span("match", b.Match)
	if err != nil {
		return nil, err
	}
	n := query.SpanFirstQuery(match, b.End)
	b.common.apply(&n.Common)
	return n, nil
}

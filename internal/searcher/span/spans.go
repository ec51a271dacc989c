// Package span evaluates positional span queries. Every operator is a lazy
// doc-at-a-time iterator: NextDoc advances to the next document that has at
// least one span, and Spans returns that document's spans.
package span

import (
	"context"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/matchset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

// Span is a run of positions in one document. End is the position of the
// last covered term, so a single term has Start == End.
type Span struct {
	Doc   index.DocID
	Start int
	End   int
}

func (s Span) width() int { return s.End - s.Start + 1 }

// Spans iterates the documents matched by a span query in ascending DocID
// order.
type Spans interface {
	NextDoc() (bool, error)
	Doc() index.DocID
	// Spans returns the current document's spans sorted by (Start, End)
	// without duplicates.
	Spans() []Span
}

// Evaluate runs node and scores every matching document as
// boost × Σ 1/(1 + End − Start) over its spans.
func Evaluate(ctx context.Context, m *term.Matcher, node *query.SpanNode) (*matchset.MatchSet, error) {
	b := &builder{ctx: ctx, matcher: m, deadline: query.NewDeadline(ctx)}
	spans, err := b.build(node)
	if err != nil {
		return nil, err
	}
	out := matchset.New()
	for {
		ok, err := spans.NextDoc()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		var sum float64
		for _, s := range spans.Spans() {
			sum += 1 / float64(1+s.End-s.Start)
		}
		out.Add(spans.Doc(), node.Boost*sum)
	}
	if err := query.CheckContext(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// Build composes the iterator tree for node.
func Build(ctx context.Context, m *term.Matcher, node *query.SpanNode) (Spans, error) {
	b := &builder{ctx: ctx, matcher: m, deadline: query.NewDeadline(ctx)}
	return b.build(node)
}

type builder struct {
	ctx      context.Context
	matcher  *term.Matcher
	deadline *query.Deadline
}

func (b *builder) build(node *query.SpanNode) (Spans, error) {
	if node == nil {
		return nil, apperrors.NewQueryError(apperrors.ErrQueryShape, "span query is missing")
	}
	if node.Op == query.SpanTerm {
		it, err := b.matcher.Match(b.ctx, node.Field, node.Term, true)
		if err != nil {
			return nil, err
		}
		return &termSpans{it: it, deadline: b.deadline, field: node.Field, term: node.Term}, nil
	}
	subs := node.Subs()
	built := make([]Spans, len(subs))
	for i, sub := range subs {
		s, err := b.build(sub)
		if err != nil {
			return nil, err
		}
		built[i] = s
	}
	switch node.Op {
	case query.SpanNear:
		return &nearSpans{conj: conjunction{subs: built}, slop: node.Slop, inOrder: node.InOrder}, nil
	case query.SpanOr:
		return &orSpans{subs: built, live: make([]bool, len(built))}, nil
	case query.SpanNot:
		return &notSpans{include: built[0], exclude: built[1], pre: node.Pre, post: node.Post}, nil
	case query.SpanContaining:
		return &containSpans{conj: conjunction{subs: built}, keepBig: true}, nil
	case query.SpanWithin:
		return &containSpans{conj: conjunction{subs: built}, keepBig: false}, nil
	case query.SpanFirst:
		return &firstSpans{sub: built[0], end: node.End}, nil
	default:
		return nil, apperrors.NewQueryError(apperrors.ErrQueryShape, "unknown span operator %d", node.Op)
	}
}

type termSpans struct {
	it       index.PostingIterator
	deadline *query.Deadline
	field    string
	term     string
	doc      index.DocID
	spans    []Span
}

func (t *termSpans) NextDoc() (bool, error) {
	if err := t.deadline.Check(); err != nil {
		return false, err
	}
	if !t.it.Next() {
		if err := t.it.Err(); err != nil {
			kind, ok := apperrors.ContextKind(err)
			if !ok {
				kind = apperrors.ErrIndexAccess
			}
			return false, apperrors.WrapQueryError(kind, err, "reading positions for %s:%s", t.field, t.term)
		}
		return false, nil
	}
	p := t.it.Posting()
	t.doc = p.DocID
	t.spans = t.spans[:0]
	for _, pos := range p.Positions {
		t.spans = append(t.spans, Span{Doc: p.DocID, Start: pos, End: pos})
	}
	return true, nil
}

func (t *termSpans) Doc() index.DocID { return t.doc }
func (t *termSpans) Spans() []Span    { return t.spans }

// conjunction keeps several iterators positioned on the same document.
type conjunction struct {
	subs    []Spans
	started bool
}

func (c *conjunction) nextDoc() (bool, error) {
	if !c.started {
		c.started = true
		for _, s := range c.subs {
			if ok, err := s.NextDoc(); err != nil || !ok {
				return false, err
			}
		}
	} else if ok, err := c.subs[0].NextDoc(); err != nil || !ok {
		return false, err
	}
	for {
		target := c.subs[0].Doc()
		for _, s := range c.subs[1:] {
			if s.Doc() > target {
				target = s.Doc()
			}
		}
		aligned := true
		for _, s := range c.subs {
			for s.Doc() < target {
				if ok, err := s.NextDoc(); err != nil || !ok {
					return false, err
				}
			}
			if s.Doc() != target {
				aligned = false
			}
		}
		if aligned {
			return true, nil
		}
	}
}

func (c *conjunction) doc() index.DocID { return c.subs[0].Doc() }

type orSpans struct {
	subs    []Spans
	live    []bool
	started bool
	doc     index.DocID
	spans   []Span
}

func (o *orSpans) NextDoc() (bool, error) {
	for i, s := range o.subs {
		if o.started && (!o.live[i] || s.Doc() != o.doc) {
			continue
		}
		ok, err := s.NextDoc()
		if err != nil {
			return false, err
		}
		o.live[i] = ok
	}
	o.started = true
	found := false
	for i, s := range o.subs {
		if o.live[i] && (!found || s.Doc() < o.doc) {
			o.doc = s.Doc()
			found = true
		}
	}
	if !found {
		return false, nil
	}
	o.spans = o.spans[:0]
	for i, s := range o.subs {
		if o.live[i] && s.Doc() == o.doc {
			o.spans = append(o.spans, s.Spans()...)
		}
	}
	o.spans = sortUnique(o.spans)
	return true, nil
}

func (o *orSpans) Doc() index.DocID { return o.doc }
func (o *orSpans) Spans() []Span    { return o.spans }

type notSpans struct {
	include     Spans
	exclude     Spans
	pre, post   int
	exclStarted bool
	exclLive    bool
	spans       []Span
}

func (n *notSpans) NextDoc() (bool, error) {
	for {
		ok, err := n.include.NextDoc()
		if err != nil || !ok {
			return false, err
		}
		doc := n.include.Doc()
		if !n.exclStarted {
			n.exclStarted = true
			if n.exclLive, err = n.exclude.NextDoc(); err != nil {
				return false, err
			}
		}
		for n.exclLive && n.exclude.Doc() < doc {
			if n.exclLive, err = n.exclude.NextDoc(); err != nil {
				return false, err
			}
		}
		var excluded []Span
		if n.exclLive && n.exclude.Doc() == doc {
			excluded = n.exclude.Spans()
		}
		n.spans = n.spans[:0]
		for _, s := range n.include.Spans() {
			if !overlapsAny(s.Start-n.pre, s.End+n.post, excluded) {
				n.spans = append(n.spans, s)
			}
		}
		if len(n.spans) > 0 {
			return true, nil
		}
	}
}

func overlapsAny(start, end int, spans []Span) bool {
	for _, e := range spans {
		if e.Start <= end && e.End >= start {
			return true
		}
	}
	return false
}

func (n *notSpans) Doc() index.DocID { return n.include.Doc() }
func (n *notSpans) Spans() []Span    { return n.spans }

// containSpans implements CONTAINING (keepBig) and WITHIN. subs are
// [big, little].
type containSpans struct {
	conj    conjunction
	keepBig bool
	spans   []Span
}

func (c *containSpans) NextDoc() (bool, error) {
	for {
		ok, err := c.conj.nextDoc()
		if err != nil || !ok {
			return false, err
		}
		bigs, littles := c.conj.subs[0].Spans(), c.conj.subs[1].Spans()
		c.spans = c.spans[:0]
		if c.keepBig {
			for _, b := range bigs {
				for _, l := range littles {
					if contains(b, l) {
						c.spans = append(c.spans, b)
						break
					}
				}
			}
		} else {
			for _, l := range littles {
				for _, b := range bigs {
					if contains(b, l) {
						c.spans = append(c.spans, l)
						break
					}
				}
			}
		}
		if len(c.spans) > 0 {
			return true, nil
		}
	}
}

func contains(big, little Span) bool {
	return big.Start <= little.Start && little.End <= big.End
}

func (c *containSpans) Doc() index.DocID { return c.conj.doc() }
func (c *containSpans) Spans() []Span    { return c.spans }

type firstSpans struct {
	sub   Spans
	end   int
	spans []Span
}

func (f *firstSpans) NextDoc() (bool, error) {
	for {
		ok, err := f.sub.NextDoc()
		if err != nil || !ok {
			return false, err
		}
		f.spans = f.spans[:0]
		for _, s := range f.sub.Spans() {
			if s.End < f.end {
				f.spans = append(f.spans, s)
			}
		}
		if len(f.spans) > 0 {
			return true, nil
		}
	}
}

func (f *firstSpans) Doc() index.DocID { return f.sub.Doc() }
func (f *firstSpans) Spans() []Span    { return f.spans }

func sortUnique(spans []Span) []Span {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})
	out := spans[:0]
	for _, s := range spans {
		if len(out) > 0 && s == out[len(out)-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

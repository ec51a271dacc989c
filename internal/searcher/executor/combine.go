package executor

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/boolean"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/function"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/matchset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/span"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

// combine produces the match set of n from its evaluated children.
func (r *run) combine(ctx context.Context, n query.Node, children []*matchset.MatchSet) (*matchset.MatchSet, error) {
	switch n := n.(type) {
	case *query.TermNode:
		return r.terms.Evaluate(ctx, n)
	case *query.SpanNode:
		return span.Evaluate(ctx, r.terms, n)
	case *query.BooleanNode:
		return boolean.Combine(n, children, r.reader.MaxDoc())
	case *query.JoinNode:
		return r.joins.Evaluate(ctx, n, children[0])
	case *query.FunctionScoreNode:
		return function.Combine(ctx, n, children[0], function.AlignFilters(n, children), r.reader)
	case *query.MatchAllNode:
		return matchset.FromBitmap(matchset.All(r.reader.MaxDoc()), n.Boost), nil
	case *query.ConstantScoreNode:
		return matchset.FromBitmap(children[0].Bitmap().Clone(), n.Boost), nil
	case *query.DisMaxNode:
		return disMax(n, children), nil
	case *query.RangeNode:
		return r.rangeScan(ctx, n)
	case *query.IdsNode:
		return r.ids(n), nil
	default:
		return nil, apperrors.NewQueryError(apperrors.ErrQueryShape, "unsupported node type %s", fmt.Sprintf("%T", n))
	}
}

// disMax scores each document by its best sub-query score plus tie breaker
// times the remaining matching scores.
func disMax(n *query.DisMaxNode, children []*matchset.MatchSet) *matchset.MatchSet {
	bitmaps := make([]*roaring.Bitmap, len(children))
	for i, c := range children {
		bitmaps[i] = c.Bitmap()
	}
	out := matchset.New()
	union := roaring.FastOr(bitmaps...)
	it := union.Iterator()
	for it.HasNext() {
		doc := index.DocID(it.Next())
		var best, sum float64
		first := true
		for _, c := range children {
			s, ok := c.Score(doc)
			if !ok {
				continue
			}
			sum += s
			if first || s > best {
				best = s
				first = false
			}
		}
		out.Add(doc, (best+n.TieBreaker*(sum-best))*n.Boost)
	}
	return out
}

// rangeScan walks the doc values of the range field.
func (r *run) rangeScan(ctx context.Context, n *query.RangeNode) (*matchset.MatchSet, error) {
	deadline := query.NewDeadline(ctx)
	docs := roaring.New()
	maxDoc := r.reader.MaxDoc()
	for doc := index.DocID(0); doc < maxDoc; doc++ {
		if err := deadline.Check(); err != nil {
			return nil, err
		}
		v, ok := r.reader.FieldValue(doc, n.Field)
		if ok && n.Contains(v) {
			docs.Add(uint32(doc))
		}
	}
	return matchset.FromBitmap(docs, n.Boost), nil
}

// ids resolves external IDs. Unknown IDs are skipped.
func (r *run) ids(n *query.IdsNode) *matchset.MatchSet {
	docs := roaring.New()
	for _, id := range n.IDs {
		if doc, ok := r.reader.LookupID(id); ok {
			docs.Add(uint32(doc))
		}
	}
	return matchset.FromBitmap(docs, n.Boost)
}

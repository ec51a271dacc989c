// Package boolean combines the match sets of boolean clauses.
package boolean

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/matchset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

// Combine merges the per-clause results of node. results[i] is the match
// set of node.Clauses[i]; maxDoc bounds the document space for queries made
// only of MUST_NOT clauses.
//
// MUST and FILTER clauses are intersected and MUST_NOT clauses subtracted.
// SHOULD clauses are optional when a MUST or FILTER clause exists; otherwise
// a document needs at least MinimumShouldMatch of them, defaulting to one.
// A query with only MUST_NOT clauses matches every other document with a
// score of zero. Scores are boost × the sum of matching MUST and SHOULD
// scores.
func Combine(node *query.BooleanNode, results []*matchset.MatchSet, maxDoc index.DocID) (*matchset.MatchSet, error) {
	if len(node.Clauses) == 0 {
		return nil, apperrors.NewQueryError(apperrors.ErrQueryShape, "boolean query requires at least one clause")
	}
	if len(results) != len(node.Clauses) {
		return nil, apperrors.NewQueryError(apperrors.ErrQueryShape,
			"boolean query has %d clauses but %d results", len(node.Clauses), len(results))
	}

	var required, should, excluded []*roaring.Bitmap
	for i, c := range node.Clauses {
		switch c.Occur {
		case query.Must, query.Filter:
			required = append(required, results[i].Bitmap())
		case query.Should:
			should = append(should, results[i].Bitmap())
		case query.MustNot:
			excluded = append(excluded, results[i].Bitmap())
		}
	}

	msm := 0
	if len(required) == 0 && len(should) > 0 {
		msm = 1
	}
	if node.MinimumShouldMatch != nil {
		msm = *node.MinimumShouldMatch
	}

	var candidates *roaring.Bitmap
	switch {
	case len(required) > 0:
		candidates = roaring.FastAnd(required...)
	case len(should) > 0:
		candidates = roaring.FastOr(should...)
	default:
		candidates = matchset.All(maxDoc)
	}
	if len(excluded) > 0 {
		candidates.AndNot(roaring.FastOr(excluded...))
	}
	if msm > len(should) {
		return matchset.New(), nil
	}

	out := matchset.New()
	it := candidates.Iterator()
	for it.HasNext() {
		doc := index.DocID(it.Next())
		var score float64
		matchedShould := 0
		for i, c := range node.Clauses {
			s, ok := results[i].Score(doc)
			if !ok {
				continue
			}
			switch c.Occur {
			case query.Must:
				score += s
			case query.Should:
				score += s
				matchedShould++
			}
		}
		if matchedShould < msm {
			continue
		}
		out.Add(doc, node.Boost*score)
	}
	return out, nil
}

package function

import (
	"context"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/matchset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

// AlignFilters maps the evaluated children of node, ordered as
// node.Children(), onto node.Functions. The result has one entry per
// function: nil when the function has no filter.
func AlignFilters(node *query.FunctionScoreNode, children []*matchset.MatchSet) []*matchset.MatchSet {
	out := make([]*matchset.MatchSet, len(node.Functions))
	next := 1
	for i, f := range node.Functions {
		if f.Filter == nil {
			continue
		}
		if next < len(children) {
			out[i] = children[next]
		}
		next++
	}
	return out
}

// Combine rescores base with node's functions. filters is aligned with
// node.Functions as returned by AlignFilters.
//
// For each document the applicable functions are those without a filter or
// whose filter matched it. With no applicable function the base score is
// kept, except under REPLACE where the neutral factor 1 is used so the
// result never depends on base. Otherwise, with v_i = weight_i × f_i:
//
//	MULTIPLY  base × Π v_i
//	SUM       base + Σ v_i
//	REPLACE   Σ v_i
//	MIN/MAX   min/max of {base, v_1, …}
//	AVG       mean of {base, v_1, …}
//
// The result is capped at MaxScore, documents below MinScore are dropped,
// and the remainder is multiplied by boost.
func Combine(ctx context.Context, node *query.FunctionScoreNode, base *matchset.MatchSet, filters []*matchset.MatchSet, reader index.Reader) (*matchset.MatchSet, error) {
	deadline := query.NewDeadline(ctx)
	out := matchset.New()
	values := make([]float64, 0, len(node.Functions))
	var loopErr error
	base.Each(func(doc index.DocID, baseScore float64) bool {
		if loopErr = deadline.Check(); loopErr != nil {
			return false
		}
		values = values[:0]
		dc := query.DocContext{Reader: reader, Doc: doc, Score: baseScore}
		for i, wf := range node.Functions {
			if i < len(filters) && filters[i] != nil && !filters[i].Contains(doc) {
				continue
			}
			f := 1.0
			if wf.Function != nil {
				f, loopErr = wf.Function.Score(dc)
				if loopErr != nil {
					return false
				}
				if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
					name := wf.Function.Name()
					loopErr = apperrors.NewQueryError(apperrors.ErrScoreFunctionConfig,
						"function %d (%s) produced %g for document %d", i, name, f, doc)
					return false
				}
			}
			values = append(values, wf.Weight*f)
		}
		score := combine(node.CombineMode, baseScore, values)
		if node.MaxScore != nil && score > *node.MaxScore {
			score = *node.MaxScore
		}
		if node.MinScore != nil && score < *node.MinScore {
			return true
		}
		out.Add(doc, score*node.Boost)
		return true
	})
	if loopErr != nil {
		return nil, loopErr
	}
	return out, nil
}

func combine(mode query.CombineMode, base float64, values []float64) float64 {
	if len(values) == 0 {
		if mode == query.CombineReplace {
			return 1
		}
		return base
	}
	switch mode {
	case query.CombineSum:
		for _, v := range values {
			base += v
		}
		return base
	case query.CombineReplace:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case query.CombineMin:
		for _, v := range values {
			base = math.Min(base, v)
		}
		return base
	case query.CombineMax:
		for _, v := range values {
			base = math.Max(base, v)
		}
		return base
	case query.CombineAvg:
		sum := base
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)+1)
	default:
		for _, v := range values {
			base *= v
		}
		return base
	}
}

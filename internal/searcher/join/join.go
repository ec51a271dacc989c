package join

import (
	"context"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/matchset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/term"
)

type Evaluator struct {
	matcher   *term.Matcher
	relations *Relations
}

func NewEvaluator(matcher *term.Matcher, relations *Relations) *Evaluator {
	if relations == nil {
		relations = Empty()
	}
	return &Evaluator{matcher: matcher, relations: relations}
}

// Check resolves the node's types without evaluating anything.
func (e *Evaluator) Check(node *query.JoinNode) error {
	_, err := e.relations.Resolve(node.ParentType, node.ChildType)
	return err
}

// Evaluate joins inner, the match set of node.Inner, across the relation.
//
// ToParent: inner holds children; each parent with at least one matching
// child scores boost under NONE and aggregate(child scores) × boost
// otherwise. ToChild: inner holds parents; each child of a matching parent
// scores boost under NONE and parent score × boost otherwise.
func (e *Evaluator) Evaluate(ctx context.Context, node *query.JoinNode, inner *matchset.MatchSet) (*matchset.MatchSet, error) {
	rel, err := e.relations.Resolve(node.ParentType, node.ChildType)
	if err != nil {
		return nil, err
	}
	if node.Direction == query.ToChild {
		return e.toChild(ctx, node, rel, inner)
	}
	return e.toParent(ctx, node, rel, inner)
}

type aggregate struct {
	count int
	sum   float64
	min   float64
	max   float64
}

func (e *Evaluator) toParent(ctx context.Context, node *query.JoinNode, rel Relation, children *matchset.MatchSet) (*matchset.MatchSet, error) {
	reader := e.matcher.Reader()
	deadline := query.NewDeadline(ctx)
	groups := make(map[index.DocID]*aggregate)
	var order []index.DocID
	var loopErr error
	children.Each(func(child index.DocID, score float64) bool {
		if loopErr = deadline.Check(); loopErr != nil {
			return false
		}
		parent, ok := reader.ParentOf(child, rel.Name)
		if !ok {
			return true
		}
		if v, ok := reader.FieldValue(parent, index.TypeField); !ok || v.Str != rel.Parent {
			return true
		}
		g, ok := groups[parent]
		if !ok {
			g = &aggregate{min: math.Inf(1), max: math.Inf(-1)}
			groups[parent] = g
			order = append(order, parent)
		}
		g.count++
		g.sum += score
		g.min = math.Min(g.min, score)
		g.max = math.Max(g.max, score)
		return true
	})
	if loopErr != nil {
		return nil, loopErr
	}
	out := matchset.New()
	for _, parent := range order {
		g := groups[parent]
		if node.MinChildren > 0 && g.count < node.MinChildren {
			continue
		}
		if node.MaxChildren > 0 && g.count > node.MaxChildren {
			continue
		}
		var agg float64
		switch node.ScoreMode {
		case query.ScoreNone:
			agg = 1
		case query.ScoreMin:
			agg = g.min
		case query.ScoreMax:
			agg = g.max
		case query.ScoreSum:
			agg = g.sum
		case query.ScoreAvg:
			agg = g.sum / float64(g.count)
		}
		out.Add(parent, agg*node.Boost)
	}
	return out, nil
}

func (e *Evaluator) toChild(ctx context.Context, node *query.JoinNode, rel Relation, parents *matchset.MatchSet) (*matchset.MatchSet, error) {
	reader := e.matcher.Reader()
	it, err := e.matcher.Match(ctx, index.TypeField, rel.Child, false)
	if err != nil {
		return nil, err
	}
	deadline := query.NewDeadline(ctx)
	out := matchset.New()
	for it.Next() {
		if err := deadline.Check(); err != nil {
			return nil, err
		}
		child := it.Posting().DocID
		parent, ok := reader.ParentOf(child, rel.Name)
		if !ok {
			continue
		}
		score, ok := parents.Score(parent)
		if !ok {
			continue
		}
		if node.ScoreMode == query.ScoreNone {
			score = 1
		}
		out.Add(child, score*node.Boost)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

package query

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

// DocContext is what a score function sees for one document.
type DocContext struct {
	Reader index.Reader
	Doc    index.DocID
	// Score is the base query's score for Doc.
	Score float64
}

// ScoreFunction computes a per-document factor. Implementations hold only
// configuration and must be safe for concurrent use.
type ScoreFunction interface {
	Name() string
	Validate() error
	Score(dc DocContext) (float64, error)
}

// WeightedFunction applies Function, scaled by Weight, to documents matched
// by Filter. A nil Function contributes the bare weight; a nil Filter
// applies to every document.
type WeightedFunction struct {
	Weight   float64
	Function ScoreFunction
	Filter   Node
}

type CombineMode uint8

const (
	CombineMultiply CombineMode = iota + 1
	CombineSum
	CombineReplace
	CombineMin
	CombineMax
	CombineAvg
)

func (m CombineMode) String() string {
	switch m {
	case CombineMultiply:
		return "multiply"
	case CombineSum:
		return "sum"
	case CombineReplace:
		return "replace"
	case CombineMin:
		return "min"
	case CombineMax:
		return "max"
	case CombineAvg:
		return "avg"
	default:
		return "unknown"
	}
}

// FunctionScoreNode rescores the documents matched by Base. MinScore and
// MaxScore are nil when unset.
type FunctionScoreNode struct {
	Common
	Base        Node
	Functions   []WeightedFunction
	CombineMode CombineMode
	MinScore    *float64
	MaxScore    *float64
}

func FunctionScore(base Node, mode CombineMode, functions ...WeightedFunction) *FunctionScoreNode {
	return &FunctionScoreNode{
		Common:      defaultCommon(),
		Base:        base,
		Functions:   functions,
		CombineMode: mode,
	}
}

func (n *FunctionScoreNode) Kind() Kind { return KindFunctionScore }

// Children returns Base followed by the filter of every function that has
// one, in function order.
func (n *FunctionScoreNode) Children() []Node {
	out := []Node{n.Base}
	for _, f := range n.Functions {
		if f.Filter != nil {
			out = append(out, f.Filter)
		}
	}
	return out
}

// Validate checks shape and function configuration. Shape problems are
// query shape errors; bad weights and function settings are score function
// config errors.
func (n *FunctionScoreNode) Validate() error {
	if err := validateCommon(n.Common); err != nil {
		return err
	}
	if n.Base == nil {
		return shapeError("function_score requires a base query")
	}
	if n.CombineMode < CombineMultiply || n.CombineMode > CombineAvg {
		return shapeError("unknown combine mode %d", n.CombineMode)
	}
	for i, f := range n.Functions {
		if math.IsNaN(f.Weight) || math.IsInf(f.Weight, 0) || f.Weight < 0 {
			return functionError("function %d has invalid weight %g", i, f.Weight)
		}
		if f.Function == nil {
			continue
		}
		if err := f.Function.Validate(); err != nil {
			return err
		}
	}
	if n.MinScore != nil && n.MaxScore != nil && *n.MinScore > *n.MaxScore {
		return functionError("min_score %g exceeds max_score %g", *n.MinScore, *n.MaxScore)
	}
	return nil
}

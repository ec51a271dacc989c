// Package query defines the immutable query tree evaluated by the executor.
// Nodes form a closed set of variants dispatched by Kind.
package query

import (
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

type Kind uint8

const (
	KindTerm Kind = iota + 1
	KindBoolean
	KindSpan
	KindJoin
	KindFunctionScore
	KindMatchAll
	KindConstantScore
	KindDisMax
	KindRange
	KindIds
)

func (k Kind) String() string {
	switch k {
	case KindTerm:
		return "term"
	case KindBoolean:
		return "bool"
	case KindSpan:
		return "span"
	case KindJoin:
		return "join"
	case KindFunctionScore:
		return "function_score"
	case KindMatchAll:
		return "match_all"
	case KindConstantScore:
		return "constant_score"
	case KindDisMax:
		return "dis_max"
	case KindRange:
		return "range"
	case KindIds:
		return "ids"
	default:
		return "unknown"
	}
}

// Common holds the attributes every node carries.
type Common struct {
	Boost float64
	Name  string
}

func (c Common) Attrs() Common { return c }

func defaultCommon() Common { return Common{Boost: 1} }

// Node is one vertex of a query tree. Validate checks the node's own
// configuration; it does not descend into Children.
type Node interface {
	Kind() Kind
	Attrs() Common
	Children() []Node
	Validate() error
}

// TermNode matches documents containing Term in Field.
type TermNode struct {
	Common
	Field string
	Term  string
}

func Term(field, term string) *TermNode {
	return &TermNode{Common: defaultCommon(), Field: field, Term: term}
}

func (n *TermNode) Kind() Kind       { return KindTerm }
func (n *TermNode) Children() []Node { return nil }

func (n *TermNode) Validate() error {
	if err := validateCommon(n.Common); err != nil {
		return err
	}
	if n.Field == "" {
		return shapeError("term query requires a field")
	}
	return nil
}

type Occur uint8

const (
	Must Occur = iota + 1
	Should
	MustNot
	Filter
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "MUST"
	case Should:
		return "SHOULD"
	case MustNot:
		return "MUST_NOT"
	case Filter:
		return "FILTER"
	default:
		return "UNKNOWN"
	}
}

type Clause struct {
	Occur Occur
	Node  Node
}

// BooleanNode combines clauses. MinimumShouldMatch is nil when unset.
type BooleanNode struct {
	Common
	Clauses            []Clause
	MinimumShouldMatch *int
}

func Boolean(clauses ...Clause) *BooleanNode {
	return &BooleanNode{Common: defaultCommon(), Clauses: clauses}
}

func (n *BooleanNode) Kind() Kind { return KindBoolean }

func (n *BooleanNode) Children() []Node {
	out := make([]Node, len(n.Clauses))
	for i, c := range n.Clauses {
		out[i] = c.Node
	}
	return out
}

func (n *BooleanNode) Validate() error {
	if err := validateCommon(n.Common); err != nil {
		return err
	}
	if len(n.Clauses) == 0 {
		return shapeError("boolean query requires at least one clause")
	}
	for i, c := range n.Clauses {
		if c.Occur < Must || c.Occur > Filter {
			return shapeError("clause %d has unknown occur %d", i, c.Occur)
		}
		if c.Node == nil {
			return shapeError("clause %d has no query", i)
		}
	}
	if n.MinimumShouldMatch != nil && *n.MinimumShouldMatch < 0 {
		return shapeError("minimum_should_match must be non-negative, got %d", *n.MinimumShouldMatch)
	}
	return nil
}

// MatchAllNode matches every document with a constant score of boost.
type MatchAllNode struct {
	Common
}

func MatchAll() *MatchAllNode { return &MatchAllNode{Common: defaultCommon()} }

func (n *MatchAllNode) Kind() Kind       { return KindMatchAll }
func (n *MatchAllNode) Children() []Node { return nil }
func (n *MatchAllNode) Validate() error  { return validateCommon(n.Common) }

// ConstantScoreNode scores every document matched by Filter with boost.
type ConstantScoreNode struct {
	Common
	Filter Node
}

func ConstantScore(filter Node) *ConstantScoreNode {
	return &ConstantScoreNode{Common: defaultCommon(), Filter: filter}
}

func (n *ConstantScoreNode) Kind() Kind       { return KindConstantScore }
func (n *ConstantScoreNode) Children() []Node { return []Node{n.Filter} }

func (n *ConstantScoreNode) Validate() error {
	if err := validateCommon(n.Common); err != nil {
		return err
	}
	if n.Filter == nil {
		return shapeError("constant_score requires a filter")
	}
	return nil
}

// DisMaxNode scores a document by its best matching sub-query plus
// TieBreaker times the other matching sub-queries.
type DisMaxNode struct {
	Common
	Queries    []Node
	TieBreaker float64
}

func DisMax(queries ...Node) *DisMaxNode {
	return &DisMaxNode{Common: defaultCommon(), Queries: queries}
}

func (n *DisMaxNode) Kind() Kind       { return KindDisMax }
func (n *DisMaxNode) Children() []Node { return n.Queries }

func (n *DisMaxNode) Validate() error {
	if err := validateCommon(n.Common); err != nil {
		return err
	}
	if len(n.Queries) == 0 {
		return shapeError("dis_max requires at least one query")
	}
	for i, q := range n.Queries {
		if q == nil {
			return shapeError("dis_max query %d is missing", i)
		}
	}
	if n.TieBreaker < 0 || n.TieBreaker > 1 {
		return shapeError("tie_breaker must be within [0, 1], got %g", n.TieBreaker)
	}
	return nil
}

// RangeNode matches documents whose doc value for Field falls inside the
// bounds. Unset bounds are nil. All bounds must share the field's kind.
type RangeNode struct {
	Common
	Field string
	GT    *index.Value
	GTE   *index.Value
	LT    *index.Value
	LTE   *index.Value
}

func Range(field string) *RangeNode {
	return &RangeNode{Common: defaultCommon(), Field: field}
}

func (n *RangeNode) Kind() Kind       { return KindRange }
func (n *RangeNode) Children() []Node { return nil }

func (n *RangeNode) Validate() error {
	if err := validateCommon(n.Common); err != nil {
		return err
	}
	if n.Field == "" {
		return shapeError("range query requires a field")
	}
	var kind index.ValueKind
	for _, b := range []*index.Value{n.GT, n.GTE, n.LT, n.LTE} {
		if b == nil {
			continue
		}
		if b.Kind != index.KindNumber && b.Kind != index.KindDate && b.Kind != index.KindKeyword {
			return shapeError("range bounds must be numbers, dates or keywords, got %s", b.Kind)
		}
		if kind != 0 && b.Kind != kind {
			return shapeError("range bounds mix %s and %s", kind, b.Kind)
		}
		kind = b.Kind
	}
	if kind == 0 {
		return shapeError("range query on %q has no bounds", n.Field)
	}
	return nil
}

// Contains reports whether v satisfies every bound of the range.
func (n *RangeNode) Contains(v index.Value) bool {
	check := func(b *index.Value, ok func(c int) bool) bool {
		if b == nil {
			return true
		}
		if v.Kind != b.Kind {
			return false
		}
		return ok(compareValues(v, *b))
	}
	return check(n.GT, func(c int) bool { return c > 0 }) &&
		check(n.GTE, func(c int) bool { return c >= 0 }) &&
		check(n.LT, func(c int) bool { return c < 0 }) &&
		check(n.LTE, func(c int) bool { return c <= 0 })
}

func compareValues(a, b index.Value) int {
	if a.Kind == index.KindKeyword {
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		}
		return 0
	}
	switch {
	case a.Num < b.Num:
		return -1
	case a.Num > b.Num:
		return 1
	}
	return 0
}

// IdsNode matches the documents with the given external IDs.
type IdsNode struct {
	Common
	IDs []string
}

func Ids(ids ...string) *IdsNode {
	return &IdsNode{Common: defaultCommon(), IDs: ids}
}

func (n *IdsNode) Kind() Kind       { return KindIds }
func (n *IdsNode) Children() []Node { return nil }
func (n *IdsNode) Validate() error  { return validateCommon(n.Common) }

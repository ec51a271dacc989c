package query

type SpanOp uint8

const (
	SpanTerm SpanOp = iota + 1
	SpanNear
	SpanOr
	SpanNot
	SpanContaining
	SpanWithin
	SpanFirst
)

func (op SpanOp) String() string {
	switch op {
	case SpanTerm:
		return "span_term"
	case SpanNear:
		return "span_near"
	case SpanOr:
		return "span_or"
	case SpanNot:
		return "span_not"
	case SpanContaining:
		return "span_containing"
	case SpanWithin:
		return "span_within"
	case SpanFirst:
		return "span_first"
	default:
		return "span_unknown"
	}
}

// SpanNode is a positional query. Which fields are meaningful depends on Op:
//
//	TERM        Field, Term
//	NEAR        Clauses, Slop, InOrder
//	OR          Clauses
//	NOT         Include, Exclude, Pre, Post
//	CONTAINING  Big, Little (returns big spans)
//	WITHIN      Big, Little (returns little spans)
//	FIRST       Match, End
//
// Only the boost of the outermost span node affects scoring.
type SpanNode struct {
	Common
	Op      SpanOp
	Field   string
	Term    string
	Clauses []*SpanNode
	Slop    int
	InOrder bool
	Include *SpanNode
	Exclude *SpanNode
	Pre     int
	Post    int
	Big     *SpanNode
	Little  *SpanNode
	Match   *SpanNode
	End     int
}

func SpanTermQuery(field, term string) *SpanNode {
	return &SpanNode{Common: defaultCommon(), Op: SpanTerm, Field: field, Term: term}
}

func SpanNearQuery(slop int, inOrder bool, clauses ...*SpanNode) *SpanNode {
	return &SpanNode{Common: defaultCommon(), Op: SpanNear, Slop: slop, InOrder: inOrder, Clauses: clauses}
}

func SpanOrQuery(clauses ...*SpanNode) *SpanNode {
	return &SpanNode{Common: defaultCommon(), Op: SpanOr, Clauses: clauses}
}

func SpanNotQuery(include, exclude *SpanNode, pre, post int) *SpanNode {
	return &SpanNode{Common: defaultCommon(), Op: SpanNot, Include: include, Exclude: exclude, Pre: pre, Post: post}
}

func SpanContainingQuery(big, little *SpanNode) *SpanNode {
	return &SpanNode{Common: defaultCommon(), Op: SpanContaining, Big: big, Little: little}
}

func SpanWithinQuery(big, little *SpanNode) *SpanNode {
	return &SpanNode{Common: defaultCommon(), Op: SpanWithin, Big: big, Little: little}
}

func SpanFirstQuery(match *SpanNode, end int) *SpanNode {
	return &SpanNode{Common: defaultCommon(), Op: SpanFirst, Match: match, End: end}
}

func (n *SpanNode) Kind() Kind { return KindSpan }

// Subs returns the sub-spans of n in a fixed order. Entries may be nil when
// the node is malformed.
func (n *SpanNode) Subs() []*SpanNode {
	switch n.Op {
	case SpanNear, SpanOr:
		return n.Clauses
	case SpanNot:
		return []*SpanNode{n.Include, n.Exclude}
	case SpanContaining, SpanWithin:
		return []*SpanNode{n.Big, n.Little}
	case SpanFirst:
		return []*SpanNode{n.Match}
	default:
		return nil
	}
}

func (n *SpanNode) Children() []Node {
	subs := n.Subs()
	out := make([]Node, len(subs))
	for i, s := range subs {
		if s != nil {
			out[i] = s
		}
	}
	return out
}

// SpanField returns the field every term under n is drawn from, or "" when
// n is malformed.
func (n *SpanNode) SpanField() string {
	if n.Op == SpanTerm {
		return n.Field
	}
	for _, s := range n.Subs() {
		if s != nil {
			return s.SpanField()
		}
	}
	return ""
}

func (n *SpanNode) Validate() error {
	if err := validateCommon(n.Common); err != nil {
		return err
	}
	switch n.Op {
	case SpanTerm:
		if n.Field == "" {
			return shapeError("span_term requires a field")
		}
		return nil
	case SpanNear:
		if len(n.Clauses) == 0 {
			return shapeError("span_near requires at least one clause")
		}
		if n.Slop < 0 {
			return shapeError("span_near slop must be non-negative, got %d", n.Slop)
		}
	case SpanOr:
		if len(n.Clauses) == 0 {
			return shapeError("span_or requires at least one clause")
		}
	case SpanNot:
		if n.Pre < 0 || n.Post < 0 {
			return shapeError("span_not pre and post must be non-negative, got %d and %d", n.Pre, n.Post)
		}
	case SpanContaining, SpanWithin:
	case SpanFirst:
		if n.End < 0 {
			return shapeError("span_first end must be non-negative, got %d", n.End)
		}
	default:
		return shapeError("unknown span operator %d", n.Op)
	}
	field := ""
	for i, s := range n.Subs() {
		if s == nil {
			return shapeError("%s is missing sub-span %d", n.Op, i)
		}
		f := s.SpanField()
		if f == "" {
			continue
		}
		if field == "" {
			field = f
		} else if f != field {
			return shapeError("%s mixes fields %q and %q", n.Op, field, f)
		}
	}
	return nil
}

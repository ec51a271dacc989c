package query

type ScoreMode uint8

const (
	ScoreNone ScoreMode = iota + 1
	ScoreMin
	ScoreMax
	ScoreSum
	ScoreAvg
)

func (m ScoreMode) String() string {
	switch m {
	case ScoreNone:
		return "none"
	case ScoreMin:
		return "min"
	case ScoreMax:
		return "max"
	case ScoreSum:
		return "sum"
	case ScoreAvg:
		return "avg"
	default:
		return "unknown"
	}
}

// JoinDirection says which side of the relation the join returns.
type JoinDirection uint8

const (
	// ToParent returns parents that have matching children (has_child).
	ToParent JoinDirection = iota + 1
	// ToChild returns children whose parent matches (has_parent).
	ToChild
)

func (d JoinDirection) String() string {
	switch d {
	case ToParent:
		return "has_child"
	case ToChild:
		return "has_parent"
	default:
		return "unknown"
	}
}

// JoinNode relates documents of ParentType and ChildType. Inner is evaluated
// against the opposite side of the relation from the one returned.
// MinChildren and MaxChildren bound the number of matching children a
// parent needs under ToParent; zero means unbounded.
type JoinNode struct {
	Common
	ParentType  string
	ChildType   string
	ScoreMode   ScoreMode
	Direction   JoinDirection
	MinChildren int
	MaxChildren int
	Inner       Node
}

// HasChild returns parents of parentType with at least one child of
// childType matching inner.
func HasChild(parentType, childType string, mode ScoreMode, inner Node) *JoinNode {
	return &JoinNode{
		Common:     defaultCommon(),
		ParentType: parentType,
		ChildType:  childType,
		ScoreMode:  mode,
		Direction:  ToParent,
		Inner:      inner,
	}
}

// HasParent returns children of childType whose parent of parentType
// matches inner.
func HasParent(parentType, childType string, mode ScoreMode, inner Node) *JoinNode {
	return &JoinNode{
		Common:     defaultCommon(),
		ParentType: parentType,
		ChildType:  childType,
		ScoreMode:  mode,
		Direction:  ToChild,
		Inner:      inner,
	}
}

func (n *JoinNode) Kind() Kind       { return KindJoin }
func (n *JoinNode) Children() []Node { return []Node{n.Inner} }

func (n *JoinNode) Validate() error {
	if err := validateCommon(n.Common); err != nil {
		return err
	}
	if n.Inner == nil {
		return shapeError("join requires an inner query")
	}
	if n.ScoreMode < ScoreNone || n.ScoreMode > ScoreAvg {
		return shapeError("unknown join score mode %d", n.ScoreMode)
	}
	if n.Direction != ToParent && n.Direction != ToChild {
		return shapeError("unknown join direction %d", n.Direction)
	}
	if n.MinChildren < 0 || n.MaxChildren < 0 {
		return shapeError("min_children and max_children must be non-negative")
	}
	if n.MaxChildren > 0 && n.MinChildren > n.MaxChildren {
		return shapeError("min_children %d exceeds max_children %d", n.MinChildren, n.MaxChildren)
	}
	return nil
}

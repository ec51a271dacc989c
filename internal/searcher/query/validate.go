package query

import (
	"context"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

func shapeError(format string, args ...any) error {
	return apperrors.NewQueryError(apperrors.ErrQueryShape, format, args...)
}

func functionError(format string, args ...any) error {
	return apperrors.NewQueryError(apperrors.ErrScoreFunctionConfig, format, args...)
}

func validateCommon(c Common) error {
	if math.IsNaN(c.Boost) || math.IsInf(c.Boost, 0) || c.Boost < 0 {
		return shapeError("boost must be a non-negative number, got %g", c.Boost)
	}
	return nil
}

// Visitor is called for every node during Walk, parents before children.
// Returning an error stops the walk.
type Visitor func(n Node, path []int) error

// Walk visits the tree rooted at root in pre-order. It fails with a query
// shape error when a child is missing or the tree contains a cycle. Errors
// returned by visit are annotated with the path of the node being visited.
func Walk(root Node, visit Visitor) error {
	if root == nil {
		return apperrors.WithPath(shapeError("query is empty"), []int{})
	}
	onPath := make(map[Node]bool)
	var walk func(n Node, path []int) error
	walk = func(n Node, path []int) error {
		if onPath[n] {
			return apperrors.WithPath(shapeError("query tree contains a cycle"), path)
		}
		if err := visit(n, path); err != nil {
			return apperrors.WithPath(err, path)
		}
		onPath[n] = true
		defer delete(onPath, n)
		for i, child := range n.Children() {
			childPath := append(path[:len(path):len(path)], i)
			if child == nil {
				return apperrors.WithPath(shapeError("%s child %d is missing", n.Kind(), i), childPath)
			}
			if err := walk(child, childPath); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root, []int{})
}

// Validate checks every node of the tree. Extra checks, such as resolving
// join types against a relation registry, run after each node's own
// Validate.
func Validate(root Node, extra ...Visitor) error {
	return Walk(root, func(n Node, path []int) error {
		if err := n.Validate(); err != nil {
			return err
		}
		for _, v := range extra {
			if err := v(n, path); err != nil {
				return err
			}
		}
		return nil
	})
}

const checkInterval = 1024

// Deadline polls a context at a fixed interval inside tight loops.
type Deadline struct {
	ctx   context.Context
	count int
}

func NewDeadline(ctx context.Context) *Deadline {
	return &Deadline{ctx: ctx}
}

// Check returns CheckContext's error once the context is done. It only
// consults the context every checkInterval calls.
func (d *Deadline) Check() error {
	d.count++
	if d.count%checkInterval != 0 {
		return nil
	}
	return CheckContext(d.ctx)
}

// CheckContext returns a query timeout error if ctx's deadline passed, or a
// query canceled error if ctx was cancelled.
func CheckContext(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	kind, _ := apperrors.ContextKind(err)
	if kind == apperrors.ErrQueryCanceled {
		return apperrors.WrapQueryError(kind, err, "query canceled")
	}
	return apperrors.WrapQueryError(kind, err, "deadline exceeded")
}

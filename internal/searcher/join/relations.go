// Package join evaluates parent/child queries between document types.
package join

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

// Relation declares that documents of type Child point at a parent of type
// Parent. Name is the relation stored on child documents.
type Relation struct {
	Name   string `yaml:"name" json:"name"`
	Parent string `yaml:"parent" json:"parent"`
	Child  string `yaml:"child" json:"child"`
}

// Relations is an immutable registry of document-type relations. It is
// built once and shared by reference.
type Relations struct {
	byPair   map[[2]string]Relation
	parentOf map[string][]string
	types    map[string]struct{}
	// cyclic holds the types that are their own ancestor.
	cyclic map[string]bool
}

func NewRelations(rels ...Relation) (*Relations, error) {
	r := &Relations{
		byPair:   make(map[[2]string]Relation, len(rels)),
		parentOf: make(map[string][]string),
		types:    make(map[string]struct{}),
	}
	for _, rel := range rels {
		if rel.Name == "" || rel.Parent == "" || rel.Child == "" {
			return nil, fmt.Errorf("relation %+v must name itself, a parent and a child", rel)
		}
		key := [2]string{rel.Parent, rel.Child}
		if existing, dup := r.byPair[key]; dup {
			return nil, fmt.Errorf("relation %q duplicates %q for %s -> %s", rel.Name, existing.Name, rel.Parent, rel.Child)
		}
		r.byPair[key] = rel
		r.parentOf[rel.Child] = append(r.parentOf[rel.Child], rel.Parent)
		r.types[rel.Parent] = struct{}{}
		r.types[rel.Child] = struct{}{}
	}
	r.cyclic = make(map[string]bool)
	for t := range r.types {
		if r.isAncestor(t, t) {
			r.cyclic[t] = true
		}
	}
	return r, nil
}

// Cyclic reports whether any type is its own ancestor. relations.Load
// refuses such a graph at startup.
func (r *Relations) Cyclic() bool { return len(r.cyclic) > 0 }

// Empty is a registry with no relations.
func Empty() *Relations {
	r, _ := NewRelations()
	return r
}

// Len returns the number of relations.
func (r *Relations) Len() int { return len(r.byPair) }

// All returns every relation in no particular order.
func (r *Relations) All() []Relation {
	out := make([]Relation, 0, len(r.byPair))
	for _, rel := range r.byPair {
		out = append(out, rel)
	}
	return out
}

// Resolve returns the direct relation from parent to child. It fails with a
// join type error when a type is unknown, the types are not directly
// related, or child or any of its ancestors (parent included) is its own
// ancestor.
func (r *Relations) Resolve(parent, child string) (Relation, error) {
	for _, t := range []string{parent, child} {
		if _, ok := r.types[t]; !ok {
			return Relation{}, apperrors.NewQueryError(apperrors.ErrJoinType, "unknown document type %q", t)
		}
	}
	rel, ok := r.byPair[[2]string{parent, child}]
	if !ok {
		return Relation{}, apperrors.NewQueryError(apperrors.ErrJoinType,
			"no relation with parent %q and child %q", parent, child)
	}
	if t, ok := r.cycleAbove(child); ok {
		return Relation{}, apperrors.NewQueryError(apperrors.ErrJoinType,
			"document type %q is its own ancestor", t)
	}
	return rel, nil
}

// cycleAbove returns the first cyclic type among t and its ancestors.
func (r *Relations) cycleAbove(t string) (string, bool) {
	seen := map[string]bool{t: true}
	stack := []string{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.cyclic[cur] {
			return cur, true
		}
		for _, p := range r.parentOf[cur] {
			if !seen[p] {
				seen[p] = true
				stack = append(stack, p)
			}
		}
	}
	return "", false
}

// isAncestor reports whether target is reachable by following parent links
// upward from t.
func (r *Relations) isAncestor(t, target string) bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), r.parentOf[t]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, r.parentOf[cur]...)
	}
	return false
}

// Package matchset holds the output of evaluating one query node: the set of
// matching documents and a score for each.
package matchset

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

// MatchSet maps matching DocIDs to scores. Iteration is always in ascending
// DocID order. A MatchSet is not safe for concurrent mutation; once built it
// is only read.
type MatchSet struct {
	docs   *roaring.Bitmap
	scores map[index.DocID]float64
}

func New() *MatchSet {
	return &MatchSet{
		docs:   roaring.New(),
		scores: make(map[index.DocID]float64),
	}
}

// FromBitmap returns a MatchSet holding every document in docs with the same
// score. The bitmap is owned by the MatchSet afterwards.
func FromBitmap(docs *roaring.Bitmap, score float64) *MatchSet {
	m := &MatchSet{docs: docs, scores: make(map[index.DocID]float64, docs.GetCardinality())}
	it := docs.Iterator()
	for it.HasNext() {
		m.scores[index.DocID(it.Next())] = score
	}
	return m
}

// Add records doc with score, replacing any earlier score.
func (m *MatchSet) Add(doc index.DocID, score float64) {
	m.docs.Add(uint32(doc))
	m.scores[doc] = score
}

func (m *MatchSet) Contains(doc index.DocID) bool {
	return m.docs.Contains(uint32(doc))
}

// Score returns the score of doc and whether it matched.
func (m *MatchSet) Score(doc index.DocID) (float64, bool) {
	s, ok := m.scores[doc]
	return s, ok
}

func (m *MatchSet) Len() int {
	return int(m.docs.GetCardinality())
}

// Bitmap returns the document set. Callers must not modify it.
func (m *MatchSet) Bitmap() *roaring.Bitmap {
	return m.docs
}

// Each calls fn for every match in ascending DocID order until fn returns
// false.
func (m *MatchSet) Each(fn func(doc index.DocID, score float64) bool) {
	it := m.docs.Iterator()
	for it.HasNext() {
		doc := index.DocID(it.Next())
		if !fn(doc, m.scores[doc]) {
			return
		}
	}
}

// Docs returns the matching DocIDs in ascending order.
func (m *MatchSet) Docs() []index.DocID {
	raw := m.docs.ToArray()
	out := make([]index.DocID, len(raw))
	for i, d := range raw {
		out[i] = index.DocID(d)
	}
	return out
}

// All returns the set of every DocID below maxDoc.
func All(maxDoc index.DocID) *roaring.Bitmap {
	bm := roaring.New()
	if maxDoc > 0 {
		bm.AddRange(0, uint64(maxDoc))
	}
	return bm
}

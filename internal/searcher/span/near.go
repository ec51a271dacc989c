package span

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

// nearSpans matches one span from every clause within slop. The slop of a
// match is the number of positions inside it that no chosen sub-span
// covers; a match is accepted when that count is at most slop.
type nearSpans struct {
	conj    conjunction
	slop    int
	inOrder bool
	spans   []Span
}

func (n *nearSpans) NextDoc() (bool, error) {
	for {
		ok, err := n.conj.nextDoc()
		if err != nil || !ok {
			return false, err
		}
		lists := make([][]Span, len(n.conj.subs))
		for i, s := range n.conj.subs {
			lists[i] = s.Spans()
		}
		doc := n.conj.doc()
		if n.inOrder {
			n.spans = orderedMatches(doc, lists, n.slop)
		} else {
			n.spans = unorderedMatches(doc, lists, n.slop)
		}
		if len(n.spans) > 0 {
			return true, nil
		}
	}
}

func (n *nearSpans) Doc() index.DocID { return n.conj.doc() }
func (n *nearSpans) Spans() []Span    { return n.spans }

// orderedMatches chains sub-spans left to right, each starting after the
// previous one ends. For every candidate first span the chain takes, from
// each later clause, the span with the smallest end.
func orderedMatches(doc index.DocID, lists [][]Span, slop int) []Span {
	var out []Span
	for _, first := range lists[0] {
		end := first.End
		covered := first.width()
		ok := true
		for _, list := range lists[1:] {
			best := -1
			for j, s := range list {
				if s.Start <= end {
					continue
				}
				if best < 0 || s.End < list[best].End || (s.End == list[best].End && s.Start < list[best].Start) {
					best = j
				}
			}
			if best < 0 {
				ok = false
				break
			}
			covered += list[best].width()
			end = list[best].End
		}
		if !ok {
			continue
		}
		if (end-first.Start+1)-covered <= slop {
			out = append(out, Span{Doc: doc, Start: first.Start, End: end})
		}
	}
	return smallestPerEnd(out)
}

// unorderedMatches anchors a match on every span of every clause and picks,
// from each other clause, the span starting at or after the anchor with the
// smallest end. The same span is never used twice within one match.
func unorderedMatches(doc index.DocID, lists [][]Span, slop int) []Span {
	var out []Span
	chosen := make([]Span, 0, len(lists))
	for li, anchors := range lists {
		for _, anchor := range anchors {
			chosen = append(chosen[:0], anchor)
			end := anchor.End
			ok := true
			for lj, list := range lists {
				if lj == li {
					continue
				}
				best := -1
				for j, s := range list {
					if s.Start < anchor.Start || used(chosen, s) {
						continue
					}
					if best < 0 || s.End < list[best].End || (s.End == list[best].End && s.Start < list[best].Start) {
						best = j
					}
				}
				if best < 0 {
					ok = false
					break
				}
				chosen = append(chosen, list[best])
				if list[best].End > end {
					end = list[best].End
				}
			}
			if !ok {
				continue
			}
			if (end-anchor.Start+1)-coveredPositions(chosen) <= slop {
				out = append(out, Span{Doc: doc, Start: anchor.Start, End: end})
			}
		}
	}
	return smallestPerEnd(out)
}

func used(chosen []Span, s Span) bool {
	for _, c := range chosen {
		if c.Start == s.Start && c.End == s.End {
			return true
		}
	}
	return false
}

// coveredPositions counts the distinct positions covered by spans.
func coveredPositions(spans []Span) int {
	sorted := append([]Span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	total := 0
	curStart, curEnd := sorted[0].Start, sorted[0].End
	for _, s := range sorted[1:] {
		if s.Start > curEnd+1 {
			total += curEnd - curStart + 1
			curStart, curEnd = s.Start, s.End
			continue
		}
		if s.End > curEnd {
			curEnd = s.End
		}
	}
	return total + curEnd - curStart + 1
}

// smallestPerEnd keeps, for each end position, only the match with the
// latest start, and returns the result sorted by (Start, End).
func smallestPerEnd(matches []Span) []Span {
	if len(matches) == 0 {
		return nil
	}
	best := make(map[int]Span, len(matches))
	for _, m := range matches {
		if cur, ok := best[m.End]; !ok || m.Start > cur.Start {
			best[m.End] = m
		}
	}
	out := make([]Span, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	return sortUnique(out)
}

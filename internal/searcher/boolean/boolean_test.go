package boolean

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/matchset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

// set builds a MatchSet where every listed doc scores score.
func set(score float64, docs ...index.DocID) *matchset.MatchSet {
	m := matchset.New()
	for _, d := range docs {
		m.Add(d, score)
	}
	return m
}

func leaf() query.Node { return query.MatchAll() }

func clauses(occurs ...query.Occur) []query.Clause {
	out := make([]query.Clause, len(occurs))
	for i, o := range occurs {
		out[i] = query.Clause{Occur: o, Node: leaf()}
	}
	return out
}

func intPtr(v int) *int { return &v }

func TestCombine(t *testing.T) {
	tests := []struct {
		name    string
		occurs  []query.Occur
		msm     *int
		results []*matchset.MatchSet
		want    map[index.DocID]float64
	}{
		{
			name:    "must intersects and sums",
			occurs:  []query.Occur{query.Must, query.Must},
			results: []*matchset.MatchSet{set(1, 1, 2, 3), set(2, 2, 3, 4)},
			want:    map[index.DocID]float64{2: 3, 3: 3},
		},
		{
			name:    "filter restricts without scoring",
			occurs:  []query.Occur{query.Must, query.Filter},
			results: []*matchset.MatchSet{set(1, 1, 2), set(5, 2)},
			want:    map[index.DocID]float64{2: 1},
		},
		{
			name:    "should optional next to must",
			occurs:  []query.Occur{query.Must, query.Should},
			results: []*matchset.MatchSet{set(1, 1, 2), set(2, 2, 7)},
			want:    map[index.DocID]float64{1: 1, 2: 3},
		},
		{
			name:    "should only defaults to one",
			occurs:  []query.Occur{query.Should, query.Should},
			results: []*matchset.MatchSet{set(1, 1), set(1, 2)},
			want:    map[index.DocID]float64{1: 1, 2: 1},
		},
		{
			name:    "should only with minimum two",
			occurs:  []query.Occur{query.Should, query.Should, query.Should},
			msm:     intPtr(2),
			results: []*matchset.MatchSet{set(1, 1, 2), set(1, 2, 3), set(1, 3)},
			want:    map[index.DocID]float64{2: 2, 3: 2},
		},
		{
			name:    "minimum above clause count matches nothing",
			occurs:  []query.Occur{query.Should},
			msm:     intPtr(2),
			results: []*matchset.MatchSet{set(1, 1)},
			want:    map[index.DocID]float64{},
		},
		{
			name:    "must not subtracts",
			occurs:  []query.Occur{query.Should, query.MustNot},
			results: []*matchset.MatchSet{set(1, 1, 2, 3), set(9, 2)},
			want:    map[index.DocID]float64{1: 1, 3: 1},
		},
		{
			name:    "pure negative matches the rest with zero",
			occurs:  []query.Occur{query.MustNot},
			results: []*matchset.MatchSet{set(1, 0, 2)},
			want:    map[index.DocID]float64{1: 0, 3: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := query.Boolean(clauses(tt.occurs...)...)
			node.MinimumShouldMatch = tt.msm
			got, err := Combine(node, tt.results, 4)
			if err != nil {
				t.Fatalf("Combine: %v", err)
			}
			scores := make(map[index.DocID]float64)
			got.Each(func(doc index.DocID, s float64) bool {
				scores[doc] = s
				return true
			})
			if !reflect.DeepEqual(scores, tt.want) {
				t.Errorf("got %v, want %v", scores, tt.want)
			}
		})
	}
}

func TestBoostScalesSum(t *testing.T) {
	node := query.Boolean(clauses(query.Must, query.Should)...)
	node.Boost = 2
	got, err := Combine(node, []*matchset.MatchSet{set(1.5, 4), set(1, 4)}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := got.Score(4); s != 5 {
		t.Errorf("score = %v, want 5", s)
	}
}

func TestInputsUntouched(t *testing.T) {
	must := set(1, 1, 2)
	node := query.Boolean(clauses(query.Must, query.MustNot)...)
	if _, err := Combine(node, []*matchset.MatchSet{must, set(1, 2)}, 3); err != nil {
		t.Fatal(err)
	}
	if must.Len() != 2 {
		t.Errorf("input set was modified: %v", must.Docs())
	}
}

func TestNoClauses(t *testing.T) {
	_, err := Combine(query.Boolean(), nil, 3)
	if !errors.Is(err, apperrors.ErrQueryShape) {
		t.Errorf("err = %v, want query shape error", err)
	}
}

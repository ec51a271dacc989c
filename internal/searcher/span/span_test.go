package span

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/searchtest"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
)

func matcher(t *testing.T) *term.Matcher {
	idx := searchtest.Index(t,
		searchtest.Text("d0", "body", "quick brown fox"),
		searchtest.Text("d1", "body", "quick fox"),
		searchtest.Text("d2", "body", "fox quick"),
		searchtest.Text("d3", "body", "brown dog"),
		index.Document{ID: "d4", Keywords: map[string]string{"tag": "fox"}},
	)
	return term.NewMatcher(idx, nil)
}

func tq(term string) *query.SpanNode { return query.SpanTermQuery("body", term) }

func docs(t *testing.T, m *term.Matcher, node *query.SpanNode) []index.DocID {
	t.Helper()
	got, err := Evaluate(context.Background(), m, node)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return got.Docs()
}

func collectSpans(t *testing.T, m *term.Matcher, node *query.SpanNode) map[index.DocID][]Span {
	t.Helper()
	s, err := Build(context.Background(), m, node)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out := make(map[index.DocID][]Span)
	for {
		ok, err := s.NextDoc()
		if err != nil {
			t.Fatalf("NextDoc: %v", err)
		}
		if !ok {
			return out
		}
		out[s.Doc()] = append([]Span(nil), s.Spans()...)
	}
}

func TestNearSlopBoundary(t *testing.T) {
	m := matcher(t)
	tests := []struct {
		slop int
		want []index.DocID
	}{
		{0, []index.DocID{1}},
		{1, []index.DocID{0, 1}},
	}
	for _, tt := range tests {
		got := docs(t, m, query.SpanNearQuery(tt.slop, true, tq("quick"), tq("fox")))
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("slop=%d matched %v, want %v", tt.slop, got, tt.want)
		}
	}
	spans := collectSpans(t, m, query.SpanNearQuery(1, true, tq("quick"), tq("fox")))
	if want := []Span{{Doc: 0, Start: 0, End: 2}}; !reflect.DeepEqual(spans[0], want) {
		t.Errorf("spans in d0 = %v, want %v", spans[0], want)
	}
}

func TestNearOrder(t *testing.T) {
	m := matcher(t)
	inOrder := docs(t, m, query.SpanNearQuery(0, true, tq("quick"), tq("fox")))
	if !reflect.DeepEqual(inOrder, []index.DocID{1}) {
		t.Errorf("in order matched %v, want [1]", inOrder)
	}
	unordered := docs(t, m, query.SpanNearQuery(0, false, tq("quick"), tq("fox")))
	if !reflect.DeepEqual(unordered, []index.DocID{1, 2}) {
		t.Errorf("unordered matched %v, want [1 2]", unordered)
	}
}

func TestNearSameTermTwice(t *testing.T) {
	idx := searchtest.Index(t,
		searchtest.Text("a", "body", "fox"),
		searchtest.Text("b", "body", "fox and fox"),
	)
	m := term.NewMatcher(idx, nil)
	got := docs(t, m, query.SpanNearQuery(1, false, tq("fox"), tq("fox")))
	if !reflect.DeepEqual(got, []index.DocID{1}) {
		t.Errorf("matched %v, want [1]", got)
	}
}

func TestOr(t *testing.T) {
	m := matcher(t)
	spans := collectSpans(t, m, query.SpanOrQuery(tq("quick"), tq("fox"), tq("fox")))
	if len(spans) != 3 {
		t.Fatalf("matched %d docs, want 3", len(spans))
	}
	want := []Span{{Doc: 2, Start: 0, End: 0}, {Doc: 2, Start: 1, End: 1}}
	if !reflect.DeepEqual(spans[2], want) {
		t.Errorf("spans in d2 = %v, want %v", spans[2], want)
	}
}

func TestNot(t *testing.T) {
	m := matcher(t)
	tests := []struct {
		name      string
		pre, post int
		want      []index.DocID
	}{
		{"no window", 0, 0, []index.DocID{0, 1, 2}},
		{"pre reaches quick before fox", 1, 0, []index.DocID{0, 2}},
		{"post reaches quick after fox", 0, 1, []index.DocID{0, 1}},
		{"both", 2, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := docs(t, m, query.SpanNotQuery(tq("fox"), tq("quick"), tt.pre, tt.post))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("matched %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainingAndWithin(t *testing.T) {
	m := matcher(t)
	big := query.SpanNearQuery(1, true, tq("quick"), tq("fox"))

	containing := collectSpans(t, m, query.SpanContainingQuery(big, tq("brown")))
	if want := map[index.DocID][]Span{0: {{Doc: 0, Start: 0, End: 2}}}; !reflect.DeepEqual(containing, want) {
		t.Errorf("containing = %v, want %v", containing, want)
	}
	within := collectSpans(t, m, query.SpanWithinQuery(big, tq("brown")))
	if want := map[index.DocID][]Span{0: {{Doc: 0, Start: 1, End: 1}}}; !reflect.DeepEqual(within, want) {
		t.Errorf("within = %v, want %v", within, want)
	}
}

func TestFirst(t *testing.T) {
	m := matcher(t)
	got := docs(t, m, query.SpanFirstQuery(tq("fox"), 2))
	if !reflect.DeepEqual(got, []index.DocID{1, 2}) {
		t.Errorf("matched %v, want [1 2]", got)
	}
}

func TestScore(t *testing.T) {
	m := matcher(t)
	node := query.SpanNearQuery(1, true, tq("quick"), tq("fox"))
	node.Boost = 3
	got, err := Evaluate(context.Background(), m, node)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := got.Score(0); math.Abs(s-1) > 1e-9 {
		t.Errorf("score(d0) = %v, want 3 × 1/3", s)
	}
	if s, _ := got.Score(1); math.Abs(s-1.5) > 1e-9 {
		t.Errorf("score(d1) = %v, want 3 × 1/2", s)
	}
}

func TestFieldWithoutPositions(t *testing.T) {
	m := matcher(t)
	_, err := Evaluate(context.Background(), m, query.SpanTermQuery("tag", "fox"))
	if !errors.Is(err, apperrors.ErrIndexAccess) {
		t.Errorf("err = %v, want index access error", err)
	}
}

func TestCancelled(t *testing.T) {
	m := matcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Evaluate(ctx, m, tq("fox"))
	if !errors.Is(err, apperrors.ErrQueryCanceled) {
		t.Errorf("err = %v, want query canceled", err)
	}
}

package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/function"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/join"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
)

var benchWords = []string{"quick", "brown", "fox", "lazy", "dog", "river", "bank", "search", "engine", "span"}

// benchCorpus holds n/5 questions, each followed by four answers.
func benchCorpus(b *testing.B, n int) (*index.MemoryIndex, *join.Relations) {
	b.Helper()
	idx := index.NewMemoryIndex()
	var parent string
	for i := 0; i < n; i++ {
		body := ""
		for j := 0; j < 12; j++ {
			if j > 0 {
				body += " "
			}
			body += benchWords[(i*7+j*3)%len(benchWords)]
		}
		d := index.Document{
			ID:       fmt.Sprintf("d%d", i),
			Text:     map[string]string{"body": body},
			Keywords: map[string]string{"status": []string{"open", "closed"}[i%2]},
			Numbers:  map[string]float64{"votes": float64(i % 100)},
		}
		if i%5 == 0 {
			d.Type = "question"
			parent = d.ID
		} else {
			d.Type, d.Relation, d.Parent = "answer", "answers", parent
		}
		if _, err := idx.AddDocument(d); err != nil {
			b.Fatal(err)
		}
	}
	rels, err := join.NewRelations(join.Relation{Name: "answers", Parent: "question", Child: "answer"})
	if err != nil {
		b.Fatal(err)
	}
	return idx, rels
}

func BenchmarkExecute(b *testing.B) {
	idx, rels := benchCorpus(b, 10000)
	missing := 1.0

	queries := []struct {
		name string
		node query.Node
	}{
		{"term", query.Term("body", "fox")},
		{"bool", query.Boolean(
			query.Clause{Occur: query.Must, Node: query.Term("body", "quick")},
			query.Clause{Occur: query.Should, Node: query.Term("body", "dog")},
			query.Clause{Occur: query.Should, Node: query.Term("body", "river")},
			query.Clause{Occur: query.MustNot, Node: query.Term("status", "closed")},
		)},
		{"span_near", query.SpanNearQuery(2, true,
			query.SpanTermQuery("body", "quick"),
			query.SpanTermQuery("body", "fox"),
		)},
		{"function_score", query.FunctionScore(query.Term("body", "search"), query.CombineMultiply,
			query.WeightedFunction{Weight: 1, Function: function.FieldValueFactor{
				Field: "votes", Factor: 1, Modifier: function.ModifierLog1p, Missing: &missing,
			}},
		)},
		{"has_child", query.HasChild("question", "answer", query.ScoreMax, query.Term("body", "engine"))},
	}

	for _, parallelism := range []int{1, 4} {
		e := New(idx, Options{Relations: rels, MaxParallelism: parallelism})
		for _, q := range queries {
			b.Run(fmt.Sprintf("%s/parallelism_%d", q.name, parallelism), func(b *testing.B) {
				ctx := context.Background()
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := e.Execute(ctx, q.node, 10); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkExecuteConcurrent(b *testing.B) {
	idx, rels := benchCorpus(b, 10000)
	e := New(idx, Options{Relations: rels, MaxParallelism: 2})
	node := query.Boolean(
		query.Clause{Occur: query.Should, Node: query.Term("body", "lazy")},
		query.Clause{Occur: query.Should, Node: query.Term("body", "bank")},
	)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := e.Execute(ctx, node, 10); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

package index

import (
	"context"
	"fmt"
	"testing"
)

func benchDoc(i int) Document {
	return Document{
		ID:       fmt.Sprintf("doc-%d", i),
		Type:     "question",
		Text:     map[string]string{"body": "search engine with positional postings and span queries over a memory index"},
		Keywords: map[string]string{"status": "open"},
		Numbers:  map[string]float64{"votes": float64(i % 50)},
	}
}

func benchIndex(b *testing.B, n int) *MemoryIndex {
	b.Helper()
	m := NewMemoryIndex()
	for i := 0; i < n; i++ {
		if _, err := m.AddDocument(benchDoc(i)); err != nil {
			b.Fatal(err)
		}
	}
	return m
}

func BenchmarkAddDocument(b *testing.B) {
	m := NewMemoryIndex()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.AddDocument(benchDoc(i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPostings(b *testing.B) {
	m := benchIndex(b, 10000)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it, err := m.Postings(ctx, "body", "search")
		if err != nil {
			b.Fatal(err)
		}
		for it.Next() {
		}
	}
}

func BenchmarkPostingsParallel(b *testing.B) {
	m := benchIndex(b, 10000)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			it, err := m.Postings(ctx, "body", "search")
			if err != nil {
				b.Error(err)
				return
			}
			for it.Next() {
			}
		}
	})
}

func BenchmarkSnapshot(b *testing.B) {
	m := benchIndex(b, 5000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}

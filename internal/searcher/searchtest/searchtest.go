// Package searchtest builds small indexes for searcher package tests.
package searchtest

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

// ErrBroken is returned by BrokenReader.
var ErrBroken = errors.New("segment unreadable")

// Index builds a MemoryIndex holding docs in order, so the i-th document
// gets DocID i.
func Index(tb testing.TB, docs ...index.Document) *index.MemoryIndex {
	tb.Helper()
	idx := index.NewMemoryIndex()
	for _, d := range docs {
		if _, err := idx.AddDocument(d); err != nil {
			tb.Fatalf("indexing %s: %v", d.ID, err)
		}
	}
	return idx
}

// Text returns a document with a single text field.
func Text(id, field, text string) index.Document {
	return index.Document{ID: id, Text: map[string]string{field: text}}
}

// BrokenReader fails every postings read.
type BrokenReader struct {
	index.Reader
}

func (BrokenReader) Postings(context.Context, string, string) (index.PostingIterator, error) {
	return nil, ErrBroken
}

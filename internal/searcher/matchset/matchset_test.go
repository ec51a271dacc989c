package matchset

import (
	"reflect"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

func TestIterationIsAscending(t *testing.T) {
	m := New()
	m.Add(9, 1)
	m.Add(2, 5)
	m.Add(4, 3)

	var got []index.DocID
	m.Each(func(doc index.DocID, _ float64) bool {
		got = append(got, doc)
		return true
	})
	want := []index.DocID{2, 4, 9}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Each order = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(m.Docs(), want) {
		t.Errorf("Docs = %v, want %v", m.Docs(), want)
	}
	if s, ok := m.Score(2); !ok || s != 5 {
		t.Errorf("Score(2) = %v %v", s, ok)
	}
	if _, ok := m.Score(3); ok {
		t.Error("Score(3) should be absent")
	}
}

func TestEachStopsEarly(t *testing.T) {
	m := New()
	for i := index.DocID(0); i < 10; i++ {
		m.Add(i, 1)
	}
	n := 0
	m.Each(func(index.DocID, float64) bool {
		n++
		return n < 3
	})
	if n != 3 {
		t.Errorf("visited %d docs, want 3", n)
	}
}

func TestFromBitmapAndAll(t *testing.T) {
	all := All(4)
	if all.GetCardinality() != 4 || !all.Contains(3) || all.Contains(4) {
		t.Fatalf("All(4) = %v", all.ToArray())
	}
	if All(0).GetCardinality() != 0 {
		t.Error("All(0) should be empty")
	}
	m := FromBitmap(roaring.BitmapOf(1, 3), 2.5)
	if m.Len() != 2 || !m.Contains(3) {
		t.Fatalf("unexpected set %v", m.Docs())
	}
	if s, _ := m.Score(1); s != 2.5 {
		t.Errorf("Score(1) = %v, want 2.5", s)
	}
}

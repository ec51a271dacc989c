package ranker

import (
	"math"
	"testing"
)

func TestTF(t *testing.T) {
	tests := []struct {
		freq int
		want float64
	}{
		{0, 0},
		{1, 1},
		{4, 2},
	}
	for _, tt := range tests {
		if got := (TF{}).Score(TermStats{}, tt.freq, 10); got != tt.want {
			t.Errorf("TF(%d) = %v, want %v", tt.freq, got, tt.want)
		}
	}
}

func TestBM25(t *testing.T) {
	stats := TermStats{TotalDocs: 100, DocFreq: 10, AvgDocLength: 20}
	sim := BM25{}

	base := sim.Score(stats, 1, 20)
	if base <= 0 {
		t.Fatalf("expected positive score, got %v", base)
	}
	if more := sim.Score(stats, 3, 20); more <= base {
		t.Errorf("higher tf should score higher: %v <= %v", more, base)
	}
	if longer := sim.Score(stats, 1, 60); longer >= base {
		t.Errorf("longer doc should score lower: %v >= %v", longer, base)
	}
	rare := sim.Score(TermStats{TotalDocs: 100, DocFreq: 1, AvgDocLength: 20}, 1, 20)
	if rare <= base {
		t.Errorf("rarer term should score higher: %v <= %v", rare, base)
	}
	if got := sim.Score(TermStats{TotalDocs: 1, DocFreq: 1}, 1, 5); got != 0 {
		t.Errorf("zero average length should give 0, got %v", got)
	}
}

func TestIDFNonNegative(t *testing.T) {
	if idf := computeIDF(10, 10); idf < 0 || math.IsNaN(idf) {
		t.Errorf("idf for a term in every doc = %v", idf)
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", "tf", "bm25"} {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
	if _, err := New("dfr"); err == nil {
		t.Error("expected error for unknown similarity")
	}
}

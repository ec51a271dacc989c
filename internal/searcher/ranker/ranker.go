// Package ranker scores a single term occurrence in a document. The term
// matcher multiplies the similarity by the node boost.
package ranker

import (
	"fmt"
	"math"
)

const (
	k1 = 1.2
	b  = 0.75
)

// TermStats are the collection statistics a similarity may use.
type TermStats struct {
	TotalDocs    int64
	DocFreq      int64
	AvgDocLength float64
}

// Similarity turns a term frequency into a score.
type Similarity interface {
	Name() string
	Score(stats TermStats, termFreq int, docLength int) float64
}

// TF scores sqrt(termFreq): a document with one occurrence scores 1.
type TF struct{}

func (TF) Name() string { return "tf" }

func (TF) Score(_ TermStats, termFreq int, _ int) float64 {
	if termFreq <= 0 {
		return 0
	}
	return math.Sqrt(float64(termFreq))
}

// BM25 is Okapi BM25 with k1=1.2 and b=0.75.
type BM25 struct{}

func (BM25) Name() string { return "bm25" }

func (BM25) Score(stats TermStats, termFreq int, docLength int) float64 {
	idf := computeIDF(stats.TotalDocs, stats.DocFreq)
	return idf * computeTFNorm(float64(termFreq), float64(docLength), stats.AvgDocLength)
}

// New returns the similarity registered under name.
func New(name string) (Similarity, error) {
	switch name {
	case "", "tf":
		return TF{}, nil
	case "bm25":
		return BM25{}, nil
	default:
		return nil, fmt.Errorf("unknown similarity %q", name)
	}
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// Package merger keeps the best N hits seen so far.
package merger

import (
	"container/heap"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

type Hit struct {
	Doc   index.DocID
	Score float64
}

// Better reports whether a ranks ahead of b: higher score first, smaller
// DocID on ties.
func Better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Doc < b.Doc
}

// Collector is a bounded min-heap of hits shared by concurrent producers.
type Collector struct {
	mu    sync.Mutex
	h     hitHeap
	limit int
	seen  int
}

func NewCollector(limit int) *Collector {
	if limit <= 0 {
		limit = 10
	}
	return &Collector{h: make(hitHeap, 0, limit), limit: limit}
}

// Offer adds a batch of hits under a single lock acquisition.
func (c *Collector) Offer(hits ...Hit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, hit := range hits {
		c.seen++
		if c.h.Len() < c.limit {
			heap.Push(&c.h, hit)
			continue
		}
		if Better(hit, c.h[0]) {
			c.h[0] = hit
			heap.Fix(&c.h, 0)
		}
	}
}

// Seen returns how many hits were offered.
func (c *Collector) Seen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen
}

// Results returns the retained hits best first. The collector is left
// intact.
func (c *Collector) Results() []Hit {
	c.mu.Lock()
	cp := make(hitHeap, len(c.h))
	copy(cp, c.h)
	c.mu.Unlock()

	result := make([]Hit, len(cp))
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&cp).(Hit)
	}
	return result
}

// hitHeap has the worst hit at the root.
type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }

func (h hitHeap) Less(i, j int) bool { return Better(h[j], h[i]) }

func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x interface{}) {
	*h = append(*h, x.(Hit))
}

func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

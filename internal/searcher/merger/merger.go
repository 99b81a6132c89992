// Package merger combines sorted document lists. Merge performs a k-way
// union of posting lists with a heap keyed on each list's head document;
// TopK selects the best ranked documents without sorting the full set.
package merger

import (
	"container/heap"

	"github.com/mrtazz/admiral/internal/indexer/index"
	"github.com/mrtazz/admiral/internal/searcher/ranker"
)

// Merge returns the ascending, de-duplicated union of the DocIDs of lists.
// Each list must already be sorted ascending.
func Merge(lists []index.PostingList) []int {
	h := make(cursorHeap, 0, len(lists))
	total := 0
	for _, pl := range lists {
		if len(pl) > 0 {
			h = append(h, &cursor{list: pl})
			total += len(pl)
		}
	}
	heap.Init(&h)

	result := make([]int, 0, total)
	for h.Len() > 0 {
		c := h[0]
		docID := c.head()
		if n := len(result); n == 0 || result[n-1] != docID {
			result = append(result, docID)
		}
		c.pos++
		if c.pos == len(c.list) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return result
}

type cursor struct {
	list index.PostingList
	pos  int
}

func (c *cursor) head() int { return c.list[c.pos].DocID }

type cursorHeap []*cursor

func (h cursorHeap) Len() int           { return len(h) }
func (h cursorHeap) Less(i, j int) bool { return h[i].head() < h[j].head() }
func (h cursorHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) {
	*h = append(*h, x.(*cursor))
}

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK returns the k best documents of docs in ranker order. k <= 0 keeps
// every document.
func TopK(docs []ranker.ScoredDoc, k int) []ranker.ScoredDoc {
	if k <= 0 || k >= len(docs) {
		out := append([]ranker.ScoredDoc(nil), docs...)
		ranker.Sort(out)
		if out == nil {
			out = []ranker.ScoredDoc{}
		}
		return out
	}
	h := make(scoredDocHeap, 0, k+1)
	for _, doc := range docs {
		heap.Push(&h, doc)
		if h.Len() > k {
			heap.Pop(&h)
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap on ranker order: the root is the worst kept doc.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int           { return len(h) }
func (h scoredDocHeap) Less(i, j int) bool { return ranker.Less(h[j], h[i]) }
func (h scoredDocHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

package executor

import (
	"time"

	"github.com/mrtazz/admiral/internal/indexer/index"
)

// UniquePair is two distinct terms that occur together in exactly one
// document.
type UniquePair struct {
	First  string `json:"first"`
	Second string `json:"second"`
	DocID  int    `json:"doc_id"`
}

// UniquePairs returns the term pairs whose intersection is a single
// document. Pairs are unordered, First sorts before Second, and the result is
// ordered by First then Second. limit <= 0 returns every pair.
//
// Every pair of the vocabulary is visited, so this is meant for offline
// inspection rather than request paths.
func (e *Engine) UniquePairs(limit int) []UniquePair {
	start := time.Now()
	terms := e.idx.Terms()
	lists := make([]index.PostingList, len(terms))
	for i, term := range terms {
		lists[i], _ = e.idx.Lookup(term)
	}

	result := make([]UniquePair, 0)
	var buf []int
	for i := range terms {
		first := lists[i].DocIDs()
		for j := i + 1; j < len(terms); j++ {
			buf = intersectSorted(append(buf[:0], first...), lists[j])
			if len(buf) != 1 {
				continue
			}
			result = append(result, UniquePair{First: terms[i], Second: terms[j], DocID: buf[0]})
			if limit > 0 && len(result) == limit {
				e.observe("unique_pairs", start, len(result), nil)
				return result
			}
		}
	}
	e.observe("unique_pairs", start, len(result), nil)
	return result
}

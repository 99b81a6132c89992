// Package ranker scores documents for and-ish retrieval: a document's score
// is the sum of the tf-idf weights of its postings across the query terms.
package ranker

import (
	"sort"

	"github.com/mrtazz/admiral/internal/indexer/index"
)

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

// Score accumulates weights over lists and returns the documents sorted by
// Less. A list given twice contributes twice.
func Score(lists []index.PostingList) []ScoredDoc {
	result := Accumulate(lists)
	Sort(result)
	return result
}

// Accumulate is Score without the final sort.
func Accumulate(lists []index.PostingList) []ScoredDoc {
	scores := make(map[int]float64)
	for _, pl := range lists {
		for _, p := range pl {
			scores[p.DocID] += p.Weight
		}
	}
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	return result
}

// Less orders by descending score, then ascending DocID.
func Less(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

func Sort(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		return Less(docs[i], docs[j])
	})
}

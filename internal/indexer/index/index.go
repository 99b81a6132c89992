// Package index holds the inverted index data model: postings, per-term
// posting lists, the document registry, and the immutable Index that ties
// them together. An Index is produced once by the builder (or by loading a
// persisted one) and is read-only from then on, so it can be shared by any
// number of concurrent readers without locking.
package index

import (
	"fmt"
	"iter"
	"math"
	"sort"

	"github.com/mrtazz/admiral/internal/indexer/tokenizer"
)

// weightTolerance bounds the drift accepted by Validate between a stored
// weight and the recomputed tf-idf value.
const weightTolerance = 1e-9

// Weight is the tf-idf weight of a term occurring tf times in a document,
// given the term's document frequency df and the corpus size n.
func Weight(tf, df, n int) float64 {
	return float64(tf) * math.Log10(float64(n)/float64(df))
}

// Index is the immutable composite of posting store, registry and corpus size.
type Index struct {
	postings map[string]PostingList
	terms    []string
	registry *Registry
}

// New assembles an Index. The caller hands over ownership of postings and
// registry and must not modify them afterwards.
func New(postings map[string]PostingList, registry *Registry) *Index {
	terms := make([]string, 0, len(postings))
	for term := range postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return &Index{
		postings: postings,
		terms:    terms,
		registry: registry,
	}
}

// Lookup returns the posting list of term, matched case-insensitively. The
// returned list is shared and must not be modified.
func (idx *Index) Lookup(term string) (PostingList, bool) {
	pl, ok := idx.postings[tokenizer.Normalize(term)]
	return pl, ok
}

// Terms returns every indexed term in ascending order. The slice is shared
// and must not be modified.
func (idx *Index) Terms() []string {
	return idx.terms
}

// DocCount is the total number of documents, N.
func (idx *Index) DocCount() int {
	return idx.registry.Len()
}

func (idx *Index) TermCount() int {
	return len(idx.terms)
}

// PostingCount is the total number of postings across all terms.
func (idx *Index) PostingCount() int {
	total := 0
	for _, pl := range idx.postings {
		total += len(pl)
	}
	return total
}

func (idx *Index) FileName(docID int) (string, bool) {
	return idx.registry.FileName(docID)
}

// Documents yields (docID, fileName) in ascending id order.
func (idx *Index) Documents() iter.Seq2[int, string] {
	return idx.registry.All()
}

// Entries returns the posting lists ordered by term.
func (idx *Index) Entries() []TermEntry {
	entries := make([]TermEntry, 0, len(idx.terms))
	for _, term := range idx.terms {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: idx.postings[term],
		})
	}
	return entries
}

// WordFrequencies lists every term with its document frequency, ordered by
// ascending frequency and then by term.
func (idx *Index) WordFrequencies() []TermFrequency {
	freqs := make([]TermFrequency, 0, len(idx.terms))
	for _, term := range idx.terms {
		freqs = append(freqs, TermFrequency{Term: term, DocFreq: len(idx.postings[term])})
	}
	sort.SliceStable(freqs, func(i, j int) bool {
		return freqs[i].DocFreq < freqs[j].DocFreq
	})
	return freqs
}

// DocFreqHistogram counts the terms per document frequency, ascending by
// frequency.
func (idx *Index) DocFreqHistogram() []DocFreqCount {
	var hist []DocFreqCount
	for _, f := range idx.WordFrequencies() {
		if n := len(hist); n > 0 && hist[n-1].DocFreq == f.DocFreq {
			hist[n-1].Terms++
			continue
		}
		hist = append(hist, DocFreqCount{DocFreq: f.DocFreq, Terms: 1})
	}
	if hist == nil {
		hist = []DocFreqCount{}
	}
	return hist
}

// Validate checks every structural invariant of the index: normalised
// non-empty terms, strictly ascending posting lists, document ids inside the
// registry, positive frequencies, weights consistent with the final document
// frequencies, and a bijective registry.
func (idx *Index) Validate() error {
	if err := idx.registry.validate(); err != nil {
		return err
	}
	n := idx.registry.Len()
	for _, term := range idx.terms {
		if term == "" || term != tokenizer.Normalize(term) {
			return fmt.Errorf("term %q is not normalised", term)
		}
		pl := idx.postings[term]
		if len(pl) == 0 {
			return fmt.Errorf("term %q has an empty posting list", term)
		}
		if !pl.Sorted() {
			return fmt.Errorf("posting list of %q is not strictly ascending", term)
		}
		df := len(pl)
		for _, p := range pl {
			if p.DocID < 1 || p.DocID > n {
				return fmt.Errorf("term %q references unknown document %d", term, p.DocID)
			}
			if p.Frequency < 1 {
				return fmt.Errorf("term %q has frequency %d in document %d", term, p.Frequency, p.DocID)
			}
			if want := Weight(p.Frequency, df, n); math.Abs(p.Weight-want) > weightTolerance {
				return fmt.Errorf("term %q weight %g in document %d, want %g", term, p.Weight, p.DocID, want)
			}
		}
	}
	return nil
}

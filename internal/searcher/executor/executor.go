// Package executor evaluates queries against a finished index. An Engine
// never mutates its index and holds no per-query state, so one Engine can
// serve any number of goroutines.
package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mrtazz/admiral/internal/indexer/index"
	"github.com/mrtazz/admiral/internal/indexer/tokenizer"
	"github.com/mrtazz/admiral/internal/searcher/merger"
	"github.com/mrtazz/admiral/internal/searcher/ranker"
	apperrors "github.com/mrtazz/admiral/pkg/errors"
	"github.com/mrtazz/admiral/pkg/metrics"
)

// RankedResult is the outcome of and-ish retrieval. Recognized lists the
// distinct query terms present in the index in query order, so an empty Docs
// with empty Recognized means no query term was known.
type RankedResult struct {
	Docs         []ranker.ScoredDoc `json:"docs"`
	Recognized   []string           `json:"recognized"`
	Unrecognized []string           `json:"unrecognized"`
}

// Completion is one vocabulary term matching a prefix. DocLength is the
// term's document frequency and Percentage its share of the corpus.
type Completion struct {
	Term       string  `json:"completion" xml:"completion"`
	DocLength  int     `json:"doclength" xml:"doclength"`
	Percentage float64 `json:"percentage" xml:"percentage"`
}

type PrefixResult struct {
	Prefix      string       `json:"prefix"`
	Completions []Completion `json:"completions"`
	Docs        []int        `json:"docs"`
}

type Engine struct {
	idx     *index.Index
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Engine over idx. m may be nil.
func New(idx *index.Index, m *metrics.Metrics) *Engine {
	return &Engine{
		idx:     idx,
		metrics: m,
		logger:  slog.Default().With("component", "query-engine"),
	}
}

func (e *Engine) Index() *index.Index {
	return e.idx
}

// Lookup returns the posting list of term. An unknown term fails with a
// *errors.TermNotFoundError rather than an empty list.
func (e *Engine) Lookup(term string) (index.PostingList, error) {
	start := time.Now()
	pl, ok := e.idx.Lookup(term)
	if !ok {
		err := apperrors.NewTermNotFoundError(term)
		e.observe("lookup", start, 0, err)
		return nil, err
	}
	e.observe("lookup", start, len(pl), nil)
	return pl, nil
}

// Intersect returns the ascending ids of the documents containing every
// term. Any unknown term fails with a TermNotFoundError naming the first such
// term in input order. Lists are intersected smallest first.
func (e *Engine) Intersect(terms []string) ([]int, error) {
	start := time.Now()
	if len(terms) == 0 {
		err := fmt.Errorf("%w: intersect needs at least one term", apperrors.ErrInvalidInput)
		e.observe("intersect", start, 0, err)
		return nil, err
	}
	lists := make([]index.PostingList, 0, len(terms))
	for _, term := range terms {
		pl, ok := e.idx.Lookup(term)
		if !ok {
			err := apperrors.NewTermNotFoundError(term)
			e.observe("intersect", start, 0, err)
			return nil, err
		}
		lists = append(lists, pl)
	}
	sort.SliceStable(lists, func(i, j int) bool {
		return len(lists[i]) < len(lists[j])
	})

	result := lists[0].DocIDs()
	for _, pl := range lists[1:] {
		if len(result) == 0 {
			break
		}
		result = intersectSorted(result, pl)
	}
	e.observe("intersect", start, len(result), nil)
	return result, nil
}

// intersectSorted keeps the ids of candidates that also appear in pl. It
// filters candidates in place.
func intersectSorted(candidates []int, pl index.PostingList) []int {
	out := candidates[:0]
	i, j := 0, 0
	for i < len(candidates) && j < len(pl) {
		switch {
		case candidates[i] == pl[j].DocID:
			out = append(out, candidates[i])
			i++
			j++
		case candidates[i] < pl[j].DocID:
			i++
		default:
			j++
		}
	}
	return out
}

// RankedRetrieve scores every document containing at least one known term by
// the sum of the term weights and returns them best first, ties broken by
// ascending id. Unknown terms are skipped; a repeated term counts once per
// occurrence.
func (e *Engine) RankedRetrieve(terms []string) RankedResult {
	return e.RankedRetrieveLimit(terms, 0)
}

// RankedRetrieveLimit is RankedRetrieve keeping only the best limit
// documents. limit <= 0 keeps all of them.
func (e *Engine) RankedRetrieveLimit(terms []string, limit int) RankedResult {
	start := time.Now()
	result := RankedResult{
		Recognized:   make([]string, 0, len(terms)),
		Unrecognized: make([]string, 0),
	}
	seen := make(map[string]bool, len(terms))
	lists := make([]index.PostingList, 0, len(terms))
	for _, term := range terms {
		norm := tokenizer.Normalize(term)
		pl, ok := e.idx.Lookup(norm)
		if ok {
			lists = append(lists, pl)
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true
		if ok {
			result.Recognized = append(result.Recognized, norm)
		} else {
			result.Unrecognized = append(result.Unrecognized, norm)
		}
	}

	var scored []ranker.ScoredDoc
	if limit > 0 {
		scored = merger.TopK(ranker.Accumulate(lists), limit)
	} else {
		scored = ranker.Score(lists)
	}
	result.Docs = scored
	e.observe("ranked", start, len(scored), nil)
	return result
}

// PrefixExpand returns every indexed term starting with prefix, ascending.
// An empty prefix matches nothing.
func (e *Engine) PrefixExpand(prefix string) []string {
	start := time.Now()
	prefix = tokenizer.Normalize(prefix)
	if prefix == "" {
		e.observe("prefix", start, 0, nil)
		return []string{}
	}
	terms := e.idx.Terms()
	lo := sort.SearchStrings(terms, prefix)
	hi := lo
	for hi < len(terms) && strings.HasPrefix(terms[hi], prefix) {
		hi++
	}
	result := make([]string, hi-lo)
	copy(result, terms[lo:hi])
	e.observe("prefix", start, len(result), nil)
	return result
}

// MergeDocuments returns the ascending union of the documents of the known
// terms. Unknown terms are ignored.
func (e *Engine) MergeDocuments(terms []string) []int {
	start := time.Now()
	lists := make([]index.PostingList, 0, len(terms))
	for _, term := range terms {
		if pl, ok := e.idx.Lookup(term); ok {
			lists = append(lists, pl)
		}
	}
	result := merger.Merge(lists)
	e.observe("merge", start, len(result), nil)
	return result
}

// PrefixSearch expands prefix and reports each completion with its document
// frequency and corpus percentage, plus the merged documents of all
// completions.
func (e *Engine) PrefixSearch(prefix string) PrefixResult {
	completions := e.PrefixExpand(prefix)
	n := e.idx.DocCount()
	result := PrefixResult{
		Prefix:      tokenizer.Normalize(prefix),
		Completions: make([]Completion, 0, len(completions)),
	}
	for _, term := range completions {
		pl, _ := e.idx.Lookup(term)
		c := Completion{Term: term, DocLength: len(pl)}
		if n > 0 {
			c.Percentage = float64(len(pl)) / float64(n) * 100
		}
		result.Completions = append(result.Completions, c)
	}
	result.Docs = e.MergeDocuments(completions)
	return result
}

func (e *Engine) observe(action string, start time.Time, results int, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, apperrors.ErrTermNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	case results == 0:
		outcome = "empty"
	}
	e.metrics.QueriesTotal.WithLabelValues(action, outcome).Inc()
	e.metrics.QueryLatency.WithLabelValues(action).Observe(time.Since(start).Seconds())
	e.metrics.QueryResultsCount.WithLabelValues(action).Observe(float64(results))
}

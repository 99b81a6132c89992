package executor

import (
	"context"
	"time"

	"github.com/mrtazz/admiral/internal/searcher/parser"
	"github.com/mrtazz/admiral/pkg/logger"
)

// Hit is one result document with its file name resolved.
type Hit struct {
	DocID    int     `json:"doc_id"`
	FileName string  `json:"file_name"`
	Score    float64 `json:"score"`
}

type SearchResult struct {
	Query       string         `json:"query"`
	Mode        string         `json:"mode"`
	TotalHits   int            `json:"total_hits"`
	Results     []Hit          `json:"results"`
	Recognized  []string       `json:"recognized,omitempty"`
	Completions []Completion   `json:"completions,omitempty"`
	TermStats   map[string]int `json:"term_stats"`
}

// Execute evaluates plan and returns at most limit hits (all when limit <= 0).
// ModeAnd intersects the terms and fails on an unknown term; ModeRanked runs
// and-ish retrieval; ModePrefix completes the first term. Documents containing
// an excluded term are dropped in the first two modes.
func (e *Engine) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	result := &SearchResult{
		Query:     plan.RawQuery,
		Mode:      plan.Mode.String(),
		Results:   []Hit{},
		TermStats: make(map[string]int),
	}
	if len(plan.Terms) == 0 {
		return result, nil
	}

	var hits []Hit
	switch plan.Mode {
	case parser.ModePrefix:
		pr := e.PrefixSearch(plan.Terms[0])
		result.Completions = pr.Completions
		for _, c := range pr.Completions {
			result.TermStats[c.Term] = c.DocLength
		}
		for _, docID := range pr.Docs {
			hits = append(hits, Hit{DocID: docID})
		}
	case parser.ModeRanked:
		rr := e.RankedRetrieve(plan.Terms)
		result.Recognized = rr.Recognized
		excluded := e.excluded(plan.ExcludeTerms)
		for _, doc := range rr.Docs {
			if !excluded[doc.DocID] {
				hits = append(hits, Hit{DocID: doc.DocID, Score: doc.Score})
			}
		}
	default:
		docs, err := e.Intersect(plan.Terms)
		if err != nil {
			return nil, err
		}
		excluded := e.excluded(plan.ExcludeTerms)
		for _, docID := range docs {
			if !excluded[docID] {
				hits = append(hits, Hit{DocID: docID})
			}
		}
	}

	if plan.Mode != parser.ModePrefix {
		for _, term := range plan.Terms {
			if pl, ok := e.idx.Lookup(term); ok {
				result.TermStats[term] = len(pl)
			}
		}
	}

	result.TotalHits = len(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	for i := range hits {
		hits[i].FileName, _ = e.idx.FileName(hits[i].DocID)
	}
	if hits != nil {
		result.Results = hits
	}

	logger.FromContext(ctx).Info("query executed",
		"query", plan.RawQuery,
		"mode", result.Mode,
		"terms", plan.Terms,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"duration", time.Since(start),
	)
	return result, nil
}

func (e *Engine) excluded(terms []string) map[int]bool {
	if len(terms) == 0 {
		return nil
	}
	out := make(map[int]bool)
	for _, docID := range e.MergeDocuments(terms) {
		out[docID] = true
	}
	return out
}

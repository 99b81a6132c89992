// Package parser turns a raw query string into a QueryPlan. Words are split
// into index terms with the tokenizer; the upper-case words AND, OR and NOT
// act as operators.
package parser

import (
	"fmt"
	"strings"

	"github.com/mrtazz/admiral/internal/indexer/tokenizer"
	apperrors "github.com/mrtazz/admiral/pkg/errors"
)

// Mode selects how a plan is evaluated.
type Mode int

const (
	// ModeAnd returns the documents containing every term.
	ModeAnd Mode = iota
	// ModeRanked returns documents containing any term, by tf-idf score.
	ModeRanked
	// ModePrefix completes the first term against the vocabulary.
	ModePrefix
)

func (m Mode) String() string {
	switch m {
	case ModeAnd:
		return "and"
	case ModeRanked:
		return "or"
	case ModePrefix:
		return "prefix"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a mode name to a Mode. The empty string is ModeAnd.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return ModeAnd, nil
	case "or", "ranked":
		return ModeRanked, nil
	case "prefix":
		return ModePrefix, nil
	default:
		return 0, fmt.Errorf("%w: unknown query mode %q", apperrors.ErrInvalidInput, s)
	}
}

type QueryPlan struct {
	Terms        []string
	ExcludeTerms []string
	Mode         Mode
	RawQuery     string
}

// Parse builds a plan for query, starting in mode. An AND or OR operator in
// the query switches between ModeAnd and ModeRanked; operators are ignored
// in ModePrefix. NOT excludes the terms of the following word.
func Parse(query string, mode Mode) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Mode:         mode,
		RawQuery:     query,
	}
	excludeNext := false
	for _, word := range strings.Fields(query) {
		if mode != ModePrefix {
			switch word {
			case "AND":
				plan.Mode = ModeAnd
				continue
			case "OR":
				plan.Mode = ModeRanked
				continue
			case "NOT":
				excludeNext = true
				continue
			}
		}
		terms := tokenizer.Terms(word)
		if excludeNext {
			plan.ExcludeTerms = append(plan.ExcludeTerms, terms...)
			excludeNext = false
		} else {
			plan.Terms = append(plan.Terms, terms...)
		}
	}
	return plan
}

// Key is a canonical form of the plan used for cache keys: the mode, the
// terms and the excluded terms. Term order is kept because ranked retrieval
// reports recognized terms in query order.
func (p *QueryPlan) Key() string {
	key := p.Mode.String() + "|" + strings.Join(p.Terms, ",")
	if len(p.ExcludeTerms) > 0 {
		key += "|NOT:" + strings.Join(p.ExcludeTerms, ",")
	}
	return key
}

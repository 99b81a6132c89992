package parser

import (
	"errors"
	"reflect"
	"testing"

	apperrors "github.com/mrtazz/admiral/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		mode     Mode
		terms    []string
		excludes []string
		wantMode Mode
	}{
		{"simple", "Cat sat", ModeAnd, []string{"cat", "sat"}, []string{}, ModeAnd},
		{"or operator", "cat OR dog", ModeAnd, []string{"cat", "dog"}, []string{}, ModeRanked},
		{"and operator", "cat AND dog", ModeRanked, []string{"cat", "dog"}, []string{}, ModeAnd},
		{"lowercase and is a term", "salt and pepper", ModeAnd, []string{"salt", "and", "pepper"}, []string{}, ModeAnd},
		{"not", "cat NOT dog", ModeAnd, []string{"cat"}, []string{"dog"}, ModeAnd},
		{"punctuation splits", "rfc-2616", ModeAnd, []string{"rfc", "2616"}, []string{}, ModeAnd},
		{"prefix ignores operators", "OR", ModePrefix, []string{"or"}, []string{}, ModePrefix},
		{"empty", "   ", ModeAnd, []string{}, []string{}, ModeAnd},
		{"separator only word", "cat !!", ModeAnd, []string{"cat"}, []string{}, ModeAnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query, tt.mode)
			if !reflect.DeepEqual(plan.Terms, tt.terms) {
				t.Errorf("Terms = %q, want %q", plan.Terms, tt.terms)
			}
			if !reflect.DeepEqual(plan.ExcludeTerms, tt.excludes) {
				t.Errorf("ExcludeTerms = %q, want %q", plan.ExcludeTerms, tt.excludes)
			}
			if plan.Mode != tt.wantMode {
				t.Errorf("Mode = %v, want %v", plan.Mode, tt.wantMode)
			}
			if plan.RawQuery != tt.query {
				t.Errorf("RawQuery = %q", plan.RawQuery)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAnd, "AND": ModeAnd, "or": ModeRanked, "ranked": ModeRanked, "Prefix": ModePrefix} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("fuzzy"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("ParseMode(fuzzy) err = %v, want ErrInvalidInput", err)
	}
}

func TestKey(t *testing.T) {
	a := Parse("Cat  sat", ModeAnd).Key()
	b := Parse("cat sat", ModeAnd).Key()
	if a != b {
		t.Errorf("keys differ for equivalent queries: %q vs %q", a, b)
	}
	if Parse("cat sat", ModeRanked).Key() == a {
		t.Error("mode must be part of the key")
	}
	if got := Parse("cat NOT dog", ModeAnd).Key(); got != "and|cat|NOT:dog" {
		t.Errorf("Key() = %q", got)
	}
}

package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"simple", "the cat sat", []string{"the", "cat", "sat"}},
		{"case preserved", "The Cat", []string{"The", "Cat"}},
		{"punctuation separates", "RFC-2616, HTTP/1.1!", []string{"RFC", "2616", "HTTP", "1", "1"}},
		{"underscore is a word char", "snake_case_word", []string{"snake_case_word"}},
		{"unicode letters", "grüße über", []string{"grüße", "über"}},
		{"leading and trailing separators", "  ..hello.. ", []string{"hello"}},
		{"empty", "", []string{}},
		{"only separators", "--- ;; !!", []string{}},
		{"newlines", "line one\nline_two\r\n", []string{"line", "one", "line_two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestTokensRestartable(t *testing.T) {
	seq := Tokens("a b c")
	var first, second []string
	for tok := range seq {
		first = append(first, tok)
	}
	for tok := range seq {
		second = append(second, tok)
	}
	if !reflect.DeepEqual(first, second) || len(first) != 3 {
		t.Errorf("sequence not restartable: %v vs %v", first, second)
	}
}

func TestTokensEarlyStop(t *testing.T) {
	count := 0
	for range Tokens("one two three four") {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("expected to stop after 2 tokens, got %d", count)
	}
}

func TestTerms(t *testing.T) {
	got := Terms("Cat SAT, cat")
	want := []string{"cat", "sat", "cat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Terms() = %v, want %v", got, want)
	}
	if Normalize("HeLLo") != "hello" {
		t.Error("Normalize should lower-case")
	}
}

// Package source enumerates the documents of a corpus and hands them to the
// index builder in document-id order.
package source

import (
	"context"
	"iter"

	"github.com/mrtazz/admiral/internal/indexer/tokenizer"
)

// Document is one corpus entry. IDs start at 1 and follow enumeration order.
type Document struct {
	ID       int
	FileName string
	Text     string
}

// Tokens returns the document's case-preserving word tokens. The sequence is
// lazy and may be ranged over repeatedly.
func (d Document) Tokens() iter.Seq[string] {
	return tokenizer.Tokens(d.Text)
}

// WalkFunc receives each document together with the total number of
// documents the walk will produce.
type WalkFunc func(doc Document, total int) error

// Source yields every document of a corpus exactly once, in ascending ID
// order. Returning an error from fn stops the walk with that error.
type Source interface {
	Walk(ctx context.Context, fn WalkFunc) error
}

// Memory is an in-memory Source, mainly for tests and small fixed corpora.
type Memory struct {
	docs []Document
}

func NewMemory() *Memory {
	return &Memory{}
}

// Add appends a document and returns the source for chaining.
func (m *Memory) Add(fileName, text string) *Memory {
	m.docs = append(m.docs, Document{
		ID:       len(m.docs) + 1,
		FileName: fileName,
		Text:     text,
	})
	return m
}

func (m *Memory) Walk(ctx context.Context, fn WalkFunc) error {
	for _, doc := range m.docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc, len(m.docs)); err != nil {
			return err
		}
	}
	return nil
}

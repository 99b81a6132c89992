// Package indexer builds an immutable inverted index from a document source.
//
// Building is two-pass. The first pass walks every document once and counts
// raw term occurrences per document while registering file names. Only when
// the corpus size N and every term's document frequency are final does the
// second pass compute tf-idf weights, so a weight never reflects a partial
// corpus and document arrival order cannot change any weight.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrtazz/admiral/internal/indexer/index"
	"github.com/mrtazz/admiral/internal/indexer/source"
	"github.com/mrtazz/admiral/internal/indexer/tokenizer"
	apperrors "github.com/mrtazz/admiral/pkg/errors"
	"github.com/mrtazz/admiral/pkg/metrics"
)

// ProgressFunc is called after each document of pass one.
type ProgressFunc func(done, total int, fileName string)

// Options configures a Builder. All fields are optional.
type Options struct {
	Progress ProgressFunc
	Metrics  *metrics.Metrics
	// Source tunes the folder walk used by BuildIndex.
	Source source.Options
}

// BuildStats summarises a finished build.
type BuildStats struct {
	Documents      int           `json:"documents"`
	EmptyDocuments int           `json:"empty_documents"`
	Terms          int           `json:"terms"`
	Postings       int           `json:"postings"`
	Tokens         int           `json:"tokens"`
	Duration       time.Duration `json:"duration"`
}

// rawPosting is a pass-one count, before the weight is known.
type rawPosting struct {
	docID int
	tf    int
}

type Builder struct {
	opts   Options
	logger *slog.Logger
}

func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts:   opts,
		logger: slog.Default().With("component", "indexer"),
	}
}

// Build indexes every document of src. It fails with an EmptyCorpusError
// when src yields no documents and with ctx.Err() when ctx is cancelled
// between documents; no partial Index is returned in either case.
func (b *Builder) Build(ctx context.Context, src source.Source) (*index.Index, *BuildStats, error) {
	start := time.Now()
	stats := &BuildStats{}

	counts := make(map[string][]rawPosting)
	registry := index.NewRegistry()

	err := src.Walk(ctx, func(doc source.Document, total int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if id := registry.Add(doc.FileName); id != doc.ID {
			return fmt.Errorf("document %q arrived with id %d, expected %d", doc.FileName, doc.ID, id)
		}

		perDoc := make(map[string]int)
		for tok := range doc.Tokens() {
			perDoc[tokenizer.Normalize(tok)]++
			stats.Tokens++
		}
		if len(perDoc) == 0 {
			stats.EmptyDocuments++
		}
		// Documents arrive in ascending id order, so appending keeps every
		// list sorted without a later sort.
		for term, tf := range perDoc {
			counts[term] = append(counts[term], rawPosting{docID: doc.ID, tf: tf})
		}

		if b.opts.Metrics != nil {
			b.opts.Metrics.DocsIndexedTotal.Inc()
		}
		if b.opts.Progress != nil {
			b.opts.Progress(doc.ID, total, doc.FileName)
		}
		return nil
	})
	if err != nil {
		b.recordFailure()
		return nil, nil, err
	}

	n := registry.Len()
	if n == 0 {
		b.recordFailure()
		return nil, nil, &apperrors.EmptyCorpusError{}
	}

	postings := make(map[string]index.PostingList, len(counts))
	for term, raw := range counts {
		df := len(raw)
		pl := make(index.PostingList, df)
		for i, rp := range raw {
			pl[i] = index.Posting{
				DocID:     rp.docID,
				Frequency: rp.tf,
				Weight:    index.Weight(rp.tf, df, n),
			}
		}
		postings[term] = pl
		stats.Postings += df
	}

	idx := index.New(postings, registry)
	stats.Documents = n
	stats.Terms = idx.TermCount()
	stats.Duration = time.Since(start)

	if b.opts.Metrics != nil {
		b.opts.Metrics.BuildsTotal.WithLabelValues("success").Inc()
		b.opts.Metrics.BuildDuration.Observe(stats.Duration.Seconds())
		b.opts.Metrics.ObserveIndex(stats.Documents, stats.Terms)
	}
	b.logger.Info("index built",
		"documents", stats.Documents,
		"empty_documents", stats.EmptyDocuments,
		"terms", stats.Terms,
		"postings", stats.Postings,
		"tokens", stats.Tokens,
		"duration", stats.Duration,
	)
	return idx, stats, nil
}

func (b *Builder) recordFailure() {
	if b.opts.Metrics != nil {
		b.opts.Metrics.BuildsTotal.WithLabelValues("error").Inc()
	}
}

// BuildIndex builds an index over the regular files below folder.
func BuildIndex(ctx context.Context, folder string, opts Options) (*index.Index, *BuildStats, error) {
	src := source.NewFolder(folder, opts.Source)
	idx, stats, err := NewBuilder(opts).Build(ctx, src)
	if err != nil {
		var empty *apperrors.EmptyCorpusError
		if errors.As(err, &empty) {
			empty.Folder = folder
		}
		return nil, nil, fmt.Errorf("building index from %s: %w", folder, err)
	}
	return idx, stats, nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mrtazz/admiral/internal/analytics"
	"github.com/mrtazz/admiral/internal/indexer"
	"github.com/mrtazz/admiral/internal/indexer/catalog"
	"github.com/mrtazz/admiral/internal/indexer/segment"
	"github.com/mrtazz/admiral/internal/indexer/snapshot"
	"github.com/mrtazz/admiral/internal/indexer/source"
	"github.com/mrtazz/admiral/pkg/config"
	"github.com/mrtazz/admiral/pkg/kafka"
	"github.com/mrtazz/admiral/pkg/metrics"
	"github.com/mrtazz/admiral/pkg/postgres"
	"github.com/mrtazz/admiral/pkg/resilience"
)

type buildOptions struct {
	output     string
	snapshot   string
	includes   []string
	excludes   []string
	workers    int
	noProgress bool
}

func newBuildCmd(a *app) *cobra.Command {
	opts := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build [folder]",
		Short: "Index every text file below a folder",
		Long: `Build reads every regular file below folder, weights each term by tf-idf and
writes the index to a single file. The folder defaults to index.sourceDir.

Examples:
  admiral build ./corpus -o corpus.admx
  admiral build ./corpus --exclude '**/*.log' --snapshot nightly`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := a.cfg.Index.SourceDir
			if len(args) > 0 {
				folder = args[0]
			}
			if folder == "" {
				return fmt.Errorf("no folder given and index.sourceDir is not set")
			}
			return runBuild(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), a.cfg, folder, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "index file to write (default index.dataFile)")
	f.StringVar(&opts.snapshot, "snapshot", "", "also store the index under this name in the snapshot database")
	f.StringSliceVar(&opts.includes, "include", nil, "glob of files to index (repeatable, default index.includes)")
	f.StringSliceVar(&opts.excludes, "exclude", nil, "glob of files or directories to skip (repeatable)")
	f.IntVar(&opts.workers, "workers", 0, "parallel file reads (default index.readWorkers)")
	f.BoolVar(&opts.noProgress, "no-progress", false, "do not draw a progress bar")
	return cmd
}

func runBuild(ctx context.Context, out, errOut io.Writer, cfg *config.Config, folder string, opts *buildOptions) error {
	output := opts.output
	if output == "" {
		output = cfg.Index.DataFile
	}
	srcOpts := sourceOptions(cfg, opts)

	var progress indexer.ProgressFunc
	if !opts.noProgress {
		progress = newProgress(errOut)
	}

	// Long builds can be watched on the metrics port while they run.
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	idx, stats, err := indexer.BuildIndex(ctx, folder, indexer.Options{
		Progress: progress,
		Metrics:  m,
		Source:   srcOpts,
	})
	if err != nil {
		return err
	}
	if err := segment.WriteFile(output, idx); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	fmt.Fprintf(out, "indexed %d documents (%d empty), %d terms, %d postings in %s\n",
		stats.Documents, stats.EmptyDocuments, stats.Terms, stats.Postings, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "wrote %s\n", output)

	if opts.snapshot != "" {
		store, err := snapshot.Open(cfg.Snapshot.Path)
		if err != nil {
			return err
		}
		meta, err := store.Put(opts.snapshot, idx)
		store.Close()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "stored snapshot %q (%d bytes) in %s\n", meta.Name, meta.SizeBytes, cfg.Snapshot.Path)
	}

	abs, err := filepath.Abs(folder)
	if err != nil {
		abs = folder
	}
	build := catalog.NewBuild(abs, output, stats)
	if cfg.Postgres.Enabled {
		recordBuild(ctx, cfg, build)
	}
	if cfg.Kafka.Enabled {
		publishBuild(ctx, cfg, build)
	}
	return nil
}

func sourceOptions(cfg *config.Config, opts *buildOptions) (o source.Options) {
	o.Includes = cfg.Index.Includes
	if len(opts.includes) > 0 {
		o.Includes = opts.includes
	}
	o.Excludes = append(append(o.Excludes, cfg.Index.Excludes...), opts.excludes...)
	o.Workers = cfg.Index.ReadWorkers
	if opts.workers > 0 {
		o.Workers = opts.workers
	}
	return o
}

// newProgress draws a bar once the first document reports the total.
func newProgress(w io.Writer) indexer.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(done, total int, fileName string) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription("indexing"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}
		_ = bar.Set(done)
	}
}

// recordBuild is best effort: a catalog outage must not fail a build whose
// index file is already written.
func recordBuild(ctx context.Context, cfg *config.Config, build catalog.Build) {
	logger := slog.Default().With("component", "cli", "build_id", build.ID)
	var db *postgres.Client
	err := resilience.Retry(ctx, "postgres connect", resilience.RetryConfig{MaxAttempts: 3}, func(context.Context) error {
		c, err := postgres.New(cfg.Postgres)
		if err != nil {
			return err
		}
		db = c
		return nil
	})
	if err != nil {
		logger.Warn("build catalog unavailable", "error", err)
		return
	}
	defer db.Close()

	cat := catalog.New(db)
	err = resilience.WithTimeout(ctx, 10*time.Second, "record build", func(ctx context.Context) error {
		if err := cat.EnsureSchema(ctx); err != nil {
			return err
		}
		return cat.Record(ctx, build)
	})
	if err != nil {
		logger.Warn("recording build failed", "error", err)
	}
}

func publishBuild(ctx context.Context, cfg *config.Config, build catalog.Build) {
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
	defer producer.Close()
	event := analytics.BuildEvent{
		Type:       analytics.EventBuild,
		BuildID:    build.ID,
		Folder:     build.Folder,
		Documents:  build.Stats.Documents,
		Terms:      build.Stats.Terms,
		DurationMs: build.Stats.Duration.Milliseconds(),
		Timestamp:  build.BuiltAt,
	}
	err := resilience.WithTimeout(ctx, 10*time.Second, "publish build", func(ctx context.Context) error {
		return producer.Publish(ctx, kafka.Event{Key: string(analytics.EventBuild), Value: event})
	})
	if err != nil {
		slog.Warn("publishing build event failed", "build_id", build.ID, "error", err)
	}
}

package source

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/mrtazz/admiral/pkg/errors"
)

const defaultWorkers = 8

// Options filters and tunes a Folder walk.
type Options struct {
	// Includes and Excludes are doublestar patterns matched against the
	// slash-separated path relative to the folder. Empty Includes means "**/*".
	Includes []string
	Excludes []string
	// Workers bounds the number of files read concurrently.
	Workers int
}

// Folder is a Source over the regular files below a directory. Files are
// visited in lexical path order; file names are paths relative to the root.
type Folder struct {
	root     string
	includes []string
	excludes []string
	workers  int
	logger   *slog.Logger
}

func NewFolder(root string, opts Options) *Folder {
	includes := opts.Includes
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Folder{
		root:     root,
		includes: includes,
		excludes: opts.Excludes,
		workers:  workers,
		logger:   slog.Default().With("component", "document-source", "folder", root),
	}
}

// Files lists the relative paths of every document the walk will produce.
func (f *Folder) Files() ([]string, error) {
	info, err := os.Stat(f.root)
	if err != nil {
		return nil, &apperrors.FolderNotFoundError{Folder: f.root, Err: err}
	}
	if !info.IsDir() {
		return nil, &apperrors.FolderNotFoundError{Folder: f.root, Err: errors.New("not a directory")}
	}

	var files []string
	err = filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == f.root {
				return err
			}
			f.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if path != f.root && f.excluded(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if f.included(rel) && !f.excluded(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, &apperrors.FolderNotFoundError{Folder: f.root, Err: err}
	}
	return files, nil
}

// Walk reads files in batches of parallel reads and calls fn sequentially in
// id order. A file that cannot be read is delivered with empty text.
func (f *Folder) Walk(ctx context.Context, fn WalkFunc) error {
	files, err := f.Files()
	if err != nil {
		return err
	}
	total := len(files)
	batchSize := f.workers * 4
	texts := make([]string, batchSize)

	for start := 0; start < total; start += batchSize {
		end := min(start+batchSize, total)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.workers)
		for i := start; i < end; i++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				texts[i-start] = f.read(files[i])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for i := start; i < end; i++ {
			doc := Document{ID: i + 1, FileName: files[i], Text: texts[i-start]}
			texts[i-start] = ""
			if err := fn(doc, total); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Folder) read(rel string) string {
	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	if err != nil {
		f.logger.Warn("cannot read document, indexing it as empty", "file", rel, "error", err)
		return ""
	}
	return string(data)
}

func (f *Folder) included(rel string) bool {
	for _, pattern := range f.includes {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

func (f *Folder) excluded(rel string) bool {
	for _, pattern := range f.excludes {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

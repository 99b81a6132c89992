package cli

import (
	"fmt"

	"github.com/mrtazz/admiral/internal/indexer/index"
	"github.com/mrtazz/admiral/internal/indexer/segment"
	"github.com/mrtazz/admiral/internal/indexer/snapshot"
	"github.com/mrtazz/admiral/pkg/config"
)

// loadIndex reads a named snapshot when snapshotName is set and the index
// file at path otherwise; an empty path falls back to index.dataFile. The
// second result describes where the index came from.
func loadIndex(cfg *config.Config, path, snapshotName string) (*index.Index, string, error) {
	if snapshotName != "" {
		store, err := snapshot.Open(cfg.Snapshot.Path)
		if err != nil {
			return nil, "", err
		}
		defer store.Close()
		idx, err := store.Get(snapshotName)
		if err != nil {
			return nil, "", err
		}
		return idx, fmt.Sprintf("snapshot %q in %s", snapshotName, cfg.Snapshot.Path), nil
	}
	if path == "" {
		path = cfg.Index.DataFile
	}
	idx, err := segment.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading index %s: %w", path, err)
	}
	return idx, path, nil
}

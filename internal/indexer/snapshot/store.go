// Package snapshot keeps named, persisted indexes in a bbolt database so a
// server can start from a previous build without re-reading the corpus.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mrtazz/admiral/internal/indexer/index"
	"github.com/mrtazz/admiral/internal/indexer/segment"
	apperrors "github.com/mrtazz/admiral/pkg/errors"
)

var (
	bucketIndexes = []byte("indexes")
	bucketMeta    = []byte("meta")
)

// Meta describes a stored snapshot.
type Meta struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	SizeBytes int       `json:"size_bytes"`
}

type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// Open opens or creates the snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketIndexes, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "snapshot-store"),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores idx under name, replacing any previous snapshot of that name.
func (s *Store) Put(name string, idx *index.Index) (Meta, error) {
	if name == "" {
		return Meta{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "snapshot name is required")
	}
	now := time.Now().UTC()
	data, err := segment.Encode(idx, now)
	if err != nil {
		return Meta{}, fmt.Errorf("encoding snapshot %q: %w", name, err)
	}
	meta := Meta{
		Name:      name,
		CreatedAt: now.Truncate(time.Second),
		Documents: idx.DocCount(),
		Terms:     idx.TermCount(),
		SizeBytes: len(data),
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, fmt.Errorf("marshaling snapshot meta: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketIndexes).Put([]byte(name), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(name), metaData)
	})
	if err != nil {
		return Meta{}, fmt.Errorf("storing snapshot %q: %w", name, err)
	}
	s.logger.Info("snapshot stored", "name", name, "documents", meta.Documents, "bytes", meta.SizeBytes)
	return meta, nil
}

// Get loads the snapshot stored under name.
func (s *Store) Get(name string) (*index.Index, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketIndexes).Get([]byte(name))
		if v == nil {
			return apperrors.Newf(apperrors.ErrSnapshotNotFound, http.StatusNotFound, "snapshot %q not found", name)
		}
		// v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	idx, _, err := segment.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %q: %w", name, err)
	}
	return idx, nil
}

// List returns the metadata of every snapshot ordered by name.
func (s *Store) List() ([]Meta, error) {
	var metas []Meta
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(k, v []byte) error {
			var m Meta
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decoding meta of %s: %w", k, err)
			}
			metas = append(metas, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas, nil
}

// Delete removes a snapshot. Deleting an unknown name is an error.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketMeta).Get([]byte(name)) == nil {
			return apperrors.Newf(apperrors.ErrSnapshotNotFound, http.StatusNotFound, "snapshot %q not found", name)
		}
		if err := tx.Bucket(bucketIndexes).Delete([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete([]byte(name))
	})
}

// Package catalog records index builds in PostgreSQL so operators can see
// when, from what folder, and with what result each index was produced.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mrtazz/admiral/internal/indexer"
	"github.com/mrtazz/admiral/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS index_builds (
    id              BIGSERIAL PRIMARY KEY,
    build_id        UUID NOT NULL UNIQUE,
    folder          TEXT NOT NULL,
    output          TEXT NOT NULL,
    documents       INTEGER NOT NULL,
    empty_documents INTEGER NOT NULL,
    terms           INTEGER NOT NULL,
    postings        BIGINT NOT NULL,
    tokens          BIGINT NOT NULL,
    duration_ms     BIGINT NOT NULL,
    built_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Build is one catalog row.
type Build struct {
	ID      string             `json:"id"`
	Folder  string             `json:"folder"`
	Output  string             `json:"output"`
	Stats   indexer.BuildStats `json:"stats"`
	BuiltAt time.Time          `json:"built_at"`
}

// NewBuild describes a finished build with a fresh id.
func NewBuild(folder, output string, stats *indexer.BuildStats) Build {
	return Build{
		ID:      uuid.NewString(),
		Folder:  folder,
		Output:  output,
		Stats:   *stats,
		BuiltAt: time.Now().UTC(),
	}
}

type Catalog struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Catalog {
	return &Catalog{
		db:     db,
		logger: slog.Default().With("component", "build-catalog"),
	}
}

// EnsureSchema creates the index_builds table when it does not exist.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	return c.db.Migrate(ctx, schema)
}

func (c *Catalog) Record(ctx context.Context, b Build) error {
	_, err := c.db.DB.ExecContext(ctx,
		`INSERT INTO index_builds
		    (build_id, folder, output, documents, empty_documents, terms, postings, tokens, duration_ms, built_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.Folder, b.Output,
		b.Stats.Documents, b.Stats.EmptyDocuments, b.Stats.Terms,
		b.Stats.Postings, b.Stats.Tokens, b.Stats.Duration.Milliseconds(),
		b.BuiltAt,
	)
	if err != nil {
		return fmt.Errorf("recording build %s: %w", b.ID, err)
	}
	c.logger.Info("build recorded", "build_id", b.ID, "folder", b.Folder, "documents", b.Stats.Documents)
	return nil
}

// Recent returns the last limit builds, newest first.
func (c *Catalog) Recent(ctx context.Context, limit int) ([]Build, error) {
	rows, err := c.db.DB.QueryContext(ctx,
		`SELECT build_id, folder, output, documents, empty_documents, terms, postings, tokens, duration_ms, built_at
		   FROM index_builds ORDER BY built_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		var b Build
		var durationMS int64
		if err := rows.Scan(&b.ID, &b.Folder, &b.Output,
			&b.Stats.Documents, &b.Stats.EmptyDocuments, &b.Stats.Terms,
			&b.Stats.Postings, &b.Stats.Tokens, &durationMS, &b.BuiltAt); err != nil {
			return nil, fmt.Errorf("scanning build row: %w", err)
		}
		b.Stats.Duration = time.Duration(durationMS) * time.Millisecond
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// Package catalog records published index builds in PostgreSQL so operators
// can see what was built, when, and from how much input.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_builds (
	id               BIGSERIAL PRIMARY KEY,
	path             TEXT        NOT NULL,
	documents        INTEGER     NOT NULL,
	skipped          INTEGER     NOT NULL,
	terms            INTEGER     NOT NULL,
	tokens           BIGINT      NOT NULL,
	rejected_terms   INTEGER     NOT NULL,
	file_size        BIGINT      NOT NULL,
	elapsed_ms       BIGINT      NOT NULL,
	built_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS index_builds_path_idx ON index_builds (path, built_at DESC);
CREATE TABLE IF NOT EXISTS index_build_terms (
	build_id    BIGINT  NOT NULL REFERENCES index_builds (id) ON DELETE CASCADE,
	rank        INTEGER NOT NULL,
	term        TEXT    NOT NULL,
	documents   INTEGER NOT NULL,
	occurrences BIGINT  NOT NULL,
	PRIMARY KEY (build_id, rank)
);`

// TopTermsRecorded is how many of a build's most frequent terms are stored.
const TopTermsRecorded = 10

// BuildRecord is one published index.
type BuildRecord struct {
	ID            int64                   `json:"id"`
	Path          string                  `json:"path"`
	Documents     int                     `json:"documents"`
	Skipped       int                     `json:"skipped"`
	Terms         int                     `json:"terms"`
	Tokens        uint64                  `json:"tokens"`
	RejectedTerms int                     `json:"rejected_terms"`
	FileSize      uint32                  `json:"file_size"`
	Elapsed       time.Duration           `json:"elapsed"`
	BuiltAt       time.Time               `json:"built_at"`
	TopTerms      []indexer.TermFrequency `json:"top_terms,omitempty"`
}

// NewBuildRecord summarizes a finished build written to path.
func NewBuildRecord(path string, stats *indexer.BuildStats, header segment.Header, builtAt time.Time) BuildRecord {
	return BuildRecord{
		Path:          path,
		Documents:     stats.TotalDocuments,
		Skipped:       stats.SkippedDocuments,
		Terms:         stats.UniqueTerms,
		Tokens:        stats.TotalTokens,
		RejectedTerms: stats.RejectedTerms,
		FileSize:      header.FileSize,
		Elapsed:       stats.Elapsed,
		BuiltAt:       builtAt.UTC(),
		TopTerms:      stats.TopTerms(TopTermsRecorded),
	}
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "catalog"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating catalog schema: %w", err)
	}
	return nil
}

// Record stores rec and its top terms in one transaction and returns the
// assigned id.
func (s *Store) Record(ctx context.Context, rec BuildRecord) (int64, error) {
	var id int64
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO index_builds
				(path, documents, skipped, terms, tokens, rejected_terms, file_size, elapsed_ms, built_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			rec.Path, rec.Documents, rec.Skipped, rec.Terms, int64(rec.Tokens), rec.RejectedTerms,
			int64(rec.FileSize), rec.Elapsed.Milliseconds(), rec.BuiltAt,
		).Scan(&id)
		if err != nil {
			return err
		}
		for rank, t := range rec.TopTerms {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO index_build_terms (build_id, rank, term, documents, occurrences)
				VALUES ($1, $2, $3, $4, $5)`,
				id, rank+1, t.Term, t.Documents, int64(t.Occurrences),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recording build of %s: %w", rec.Path, err)
	}
	s.logger.Info("build recorded", "id", id, "path", rec.Path)
	return id, nil
}

// List returns the newest builds first. Top terms are not loaded.
func (s *Store) List(ctx context.Context, limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, path, documents, skipped, terms, tokens, rejected_terms, file_size, elapsed_ms, built_at
		FROM index_builds
		ORDER BY built_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var (
			rec       BuildRecord
			tokens    int64
			fileSize  int64
			elapsedMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Documents, &rec.Skipped, &rec.Terms,
			&tokens, &rec.RejectedTerms, &fileSize, &elapsedMs, &rec.BuiltAt); err != nil {
			return nil, fmt.Errorf("scanning build row: %w", err)
		}
		rec.Tokens = uint64(tokens)
		rec.FileSize = uint32(fileSize)
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating builds: %w", err)
	}
	return out, nil
}

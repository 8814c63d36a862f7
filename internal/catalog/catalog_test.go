package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/postgres"
)

func buildStats(t *testing.T) *indexer.BuildStats {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("cat dog"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("dog bird"), 0o644))
	b := indexer.NewBuilder(config.Default().Build, tokenizer.New(tokenizer.Options{MinLength: 2}))
	_, stats, err := b.BuildDir(context.Background(), dir)
	require.NoError(t, err)
	return stats
}

func TestNewBuildRecord(t *testing.T) {
	stats := buildStats(t)
	builtAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	rec := NewBuildRecord("/srv/animals.bind", stats, segment.Header{FileSize: 321}, builtAt)

	assert.Equal(t, "/srv/animals.bind", rec.Path)
	assert.Equal(t, 2, rec.Documents)
	assert.Equal(t, 3, rec.Terms)
	assert.Equal(t, uint64(4), rec.Tokens)
	assert.Equal(t, uint32(321), rec.FileSize)
	assert.Equal(t, time.UTC, rec.BuiltAt.Location())
	require.NotEmpty(t, rec.TopTerms)
	assert.Equal(t, "dog", rec.TopTerms[0].Term)
}

// TestStoreRoundTrip needs a reachable PostgreSQL configured through the
// BINDEX_POSTGRES_* environment variables.
func TestStoreRoundTrip(t *testing.T) {
	if os.Getenv("BINDEX_POSTGRES_HOST") == "" {
		t.Skip("BINDEX_POSTGRES_HOST not set")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres)
	require.NoError(t, err)
	defer db.Close()

	store := New(db)
	require.NoError(t, store.EnsureSchema(ctx))
	rec := NewBuildRecord(filepath.Join(t.TempDir(), "x.bind"), buildStats(t), segment.Header{FileSize: 99}, time.Now())
	id, err := store.Record(ctx, rec)
	require.NoError(t, err)

	builds, err := store.List(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, builds)
	assert.Equal(t, id, builds[0].ID)
	assert.Equal(t, rec.Path, builds[0].Path)
	assert.Equal(t, uint32(99), builds[0].FileSize)
}

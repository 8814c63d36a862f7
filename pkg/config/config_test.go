package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".txt", cfg.Build.Extension)
	assert.Equal(t, 2, cfg.Normalizer.MinTermLength)
	assert.False(t, cfg.Normalizer.Stem)
	assert.False(t, cfg.Search.LegacyNegation)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bindex.yaml")
	body := `
logging:
  level: debug
build:
  extension: .md
  workers: 8
  lockTimeout: 3s
search:
  legacyNegation: true
reader:
  postingCacheSize: 0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ".md", cfg.Build.Extension)
	assert.Equal(t, 8, cfg.Build.Workers)
	assert.Equal(t, 3*time.Second, cfg.Build.LockTimeout)
	assert.Equal(t, 256, cfg.Build.BatchSize, "unset keys keep defaults")
	assert.True(t, cfg.Search.LegacyNegation)
	assert.Equal(t, 0, cfg.Reader.PostingCacheSize)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BINDEX_BUILD_WORKERS", "2")
	t.Setenv("BINDEX_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BINDEX_REDIS_ADDR", "cache:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Build.Workers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"extension without dot", "build:\n  extension: txt\n"},
		{"zero workers", "build:\n  workers: 0\n"},
		{"min term length", "normalizer:\n  minTermLength: 0\n"},
		{"limits", "search:\n  defaultLimit: 10\n  maxResults: 5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	dsn := Default().Postgres.DSN()
	assert.Contains(t, dsn, "dbname=bindex")
	assert.Contains(t, dsn, "sslmode=disable")
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "deep-research", cfg.Server.Name)
	assert.Equal(t, 10, cfg.Research.Deep.MaxIterations)
	assert.Equal(t, 0.9, cfg.Research.Deep.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.Research.Quick.MaxIterations)
	assert.Equal(t, 0.7, cfg.Research.Quick.ConfidenceThreshold)
	assert.Equal(t, 6.0, cfg.Scoring.Threshold)
	assert.Equal(t, 2, cfg.Scoring.KeepTopN)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrency)
	assert.True(t, cfg.Batch.UseCache)
	assert.False(t, cfg.Batch.StopOnError)
	assert.Equal(t, 5*time.Minute, cfg.LockStaleness())
	assert.Equal(t, 60*time.Second, cfg.SweepInterval())
	assert.Equal(t, 10*time.Minute, cfg.Cache.Fact.GetTTL(0))
	assert.Equal(t, 500, cfg.Cache.Fact.MaxEntries)
	assert.Equal(t, 60*time.Minute, cfg.Cache.SourceRating.GetTTL(0))
	assert.Equal(t, 1000, cfg.Cache.SourceRating.MaxEntries)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Scoring, cfg.Scoring)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
database:
  path: /tmp/research.db
scoring:
  threshold: 7.5
  keep_top_n: 3
cache:
  fact:
    ttl: 2m
    max_entries: 50
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/research.db", cfg.Database.Path)
	assert.Equal(t, 7.5, cfg.Scoring.Threshold)
	assert.Equal(t, 3, cfg.Scoring.KeepTopN)
	assert.Equal(t, 2*time.Minute, cfg.Cache.Fact.GetTTL(0))
	assert.Equal(t, 50, cfg.Cache.Fact.MaxEntries)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Research.Deep.MaxIterations)
	assert.Equal(t, 200, cfg.Cache.Citation.MaxEntries)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [broken"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  threshold: 42\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"zero concurrency", func(c *Config) { c.Batch.MaxConcurrency = 0 }},
		{"negative keep_top_n", func(c *Config) { c.Scoring.KeepTopN = -1 }},
		{"zero iterations", func(c *Config) { c.Research.Quick.MaxIterations = 0 }},
		{"threshold above one", func(c *Config) { c.Research.Deep.ConfidenceThreshold = 1.2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatcherReload(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  threshold: 6.0\n"), 0644))

	first, err := Load(path)
	require.NoError(t, err)

	var mu sync.Mutex
	var got *Config
	w, err := NewWatcher(path, first, func(c *Config) {
		mu.Lock()
		got = c
		mu.Unlock()
	})
	require.NoError(t, err)
	w.debounceDur = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  threshold: 8.0\n"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Scoring.Threshold == 8.0
	}, 3*time.Second, 20*time.Millisecond)

	w.Stop()
}

func TestWatcherKeepsOldConfigOnBadReload(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  threshold: 6.0\n"), 0644))

	first, err := Load(path)
	require.NoError(t, err)

	calls := make(chan *Config, 4)
	w, err := NewWatcher(path, first, func(c *Config) { calls <- c })
	require.NoError(t, err)
	w.debounceDur = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte("scoring: [broken"), 0644))

	select {
	case c := <-calls:
		t.Fatalf("callback fired for malformed config: %+v", c)
	case <-time.After(500 * time.Millisecond):
	}

	w.Stop()
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/ugcbench/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, 10_000, cfg.Backends[0].BatchSize)
	assert.Equal(t, 1_000, cfg.Backends[1].BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Backends[0].Probe.Timeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Backends[0].Probe.PollInterval)
	assert.Equal(t, time.Second, cfg.Backends[1].Probe.Timeout)
	assert.Equal(t, 5*time.Millisecond, cfg.Backends[1].Probe.PollInterval)
	assert.Equal(t, filepath.Join("data", "results", "benchmark_report.json"), cfg.ReportPath())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("SEED", "7")
	t.Setenv("USERS", "100")
	t.Setenv("MOVIES", "50")
	t.Setenv("LIKES", "1000")
	t.Setenv("DURATION", "2")
	t.Setenv("CONCURRENCY", "4")
	t.Setenv("BACKENDS", "clickhouse, mongodb")
	t.Setenv("CH_BATCH_SIZE", "500")
	t.Setenv("MONGO_BATCH_SIZE", "50")
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")
	t.Setenv("MONGO_URI", "mongodb://mongo.internal:27017")
	t.Setenv("QUERIES", "movie_avg,user_likes")
	t.Setenv("REPORT_ARCHIVE_DIR", "/var/lib/ugcbench/archive")
	t.Setenv("CONTENT_EVENTS", "25")

	cfg := DefaultConfig()
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, int64(7), cfg.Workload.Seed)
	assert.Equal(t, int64(100), cfg.Workload.Users)
	assert.Equal(t, int64(50), cfg.Workload.Movies)
	assert.Equal(t, int64(1000), cfg.Workload.Likes)
	assert.Equal(t, 2*time.Second, cfg.Bench.Duration)
	assert.Equal(t, 4, cfg.Bench.Concurrency)
	assert.Equal(t, "/var/lib/ugcbench/archive", cfg.Report.ArchiveDir)
	assert.Equal(t, 25, cfg.Content.Events)
	kinds, err := cfg.Bench.QueryKinds()
	require.NoError(t, err)
	assert.Equal(t, []types.QueryKind{types.QueryMovieAvg, types.QueryUserLikes}, kinds)

	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, 500, cfg.Backends[0].BatchSize)
	assert.Equal(t, "ch.internal", cfg.Backends[0].ClickHouse.Host)
	assert.Equal(t, "analytics", cfg.Backends[0].ClickHouse.Database)
	assert.Equal(t, 50, cfg.Backends[1].BatchSize)
	assert.Equal(t, "mongodb://mongo.internal:27017", cfg.Backends[1].MongoDB.URI)
}

func TestLoadFromEnv_UnsetKeepsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, LoadFromEnv(cfg))
	assert.Equal(t, DefaultConfig().Workload, cfg.Workload)
}

func TestLoadFromEnv_DurationAcceptsGoSyntax(t *testing.T) {
	t.Setenv("DURATION", "1m30s")
	cfg := DefaultConfig()
	require.NoError(t, LoadFromEnv(cfg))
	assert.Equal(t, 90*time.Second, cfg.Bench.Duration)

	t.Setenv("DURATION", "soon")
	assert.Error(t, LoadFromEnv(DefaultConfig()))
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	content := `
workload:
  dir: /tmp/ugc
  seed: 99
  users: 10
  movies: 5
bench:
  duration: 3s
  concurrency: 2
backends:
  - name: local
    type: sqlite
  - type: memory
    memory:
      visibility_lag: 20ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	cfg.Resolve()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(99), cfg.Workload.Seed)
	assert.Equal(t, 3*time.Second, cfg.Bench.Duration)
	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, "local", cfg.Backends[0].Name)
	assert.Equal(t, filepath.Join("/tmp/ugc", "local.db"), cfg.Backends[0].SQLite.Path)
	assert.Equal(t, 10_000, cfg.Backends[0].BatchSize)
	assert.Equal(t, "memory", cfg.Backends[1].Name)
	assert.Equal(t, 20*time.Millisecond, cfg.Backends[1].Memory.VisibilityLag)
	assert.Equal(t, 1_000, cfg.Backends[1].BatchSize)
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.toml")
	require.NoError(t, os.WriteFile(path, []byte("seed = 1"), 0644))
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero users", func(c *Config) { c.Workload.Users = 0 }},
		{"movies beyond pair key range", func(c *Config) { c.Workload.Movies = 1 << 32 }},
		{"negative likes", func(c *Config) { c.Workload.Likes = -1 }},
		{"zero skew", func(c *Config) { c.Workload.Skew = 0 }},
		{"unknown compression", func(c *Config) { c.Workload.Compression = "gzip" }},
		{"zero concurrency", func(c *Config) { c.Bench.Concurrency = 0 }},
		{"zero duration", func(c *Config) { c.Bench.Duration = 0 }},
		{"unknown query", func(c *Config) { c.Bench.Queries = []string{"user_comments"} }},
		{"negative content events", func(c *Config) { c.Content.Events = -1 }},
		{"content phase on unknown store", func(c *Config) { c.Content.Events = 1; c.Content.Type = "redis" }},
		{"no backends", func(c *Config) { c.Backends = nil }},
		{"unknown backend", func(c *Config) { c.Backends[0].Type = "cassandra" }},
		{"duplicate names", func(c *Config) { c.Backends[1].Name = c.Backends[0].Name }},
		{"zero batch", func(c *Config) { c.Backends[0].BatchSize = 0 }},
		{"interval above timeout", func(c *Config) { c.Backends[0].Probe.PollInterval = time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("UGCBENCH_TEST_DOTENV=loaded\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("UGCBENCH_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("UGCBENCH_TEST_DOTENV"))
}

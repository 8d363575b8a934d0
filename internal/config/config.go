// Package config provides unified configuration for the benchmark harness.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/ugcbench/pkg/types"
)

// Backend types understood by the adapter registry.
const (
	BackendClickHouse = "clickhouse"
	BackendMongoDB    = "mongodb"
	BackendSQLite     = "sqlite"
	BackendMemory     = "memory"
)

// Dataset compression modes.
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
)

// maxID keeps ids packable into a single uint64 pair key.
const maxID = 1<<31 - 1

// Config holds the unified configuration for all benchmark phases.
type Config struct {
	// Workload controls dataset generation
	Workload WorkloadConfig `json:"workload" yaml:"workload"`

	// Bench controls the concurrent read phase
	Bench BenchConfig `json:"bench" yaml:"bench"`

	// Probe controls the visibility phase
	Probe ProbeConfig `json:"probe" yaml:"probe"`

	// Realtime controls the single-write replay phase
	Realtime RealtimeConfig `json:"realtime" yaml:"realtime"`

	// Backends are benchmarked one after another, in order
	Backends []BackendConfig `json:"backends" yaml:"backends"`

	// Report controls where results are written
	Report ReportConfig `json:"report" yaml:"report"`

	// Content configures the content store collaborator
	Content ContentConfig `json:"content" yaml:"content"`

	// Log configures the zap logger
	Log LogConfig `json:"log" yaml:"log"`
}

// WorkloadConfig holds generator settings.
type WorkloadConfig struct {
	// Dir is where dataset files and the manifest live
	Dir string `json:"dir" yaml:"dir" env:"DATA_DIR"`

	// Seed makes generation reproducible
	Seed int64 `json:"seed" yaml:"seed" env:"SEED"`

	Users        int64 `json:"users" yaml:"users" env:"USERS"`
	Movies       int64 `json:"movies" yaml:"movies" env:"MOVIES"`
	Likes        int64 `json:"likes" yaml:"likes" env:"LIKES"`
	Reviews      int64 `json:"reviews" yaml:"reviews" env:"REVIEWS"`
	MaxReactions int   `json:"max_reactions" yaml:"max_reactions" env:"MAX_REACTIONS"`
	Bookmarks    int64 `json:"bookmarks" yaml:"bookmarks" env:"BOOKMARKS"`

	// Skew is the Pareto shape of movie popularity (lower is more skewed)
	Skew float64 `json:"skew" yaml:"skew" env:"SKEW"`

	// Compression is none or snappy
	Compression string `json:"compression" yaml:"compression" env:"COMPRESSION"`
}

// BenchConfig holds read phase settings.
type BenchConfig struct {
	// Duration is how long each backend's read phase runs
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Concurrency is the number of query workers per backend
	Concurrency int `json:"concurrency" yaml:"concurrency" env:"CONCURRENCY"`

	// Queries restricts the read mix to these query names; empty runs all
	Queries []string `json:"queries" yaml:"queries" env:"QUERIES" envSeparator:","`
}

// QueryKinds parses Queries. An empty list returns nil, meaning every kind.
func (b BenchConfig) QueryKinds() ([]types.QueryKind, error) {
	var kinds []types.QueryKind
	for _, q := range b.Queries {
		k, err := types.ParseQueryKind(strings.TrimSpace(q))
		if err != nil {
			return nil, fmt.Errorf("bench.queries: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// ProbeConfig holds visibility phase settings shared by all backends.
type ProbeConfig struct {
	// Runs is the number of probes per backend
	Runs int `json:"runs" yaml:"runs" env:"PROBE_RUNS"`

	// UserBase is the first user id; probe i writes as UserBase+i
	UserBase int64 `json:"user_base" yaml:"user_base" env:"PROBE_USER_BASE"`

	// MovieID is the movie every probe likes
	MovieID int64 `json:"movie_id" yaml:"movie_id" env:"PROBE_MOVIE_ID"`
}

// RealtimeConfig holds replay phase settings.
type RealtimeConfig struct {
	// Events is the number of single writes replayed per backend (0 disables)
	Events int `json:"events" yaml:"events" env:"REALTIME_EVENTS"`
}

// BackendConfig describes one storage backend under test.
type BackendConfig struct {
	// Name labels the backend in logs and the report
	Name string `json:"name" yaml:"name"`

	// Type is clickhouse, mongodb, sqlite or memory
	Type string `json:"type" yaml:"type"`

	// BatchSize is the number of records per bulk insert call
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Probe overrides the visibility timing for this backend
	Probe ProbeTiming `json:"probe" yaml:"probe"`

	ClickHouse ClickHouseConfig `json:"clickhouse" yaml:"clickhouse"`
	MongoDB    MongoConfig      `json:"mongodb" yaml:"mongodb"`
	SQLite     SQLiteConfig     `json:"sqlite" yaml:"sqlite"`
	Memory     MemoryConfig     `json:"memory" yaml:"memory"`
}

// ProbeTiming bounds one backend's visibility polling loop.
type ProbeTiming struct {
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

// ClickHouseConfig holds ClickHouse connection parameters.
type ClickHouseConfig struct {
	Host     string `json:"host" yaml:"host" env:"CLICKHOUSE_HOST"`
	Port     int    `json:"port" yaml:"port" env:"CLICKHOUSE_PORT"`
	Database string `json:"database" yaml:"database" env:"CLICKHOUSE_DB"`
	User     string `json:"user" yaml:"user" env:"CLICKHOUSE_USER"`
	Password string `json:"password" yaml:"password" env:"CLICKHOUSE_PASSWORD"`
}

// MongoConfig holds MongoDB connection parameters.
type MongoConfig struct {
	URI      string `json:"uri" yaml:"uri" env:"MONGO_URI"`
	Database string `json:"database" yaml:"database" env:"MONGO_DB"`

	// WriteConcern is "majority", "1" or any other w value
	WriteConcern string `json:"write_concern" yaml:"write_concern" env:"MONGO_WRITE_CONCERN"`
}

// SQLiteConfig holds the embedded store location.
type SQLiteConfig struct {
	// Path is the database file; empty resolves under the data dir
	Path string `json:"path" yaml:"path" env:"SQLITE_PATH"`
}

// MemoryConfig tunes the in-process document store.
type MemoryConfig struct {
	// VisibilityLag delays when writes become readable
	VisibilityLag time.Duration `json:"visibility_lag" yaml:"visibility_lag"`
}

// ReportConfig holds report output settings.
type ReportConfig struct {
	// Dir is the results directory; empty resolves to <workload.dir>/results
	Dir string `json:"dir" yaml:"dir" env:"RESULTS_DIR"`

	// FileName is the JSON report file name inside Dir
	FileName string `json:"file_name" yaml:"file_name" env:"REPORT_FILE"`

	// PromTextfile, when set, also writes the report as Prometheus gauges
	PromTextfile string `json:"prom_textfile" yaml:"prom_textfile" env:"PROM_TEXTFILE"`

	// ArchiveDir copies every run's files under <dir>/<s3.prefix>/<run id> when
	// no S3 bucket is set
	ArchiveDir string `json:"archive_dir" yaml:"archive_dir" env:"REPORT_ARCHIVE_DIR"`

	// S3 uploads the report when Bucket is set
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds report upload settings.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket" env:"REPORT_S3_BUCKET"`
	Region       string `json:"region" yaml:"region" env:"REPORT_S3_REGION"`
	Endpoint     string `json:"endpoint" yaml:"endpoint" env:"REPORT_S3_ENDPOINT"`
	Prefix       string `json:"prefix" yaml:"prefix" env:"REPORT_S3_PREFIX"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style" env:"REPORT_S3_PATH_STYLE"`
}

// ContentConfig configures the content store used by the bootstrap command
// and the content phase.
type ContentConfig struct {
	// Type is mongodb or sqlite
	Type       string `json:"type" yaml:"type" env:"CONTENT_TYPE"`
	MongoURI   string `json:"mongo_uri" yaml:"mongo_uri" env:"CONTENT_MONGO_URI"`
	Database   string `json:"database" yaml:"database" env:"CONTENT_DB"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path" env:"CONTENT_SQLITE_PATH"`

	// Events is the number of workload events replayed as content store
	// calls (0 disables the content phase)
	Events int `json:"events" yaml:"events" env:"CONTENT_EVENTS"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level" env:"LOG_LEVEL"`

	// Format is json or console
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// DefaultConfig returns the default configuration: a ClickHouse and a
// MongoDB backend on their conventional local addresses.
func DefaultConfig() *Config {
	return &Config{
		Workload: WorkloadConfig{
			Dir:          "./data",
			Seed:         42,
			Users:        100_000,
			Movies:       10_000,
			Likes:        1_000_000,
			Reviews:      100_000,
			MaxReactions: 50,
			Bookmarks:    500_000,
			Skew:         1.3,
			Compression:  CompressionNone,
		},
		Bench: BenchConfig{
			Duration:    300 * time.Second,
			Concurrency: 50,
		},
		Probe: ProbeConfig{
			Runs:     1000,
			UserBase: 1000,
			MovieID:  42,
		},
		Realtime: RealtimeConfig{
			Events: 1000,
		},
		Backends: []BackendConfig{
			DefaultBackend(BackendClickHouse),
			DefaultBackend(BackendMongoDB),
		},
		Report: ReportConfig{
			FileName: "benchmark_report.json",
		},
		Content: ContentConfig{
			Type:     BackendMongoDB,
			MongoURI: "mongodb://localhost:27017",
			Database: "content",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultBackend returns the default settings for a backend type. Document
// stores get smaller batches because each upsert is costlier per item.
func DefaultBackend(typ string) BackendConfig {
	b := BackendConfig{Name: typ, Type: typ}
	switch typ {
	case BackendClickHouse:
		b.BatchSize = 10_000
		b.Probe = ProbeTiming{Timeout: 5 * time.Second, PollInterval: 10 * time.Millisecond}
		b.ClickHouse = ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "analytics",
			User:     "benchmark",
			Password: "benchmark",
		}
	case BackendMongoDB:
		b.BatchSize = 1_000
		b.Probe = ProbeTiming{Timeout: time.Second, PollInterval: 5 * time.Millisecond}
		b.MongoDB = MongoConfig{
			URI:          "mongodb://localhost:27017",
			Database:     "analytics",
			WriteConcern: "majority",
		}
	case BackendSQLite:
		b.BatchSize = 10_000
		b.Probe = ProbeTiming{Timeout: time.Second, PollInterval: 5 * time.Millisecond}
	default:
		b.BatchSize = 1_000
		b.Probe = ProbeTiming{Timeout: time.Second, PollInterval: 5 * time.Millisecond}
	}
	return b
}

// Resolve resolves relative paths and fills defaults derived from the data dir.
func (c *Config) Resolve() {
	if c.Workload.Dir == "" {
		c.Workload.Dir = "./data"
	}
	if c.Workload.Compression == "" {
		c.Workload.Compression = CompressionNone
	}
	if c.Report.Dir == "" {
		c.Report.Dir = filepath.Join(c.Workload.Dir, "results")
	}
	if c.Report.FileName == "" {
		c.Report.FileName = "benchmark_report.json"
	}
	if c.Content.SQLitePath == "" {
		c.Content.SQLitePath = filepath.Join(c.Workload.Dir, "content.db")
	}

	for i := range c.Backends {
		b := &c.Backends[i]
		def := DefaultBackend(b.Type)
		if b.Name == "" {
			b.Name = b.Type
		}
		if b.BatchSize == 0 {
			b.BatchSize = def.BatchSize
		}
		if b.Probe.Timeout == 0 {
			b.Probe.Timeout = def.Probe.Timeout
		}
		if b.Probe.PollInterval == 0 {
			b.Probe.PollInterval = def.Probe.PollInterval
		}
		if b.Type == BackendSQLite && b.SQLite.Path == "" {
			b.SQLite.Path = filepath.Join(c.Workload.Dir, b.Name+".db")
		}
	}
}

// ReportPath returns the path of the JSON report.
func (c *Config) ReportPath() string {
	return filepath.Join(c.Report.Dir, c.Report.FileName)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	w := c.Workload
	if w.Dir == "" {
		return fmt.Errorf("workload.dir is required")
	}
	if w.Users < 1 || w.Users > maxID {
		return fmt.Errorf("workload.users must be between 1 and %d, got %d", maxID, w.Users)
	}
	if w.Movies < 1 || w.Movies > maxID {
		return fmt.Errorf("workload.movies must be between 1 and %d, got %d", maxID, w.Movies)
	}
	if w.Likes < 0 || w.Reviews < 0 || w.Bookmarks < 0 || w.MaxReactions < 0 {
		return fmt.Errorf("workload counts must not be negative")
	}
	if w.Skew <= 0 {
		return fmt.Errorf("workload.skew must be positive, got %v", w.Skew)
	}
	if w.Compression != CompressionNone && w.Compression != CompressionSnappy {
		return fmt.Errorf("invalid compression: %s (must be none or snappy)", w.Compression)
	}

	if c.Bench.Concurrency < 1 {
		return fmt.Errorf("bench.concurrency must be at least 1, got %d", c.Bench.Concurrency)
	}
	if c.Bench.Duration <= 0 {
		return fmt.Errorf("bench.duration must be positive, got %s", c.Bench.Duration)
	}
	if _, err := c.Bench.QueryKinds(); err != nil {
		return err
	}
	if c.Probe.Runs < 0 || c.Realtime.Events < 0 || c.Content.Events < 0 {
		return fmt.Errorf("probe.runs, realtime.events and content.events must not be negative")
	}
	if c.Content.Events > 0 && c.Content.Type != BackendMongoDB && c.Content.Type != BackendSQLite {
		return fmt.Errorf("invalid content type: %s (must be mongodb or sqlite)", c.Content.Type)
	}
	if c.Probe.UserBase < 1 || c.Probe.MovieID < 1 {
		return fmt.Errorf("probe.user_base and probe.movie_id must be positive")
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}
	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if err := b.Validate(); err != nil {
			return err
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend name: %s", b.Name)
		}
		seen[b.Name] = true
	}

	return nil
}

// Validate validates a single backend.
func (b BackendConfig) Validate() error {
	switch b.Type {
	case BackendClickHouse, BackendMongoDB, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("invalid backend type: %s (must be clickhouse, mongodb, sqlite or memory)", b.Type)
	}
	if b.Name == "" {
		return fmt.Errorf("backend name is required")
	}
	if b.BatchSize < 1 {
		return fmt.Errorf("backend %s: batch_size must be at least 1, got %d", b.Name, b.BatchSize)
	}
	if b.Probe.Timeout <= 0 || b.Probe.PollInterval <= 0 {
		return fmt.Errorf("backend %s: probe timeout and poll_interval must be positive", b.Name)
	}
	if b.Probe.PollInterval > b.Probe.Timeout {
		return fmt.Errorf("backend %s: probe poll_interval %s exceeds timeout %s", b.Name, b.Probe.PollInterval, b.Probe.Timeout)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv applies environment overrides. Names follow the deployment
// scripts (SEED, USERS, CLICKHOUSE_HOST, MONGO_URI, ...). BACKENDS
// replaces the backend list with defaults for the listed types.
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("BACKENDS"); v != "" {
		var backends []BackendConfig
		for _, typ := range strings.Split(v, ",") {
			typ = strings.TrimSpace(typ)
			if typ == "" {
				continue
			}
			backends = append(backends, DefaultBackend(typ))
		}
		cfg.Backends = backends
	}

	targets := []interface{}{
		&cfg.Workload,
		&cfg.Bench,
		&cfg.Probe,
		&cfg.Realtime,
		&cfg.Report,
		&cfg.Content,
		&cfg.Log,
	}
	for _, t := range targets {
		if err := env.Parse(t); err != nil {
			return fmt.Errorf("failed to parse environment: %w", err)
		}
	}

	// DURATION is plain seconds; Go durations also work.
	if v := os.Getenv("DURATION"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid DURATION %q: %w", v, err)
		}
		cfg.Bench.Duration = d
	}

	batchEnv := map[string]string{
		BackendClickHouse: "CH_BATCH_SIZE",
		BackendMongoDB:    "MONGO_BATCH_SIZE",
		BackendSQLite:     "SQLITE_BATCH_SIZE",
		BackendMemory:     "MEMORY_BATCH_SIZE",
	}
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if name, ok := batchEnv[b.Type]; ok {
			if v := os.Getenv(name); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("invalid %s %q: %w", name, v, err)
				}
				b.BatchSize = n
			}
		}

		var err error
		switch b.Type {
		case BackendClickHouse:
			err = env.Parse(&b.ClickHouse)
		case BackendMongoDB:
			err = env.Parse(&b.MongoDB)
		case BackendSQLite:
			err = env.Parse(&b.SQLite)
		}
		if err != nil {
			return fmt.Errorf("failed to parse %s environment: %w", b.Name, err)
		}
	}

	return nil
}

// Load builds the effective configuration: defaults, then the optional file,
// then the environment, then derived paths.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// EnsureDirectories creates the data and results directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Workload.Dir, c.Report.Dir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

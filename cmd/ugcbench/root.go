package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/ugcbench/internal/bench"
	"github.com/arkilian/ugcbench/internal/config"
	"github.com/arkilian/ugcbench/internal/logging"
)

var rootFlags struct {
	configFile string
	envFile    string
	dataDir    string
	logLevel   string
	logFormat  string
}

// Loaded by the root PersistentPreRunE for every subcommand.
var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ugcbench",
	Short: "Cross-backend storage benchmark for user-generated content",
	Long: `ugcbench generates a reproducible likes/reviews/reactions/bookmarks
dataset, bulk-loads it into each configured backend, drives concurrent point
queries, and measures how long a write takes to become visible to reads.

Configuration is read from --config (YAML or JSON), then overridden by
environment variables (SEED, USERS, MOVIES, BACKENDS, CLICKHOUSE_HOST,
MONGO_URI, ...). A .env file in the working directory is loaded first.

Examples:
  ugcbench generate
  ugcbench run --config bench.yaml
  BACKENDS=sqlite,memory ugcbench run
  ugcbench read --duration 30s --concurrency 16
  CONTENT_TYPE=sqlite CONTENT_EVENTS=1000 ugcbench content
  ugcbench report show
  REPORT_ARCHIVE_DIR=./archive ugcbench report list`,
	SilenceUsage:      true,
	Version:           fmt.Sprintf("%s (commit: %s)", version, commit),
	PersistentPreRunE: loadEnvironment,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configFile, "config", "", "configuration file (YAML or JSON)")
	pf.StringVar(&rootFlags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&rootFlags.dataDir, "data-dir", "", "dataset directory (overrides workload.dir)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "log format: json or console")

	rootCmd.AddCommand(generateCmd, ingestCmd, readCmd, probeCmd, contentCmd, runCmd, bootstrapCmd, reportCmd)
}

func loadEnvironment(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(rootFlags.envFile); err != nil {
		return err
	}
	c, err := config.Load(rootFlags.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if rootFlags.dataDir != "" {
		c.Workload.Dir = rootFlags.dataDir
		c.Report.Dir = ""
		c.Content.SQLitePath = ""
		for i := range c.Backends {
			if c.Backends[i].Type == config.BackendSQLite {
				c.Backends[i].SQLite.Path = ""
			}
		}
		c.Resolve()
	}
	if rootFlags.logLevel != "" {
		c.Log.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		c.Log.Format = rootFlags.logFormat
	}

	l, err := logging.New(c.Log.Level, c.Log.Format)
	if err != nil {
		return err
	}
	cfg, logger = c, l.With(zap.String("command", cmd.Name()))
	return nil
}

func newRunner() (*bench.Runner, error) {
	return bench.New(cfg, logger)
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/ugcbench/internal/bench"
	"github.com/arkilian/ugcbench/internal/content"
	"github.com/arkilian/ugcbench/internal/metrics"
	"github.com/arkilian/ugcbench/internal/sink"
	"github.com/arkilian/ugcbench/pkg/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the synthetic dataset and its manifest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		runner, err := newRunner()
		if err != nil {
			return err
		}
		m, err := runner.Generate(cmd.Context())
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Entity", "Records", "Bytes", "Digest")
		for _, e := range types.Entities {
			f := m.Files[e]
			table.Append(string(e), fmt.Sprint(f.Records), fmt.Sprint(f.Bytes), f.Digest)
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Printf("dataset %s in %s\n", m.DatasetDigest(), cfg.Workload.Dir)
		return nil
	},
}

var readFlags struct {
	duration    time.Duration
	concurrency int
	queries     []string
}

var ingestCmd = phaseCommand("ingest", "Bulk-load the dataset into every backend", bench.Phases{Ingest: true})

var readCmd = phaseCommand("read", "Run the concurrent point-query phase", bench.Phases{Read: true})

var probeCmd = phaseCommand("probe", "Measure write-to-visible latency", bench.Phases{Visibility: true})

var contentCmd = phaseCommand("content", "Replay workload events as content store calls", bench.Phases{Content: true})

var runCmd = phaseCommand("run", "Run every phase, generating the dataset if needed", bench.AllPhases)

func init() {
	for _, c := range []*cobra.Command{readCmd, runCmd} {
		c.Flags().DurationVar(&readFlags.duration, "duration", 0, "read phase duration per backend (overrides config)")
		c.Flags().IntVar(&readFlags.concurrency, "concurrency", 0, "query workers per backend (overrides config)")
		c.Flags().StringSliceVar(&readFlags.queries, "query", nil, "restrict the read mix to these query kinds, e.g. user_likes,movie_avg (overrides config)")
	}
}

// phaseCommand builds a command that runs phases against every backend and
// publishes the report.
func phaseCommand(use, short string, phases bench.Phases) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if readFlags.duration > 0 {
				cfg.Bench.Duration = readFlags.duration
			}
			if readFlags.concurrency > 0 {
				cfg.Bench.Concurrency = readFlags.concurrency
			}
			if len(readFlags.queries) > 0 {
				cfg.Bench.Queries = readFlags.queries
			}
			runner, err := newRunner()
			if err != nil {
				return err
			}

			report, err := runner.Run(cmd.Context(), phases)
			if err != nil {
				return err
			}
			files, err := runner.Publish(cmd.Context(), report)
			if err != nil {
				return err
			}
			if err := report.PrintTable(os.Stdout); err != nil {
				return err
			}

			failed := 0
			for _, b := range report.Backends {
				failed += len(b.Failures)
			}
			if report.Content != nil && report.Content.Failure != nil {
				failed++
			}
			logger.Info("report written", zap.Strings("files", files), zap.Int("failed_phases", failed))
			return nil
		},
	}
}

var bootstrapFlags struct {
	storeType string
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the content store's tables and unique indexes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cc := cfg.Content
		if bootstrapFlags.storeType != "" {
			cc.Type = bootstrapFlags.storeType
		}
		store, err := content.Open(cmd.Context(), cc, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Bootstrap(cmd.Context())
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapFlags.storeType, "type", "", "content store type: mongodb or sqlite (overrides config)")
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect written and archived reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Print a JSON report as a table (defaults to the configured report path)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg.Resolve()
		path := cfg.ReportPath()
		if len(args) == 1 {
			path = args[0]
		}
		report, err := metrics.ReadJSON(path)
		if err != nil {
			return err
		}
		fmt.Printf("run %s seed %d dataset %s\n", report.RunID, report.Seed, report.DatasetDigest)
		return report.PrintTable(os.Stdout)
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the run ids published to the report sink",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSink(cmd)
		if err != nil {
			return err
		}
		runs, err := sink.Runs(cmd.Context(), s, cfg.Report.S3.Prefix)
		if err != nil {
			return err
		}
		for _, id := range runs {
			fmt.Println(id)
		}
		return nil
	},
}

var reportFetchCmd = &cobra.Command{
	Use:   "fetch <run-id> [dest-dir]",
	Short: "Download a published run's files and print its report",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSink(cmd)
		if err != nil {
			return err
		}
		dest := filepath.Join(".", args[0])
		if len(args) == 2 {
			dest = args[1]
		}
		paths, err := sink.FetchRun(cmd.Context(), s, cfg.Report.S3.Prefix, args[0], dest)
		if err != nil {
			return err
		}
		logger.Info("run fetched", zap.String("run_id", args[0]), zap.Strings("files", paths))
		for _, p := range paths {
			if filepath.Ext(p) == ".json" {
				return reportShowCmd.RunE(cmd, []string{p})
			}
		}
		return nil
	},
}

func openSink(cmd *cobra.Command) (sink.Sink, error) {
	s, err := sink.New(cmd.Context(), cfg.Report)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("no report sink configured: set report.s3.bucket or report.archive_dir")
	}
	return s, nil
}

func init() {
	reportCmd.AddCommand(reportShowCmd, reportListCmd, reportFetchCmd)
}

// Package bench runs the benchmark phases against each configured backend
// and assembles the report.
package bench

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arkilian/ugcbench/internal/adapter"
	"github.com/arkilian/ugcbench/internal/config"
	"github.com/arkilian/ugcbench/internal/content"
	"github.com/arkilian/ugcbench/internal/driver"
	"github.com/arkilian/ugcbench/internal/ingest"
	"github.com/arkilian/ugcbench/internal/metrics"
	"github.com/arkilian/ugcbench/internal/probe"
	"github.com/arkilian/ugcbench/internal/realtime"
	"github.com/arkilian/ugcbench/internal/sink"
	"github.com/arkilian/ugcbench/internal/workload"

	// Backends register themselves with the adapter registry.
	_ "github.com/arkilian/ugcbench/internal/backend/clickhouse"
	_ "github.com/arkilian/ugcbench/internal/backend/memory"
	_ "github.com/arkilian/ugcbench/internal/backend/mongodb"
	_ "github.com/arkilian/ugcbench/internal/backend/sqlite"
)

// Phases selects which phases a run executes. Content runs once per run
// against the content store; the others run per backend.
type Phases struct {
	Ingest     bool
	Read       bool
	Visibility bool
	Realtime   bool
	Content    bool
}

// AllPhases runs everything.
var AllPhases = Phases{Ingest: true, Read: true, Visibility: true, Realtime: true, Content: true}

func (p Phases) perBackend() bool {
	return p.Ingest || p.Read || p.Visibility || p.Realtime
}

// Runner owns one benchmark invocation.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time
}

// New resolves and validates cfg and creates the data and results
// directories.
func New(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &Runner{cfg: cfg, logger: logger, now: time.Now}, nil
}

// Config returns the resolved configuration.
func (r *Runner) Config() *config.Config { return r.cfg }

// Generate writes a fresh dataset, replacing any existing one.
func (r *Runner) Generate(ctx context.Context) (*workload.Manifest, error) {
	w := r.cfg.Workload
	gen := workload.NewGenerator(w.Dir, w.Compression, workload.ParamsFromConfig(w), r.logger)
	return gen.Generate(ctx)
}

// Dataset returns the verified dataset in the data dir. When generate is set,
// a missing or corrupt dataset, or one built from different parameters, is
// regenerated.
func (r *Runner) Dataset(ctx context.Context, generate bool) (*workload.Manifest, error) {
	dir := r.cfg.Workload.Dir
	m, err := workload.LoadManifest(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if !generate {
			return nil, fmt.Errorf("no dataset in %s: run generate first", dir)
		}
		r.logger.Info("dataset missing, generating", zap.String("dir", dir))
		return r.Generate(ctx)
	case err != nil:
		return nil, err
	}

	want := workload.ParamsFromConfig(r.cfg.Workload)
	if generate && (m.Params != want || m.Compression != r.cfg.Workload.Compression) {
		r.logger.Info("dataset parameters changed, regenerating", zap.String("dir", dir))
		return r.Generate(ctx)
	}
	if err := m.Verify(dir); err != nil {
		if !generate {
			return nil, err
		}
		r.logger.Warn("dataset failed verification, regenerating", zap.String("dir", dir), zap.Error(err))
		return r.Generate(ctx)
	}
	return m, nil
}

// Run executes the selected phases against every backend in order. Phase
// failures are recorded in the report; the returned error is reserved for
// problems that prevent any benchmarking, such as a missing dataset.
func (r *Runner) Run(ctx context.Context, phases Phases) (*metrics.Report, error) {
	var m *workload.Manifest
	if phases.Ingest {
		var err error
		if m, err = r.Dataset(ctx, true); err != nil {
			return nil, err
		}
	} else if loaded, err := workload.LoadManifest(r.cfg.Workload.Dir); err == nil {
		m = loaded
	}

	report := metrics.NewReport(uuid.NewString(), r.cfg.Workload.Seed, r.now())
	report.Meta = r.meta()
	if m != nil {
		report.DatasetDigest = m.DatasetDigest()
	}

	logger := r.logger.With(zap.String("run_id", report.RunID))
	logger.Info("benchmark started", zap.Int("backends", len(r.cfg.Backends)))

	for _, bc := range r.cfg.Backends {
		if !phases.perBackend() {
			break
		}
		if err := ctx.Err(); err != nil {
			report.Backend(bc.Name, bc.Type).Fail(metrics.PhaseConnect, err)
			continue
		}
		r.runBackend(ctx, bc, m, phases, report.Backend(bc.Name, bc.Type), logger)
	}

	if phases.Content && r.cfg.Content.Events > 0 {
		r.runContent(ctx, report, logger)
	}

	report.Finish(r.now())
	logger.Info("benchmark finished", zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (r *Runner) meta() metrics.Meta {
	batches := make(map[string]int, len(r.cfg.Backends))
	for _, b := range r.cfg.Backends {
		batches[b.Name] = b.BatchSize
	}
	return metrics.Meta{
		Users:          r.cfg.Workload.Users,
		Movies:         r.cfg.Workload.Movies,
		Skew:           r.cfg.Workload.Skew,
		BatchSizes:     batches,
		Concurrency:    r.cfg.Bench.Concurrency,
		DurationSec:    r.cfg.Bench.Duration.Seconds(),
		ProbeRuns:      r.cfg.Probe.Runs,
		RealtimeEvents: r.cfg.Realtime.Events,
		ContentEvents:  r.cfg.Content.Events,
	}
}

// runContent replays workload events as content store calls. Its failure is
// recorded in the report's content section.
func (r *Runner) runContent(ctx context.Context, report *metrics.Report, logger *zap.Logger) {
	cc := r.cfg.Content
	logger = logger.With(zap.String("content_store", cc.Type))

	var res content.ReplayResult
	store, err := content.Open(ctx, cc, r.logger)
	if err == nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("close failed", zap.Error(err))
			}
		}()
		err = store.Bootstrap(ctx)
	}
	if err == nil {
		events := workload.NewEventStream(workload.ParamsFromConfig(r.cfg.Workload))
		res, err = content.Replay(ctx, store, events, cc.Events, r.logger)
	}
	if err != nil {
		logger.Error("content phase failed", zap.Error(err))
	}
	report.SetContent(cc.Type, content.Ops, res.Events, res.LatenciesMs, err)
}

// runBackend runs the phases against one backend. A connect or setup failure
// skips the backend; any other phase failure is recorded and the next phase
// still runs.
func (r *Runner) runBackend(ctx context.Context, bc config.BackendConfig, m *workload.Manifest, phases Phases, br *metrics.BackendReport, logger *zap.Logger) {
	logger = logger.With(zap.String("backend", bc.Name))

	a, err := adapter.Open(ctx, bc, r.logger)
	if err != nil {
		logger.Error("connect failed", zap.Error(err))
		br.Fail(metrics.PhaseConnect, err)
		return
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()
	if err := a.Setup(ctx); err != nil {
		logger.Error("setup failed", zap.Error(err))
		br.Fail(metrics.PhaseConnect, err)
		return
	}

	if phases.Ingest && m != nil {
		engine := ingest.NewEngine(r.cfg.Workload.Dir, m, r.logger)
		results, err := engine.All(ctx, a, bc.BatchSize)
		for _, res := range results {
			br.Ingest[res.Entity] = metrics.IngestResult{
				Label:      res.Label,
				Rows:       res.Rows,
				Seconds:    res.Seconds,
				RowsPerSec: res.RowsPerSec,
			}
		}
		if err != nil {
			br.Fail(metrics.PhaseIngest, err)
		}
	}

	if phases.Read {
		// Validate has already parsed the query names.
		kinds, _ := r.cfg.Bench.QueryKinds()
		res, err := driver.Run(ctx, a, driver.Config{
			Concurrency: r.cfg.Bench.Concurrency,
			Duration:    r.cfg.Bench.Duration,
			Users:       r.cfg.Workload.Users,
			Movies:      r.cfg.Workload.Movies,
			Seed:        r.cfg.Workload.Seed,
			Kinds:       kinds,
		}, r.logger)
		if err != nil {
			br.Fail(metrics.PhaseRead, err)
		} else {
			br.SetReads(res.Samples)
		}
	}

	if phases.Visibility && r.cfg.Probe.Runs > 0 {
		res, err := probe.Run(ctx, a, probe.Config{
			Runs:         r.cfg.Probe.Runs,
			UserBase:     r.cfg.Probe.UserBase,
			MovieID:      r.cfg.Probe.MovieID,
			Timeout:      bc.Probe.Timeout,
			PollInterval: bc.Probe.PollInterval,
		}, r.logger)
		if err != nil {
			br.Fail(metrics.PhaseVisibility, err)
		} else {
			br.SetVisibility(res.LatenciesMs, res.Samples, res.Timeouts)
		}
	}

	if phases.Realtime && r.cfg.Realtime.Events > 0 {
		events := workload.NewEventStream(workload.ParamsFromConfig(r.cfg.Workload))
		res, err := realtime.Replay(ctx, a, events, r.cfg.Realtime.Events, r.logger)
		if err != nil {
			br.Fail(metrics.PhaseRealtime, err)
		} else {
			br.SetRealtime(res.LatenciesMs)
		}
	}

	logger.Info("backend finished", zap.Int("failures", len(br.Failures)))
}

// Publish writes the JSON report, the optional Prometheus textfile, and
// copies both to the sink when a bucket or archive directory is configured.
// It returns the local files written.
func (r *Runner) Publish(ctx context.Context, report *metrics.Report) ([]string, error) {
	path := r.cfg.ReportPath()
	if err := report.WriteJSON(path); err != nil {
		return nil, err
	}
	files := []string{path}

	if prom := r.cfg.Report.PromTextfile; prom != "" {
		if err := os.MkdirAll(filepath.Dir(prom), 0755); err != nil {
			return files, fmt.Errorf("failed to create textfile directory: %w", err)
		}
		if err := report.WritePrometheus(prom); err != nil {
			return files, err
		}
		files = append(files, prom)
	}

	s, err := sink.New(ctx, r.cfg.Report)
	if err != nil {
		return files, err
	}
	if s != nil {
		keys, err := sink.PublishRun(ctx, s, r.cfg.Report.S3.Prefix, report.RunID, files...)
		if err != nil {
			return files, err
		}
		r.logger.Info("report published", zap.String("sink", sink.Describe(r.cfg.Report)), zap.Strings("keys", keys))
	}
	return files, nil
}

package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/arkilian/ugcbench/pkg/types"
)

// Phases a backend run goes through, as named in failure entries.
const (
	PhaseConnect    = "connect"
	PhaseIngest     = "ingest"
	PhaseRead       = "read"
	PhaseVisibility = "visibility"
	PhaseRealtime   = "realtime"
	PhaseContent    = "content"
)

// IngestResult is the throughput of one entity load.
type IngestResult struct {
	Label      string   `json:"label"`
	Rows       int64    `json:"rows"`
	Seconds    float64  `json:"seconds"`
	RowsPerSec *float64 `json:"rows_per_sec"`
}

// Visibility summarizes a probe series. Timed out probes count toward
// Samples and Timeouts only.
type Visibility struct {
	Latency  Latency `json:"latency"`
	Samples  int     `json:"samples"`
	Timeouts int     `json:"timeouts"`
}

// Failure records a (backend, phase) that did not complete.
type Failure struct {
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// BackendReport holds every measurement taken against one backend.
type BackendReport struct {
	Type       string                  `json:"type"`
	Ingest     map[string]IngestResult `json:"ingest"` // keyed by entity
	Reads      map[string]Latency      `json:"reads"`
	Visibility *Visibility             `json:"visibility"`
	Realtime   map[string]Latency      `json:"realtime,omitempty"`
	Failures   []Failure               `json:"failures"`
}

// ContentReport holds the content store call latencies, keyed by operation.
type ContentReport struct {
	Type    string             `json:"type"`
	Events  int                `json:"events"`
	Ops     map[string]Latency `json:"ops"`
	Failure *Failure           `json:"failure,omitempty"`
}

// Meta records the knobs a run used.
type Meta struct {
	Users          int64          `json:"users"`
	Movies         int64          `json:"movies"`
	Skew           float64        `json:"skew"`
	BatchSizes     map[string]int `json:"batch_sizes"`
	Concurrency    int            `json:"concurrency"`
	DurationSec    float64        `json:"duration_sec"`
	ProbeRuns      int            `json:"probe_runs"`
	RealtimeEvents int            `json:"realtime_events"`
	ContentEvents  int            `json:"content_events"`
}

// Report is the full result of a benchmark run.
type Report struct {
	RunID         string                    `json:"run_id"`
	StartedAt     time.Time                 `json:"started_at"`
	FinishedAt    time.Time                 `json:"finished_at"`
	Seed          int64                     `json:"seed"`
	DatasetDigest string                    `json:"dataset_digest"`
	Meta          Meta                      `json:"meta"`
	Backends      map[string]*BackendReport `json:"backends"`
	Content       *ContentReport            `json:"content,omitempty"`
}

// NewReport starts an empty report.
func NewReport(runID string, seed int64, startedAt time.Time) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: startedAt.UTC(),
		Seed:      seed,
		Backends:  make(map[string]*BackendReport),
	}
}

// Backend returns the section for name, creating it on first use.
func (r *Report) Backend(name, typ string) *BackendReport {
	b, ok := r.Backends[name]
	if !ok {
		b = &BackendReport{
			Type:     typ,
			Ingest:   make(map[string]IngestResult),
			Reads:    make(map[string]Latency),
			Failures: []Failure{},
		}
		r.Backends[name] = b
	}
	return b
}

// BackendNames returns backend names in sorted order.
func (r *Report) BackendNames() []string {
	names := make([]string, 0, len(r.Backends))
	for n := range r.Backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fail records a failed phase.
func (b *BackendReport) Fail(phase string, err error) {
	b.Failures = append(b.Failures, Failure{Phase: phase, Error: err.Error()})
}

// SetReads summarizes query latencies. Every query kind appears, with nil
// percentiles when it has no samples.
func (b *BackendReport) SetReads(samples map[types.QueryKind][]float64) {
	for _, kind := range types.QueryKinds {
		b.Reads[kind.String()] = Summarize(samples[kind])
	}
}

// SetVisibility summarizes a probe series.
func (b *BackendReport) SetVisibility(latenciesMs []float64, samples, timeouts int) {
	b.Visibility = &Visibility{
		Latency:  Summarize(latenciesMs),
		Samples:  samples,
		Timeouts: timeouts,
	}
}

// SetRealtime summarizes realtime write latencies.
func (b *BackendReport) SetRealtime(latencies map[types.EventKind][]float64) {
	b.Realtime = make(map[string]Latency, len(types.EventKinds))
	for _, kind := range types.EventKinds {
		b.Realtime[kind.String()] = Summarize(latencies[kind])
	}
}

// SetContent summarizes the content phase. Every name in ops appears, with
// nil percentiles when it has no samples. A non-nil err is kept as the
// phase failure next to whatever was measured before it.
func (r *Report) SetContent(typ string, ops []string, events int, latencies map[string][]float64, err error) {
	c := &ContentReport{Type: typ, Events: events, Ops: make(map[string]Latency, len(ops))}
	for _, op := range ops {
		c.Ops[op] = Summarize(latencies[op])
	}
	if err != nil {
		c.Failure = &Failure{Phase: PhaseContent, Error: err.Error()}
	}
	r.Content = c
}

// Finish stamps the completion time.
func (r *Report) Finish(at time.Time) {
	r.FinishedAt = at.UTC()
}

// WriteJSON writes the report as indented JSON, replacing path atomically.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("metrics: failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("metrics: failed to create report directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("metrics: failed to write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("metrics: failed to rename report: %w", err)
	}
	return nil
}

// ReadJSON loads a report written by WriteJSON.
func ReadJSON(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metrics: failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("metrics: failed to parse report: %w", err)
	}
	return &r, nil
}

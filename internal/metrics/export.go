package metrics

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry builds a Prometheus registry holding the report as gauges.
func (r *Report) Registry() (*prometheus.Registry, error) {
	readLatency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ugcbench_read_latency_ms",
		Help: "Point query latency percentile in milliseconds",
	}, []string{"backend", "query", "quantile"})

	ingestRate := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ugcbench_ingest_rows_per_second",
		Help: "Bulk ingestion throughput",
	}, []string{"backend", "entity"})

	visibilityLatency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ugcbench_visibility_latency_ms",
		Help: "Write-to-read visibility latency percentile in milliseconds",
	}, []string{"backend", "quantile"})

	visibilityTimeouts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ugcbench_visibility_timeouts",
		Help: "Visibility probes that never observed their write",
	}, []string{"backend"})

	contentLatency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ugcbench_content_latency_ms",
		Help: "Content store call latency percentile in milliseconds",
	}, []string{"store", "op", "quantile"})

	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{readLatency, ingestRate, visibilityLatency, visibilityTimeouts, contentLatency} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: failed to register collector: %w", err)
		}
	}

	for name, b := range r.Backends {
		for query, l := range b.Reads {
			for q, v := range l.quantiles() {
				readLatency.WithLabelValues(name, query, q).Set(v)
			}
		}
		for entity, res := range b.Ingest {
			if res.RowsPerSec != nil {
				ingestRate.WithLabelValues(name, entity).Set(*res.RowsPerSec)
			}
		}
		if b.Visibility != nil {
			for q, v := range b.Visibility.Latency.quantiles() {
				visibilityLatency.WithLabelValues(name, q).Set(v)
			}
			visibilityTimeouts.WithLabelValues(name).Set(float64(b.Visibility.Timeouts))
		}
	}
	if c := r.Content; c != nil {
		for op, l := range c.Ops {
			for q, v := range l.quantiles() {
				contentLatency.WithLabelValues(c.Type, op, q).Set(v)
			}
		}
	}
	return reg, nil
}

// WritePrometheus writes the report in the node_exporter textfile format.
func (r *Report) WritePrometheus(path string) error {
	reg, err := r.Registry()
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("metrics: failed to write textfile: %w", err)
	}
	return nil
}

func (l Latency) quantiles() map[string]float64 {
	out := make(map[string]float64, 3)
	if l.P50 != nil {
		out["0.5"] = *l.P50
	}
	if l.P95 != nil {
		out["0.95"] = *l.P95
	}
	if l.P99 != nil {
		out["0.99"] = *l.P99
	}
	return out
}

// PrintTable renders a per-backend summary table, followed by the content
// store rows when the content phase ran.
func (r *Report) PrintTable(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header("Backend", "Phase", "Metric", "N", "p50", "p95", "p99", "Value")

	for _, name := range r.BackendNames() {
		b := r.Backends[name]

		for _, entity := range sortedKeys(b.Ingest) {
			res := b.Ingest[entity]
			table.Append(name, "ingest", entity, strconv.FormatInt(res.Rows, 10), "", "", "",
				formatPtr(res.RowsPerSec, "rows/s"))
		}
		for _, query := range sortedKeys(b.Reads) {
			l := b.Reads[query]
			table.Append(name, "read", query, strconv.Itoa(l.N), formatPtr(l.P50, ""), formatPtr(l.P95, ""), formatPtr(l.P99, ""), "")
		}
		if v := b.Visibility; v != nil {
			table.Append(name, "visibility", "latency_ms", strconv.Itoa(v.Latency.N),
				formatPtr(v.Latency.P50, ""), formatPtr(v.Latency.P95, ""), formatPtr(v.Latency.P99, ""),
				fmt.Sprintf("%d/%d timeouts", v.Timeouts, v.Samples))
		}
		for _, kind := range sortedKeys(b.Realtime) {
			l := b.Realtime[kind]
			table.Append(name, "realtime", kind, strconv.Itoa(l.N), formatPtr(l.P50, ""), formatPtr(l.P95, ""), formatPtr(l.P99, ""), "")
		}
		for _, f := range b.Failures {
			table.Append(name, f.Phase, "FAILED", "", "", "", "", f.Error)
		}
	}
	if c := r.Content; c != nil {
		name := "content/" + c.Type
		for _, op := range sortedKeys(c.Ops) {
			l := c.Ops[op]
			table.Append(name, PhaseContent, op, strconv.Itoa(l.N), formatPtr(l.P50, ""), formatPtr(l.P95, ""), formatPtr(l.P99, ""), "")
		}
		if f := c.Failure; f != nil {
			table.Append(name, f.Phase, "FAILED", "", "", "", "", f.Error)
		}
	}
	return table.Render()
}

func formatPtr(v *float64, unit string) string {
	if v == nil {
		return "n/a"
	}
	s := strconv.FormatFloat(*v, 'f', 2, 64)
	if unit != "" {
		s += " " + unit
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

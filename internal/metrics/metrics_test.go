package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/arkilian/ugcbench/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile_NearestRank(t *testing.T) {
	seq := make([]float64, 100)
	for i := range seq {
		seq[i] = float64(i + 1)
	}

	v, ok := Percentile(seq, 50)
	require.True(t, ok)
	assert.Equal(t, 51.0, v)

	v, _ = Percentile(seq, 99)
	assert.Equal(t, 100.0, v)

	v, _ = Percentile(seq, 100)
	assert.Equal(t, 100.0, v)

	v, _ = Percentile([]float64{7}, 95)
	assert.Equal(t, 7.0, v)

	_, ok = Percentile(nil, 50)
	assert.False(t, ok)
}

func TestSummarize_EmptyIsNull(t *testing.T) {
	l := Summarize(nil)
	assert.Nil(t, l.P50)
	assert.Zero(t, l.N)

	data, err := json.Marshal(l)
	require.NoError(t, err)
	assert.JSONEq(t, `{"p50":null,"p95":null,"p99":null,"n":0}`, string(data))
}

func TestSummarize_DoesNotReorderInput(t *testing.T) {
	in := []float64{3, 1, 2}
	l := Summarize(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
	assert.Equal(t, 2.0, *l.P50)
	assert.Equal(t, 3, l.N)
}

func TestProperty_PercentilesAreOrdered(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("p50 <= p95 <= p99 within [min, max]", prop.ForAll(
		func(samples []float64) bool {
			if len(samples) == 0 {
				return Summarize(samples).P50 == nil
			}
			l := Summarize(samples)
			sorted := append([]float64(nil), samples...)
			sort.Float64s(sorted)
			return *l.P50 <= *l.P95 && *l.P95 <= *l.P99 &&
				*l.P50 >= sorted[0] && *l.P99 <= sorted[len(sorted)-1]
		},
		gen.SliceOf(gen.Float64Range(0, 10_000)),
	))

	properties.TestingRun(t)
}

func sampleReport() *Report {
	r := NewReport("run-1", 42, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	ch := r.Backend("clickhouse", "clickhouse")
	rps := 1000.0
	ch.Ingest["likes"] = IngestResult{Label: "clickhouse_likes", Rows: 1000, Seconds: 1, RowsPerSec: &rps}
	ch.SetReads(map[types.QueryKind][]float64{
		types.QueryUserLikes: {1, 2, 3},
		types.QueryMovieAvg:  {4},
	})
	ch.SetVisibility([]float64{10, 20}, 3, 1)

	mg := r.Backend("mongodb", "mongodb")
	mg.Fail(PhaseConnect, errors.New("server selection timeout"))
	r.Finish(time.Date(2025, 1, 1, 0, 10, 0, 0, time.UTC))
	return r
}

func TestReport_JSONRoundTripKeepsNulls(t *testing.T) {
	r := sampleReport()
	path := filepath.Join(t.TempDir(), "results", "report.json")
	require.NoError(t, r.WriteJSON(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))

	reads := generic["backends"].(map[string]any)["clickhouse"].(map[string]any)["reads"].(map[string]any)
	assert.Len(t, reads, len(types.QueryKinds))
	assert.Nil(t, reads["user_bookmarks"].(map[string]any)["p50"])
	assert.Equal(t, 2.0, reads["user_likes"].(map[string]any)["p50"])

	back, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", back.RunID)
	assert.Equal(t, []Failure{{Phase: PhaseConnect, Error: "server selection timeout"}}, back.Backends["mongodb"].Failures)
	assert.Equal(t, 1, back.Backends["clickhouse"].Visibility.Timeouts)
	assert.Equal(t, 3, back.Backends["clickhouse"].Visibility.Samples)
}

func TestReport_PrometheusTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ugcbench.prom")
	require.NoError(t, sampleReport().WritePrometheus(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `ugcbench_read_latency_ms{backend="clickhouse",quantile="0.5",query="user_likes"} 2`)
	assert.Contains(t, text, `ugcbench_ingest_rows_per_second{backend="clickhouse",entity="likes"} 1000`)
	assert.Contains(t, text, `ugcbench_visibility_timeouts{backend="clickhouse"} 1`)
	assert.NotContains(t, text, `query="user_bookmarks"`)
}

func TestReport_PrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().PrintTable(&buf))
	out := buf.String()
	assert.Contains(t, out, "clickhouse")
	assert.Contains(t, out, "user_likes")
	assert.Contains(t, out, "1/3 timeouts")
	assert.Contains(t, out, "server selection timeout")
}

func TestReport_ContentSection(t *testing.T) {
	r := sampleReport()
	r.SetContent("sqlite", []string{"like_create", "like_delete"}, 4,
		map[string][]float64{"like_create": {1, 3, 2}}, errors.New("database is locked"))

	require.NotNil(t, r.Content)
	assert.Equal(t, 3, r.Content.Ops["like_create"].N)
	assert.Nil(t, r.Content.Ops["like_delete"].P50)
	assert.Equal(t, &Failure{Phase: PhaseContent, Error: "database is locked"}, r.Content.Failure)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, r.WriteJSON(path))
	back, err := ReadJSON(path)
	require.NoError(t, err)
	require.NotNil(t, back.Content)
	assert.Equal(t, 4, back.Content.Events)
	assert.Equal(t, 2.0, *back.Content.Ops["like_create"].P50)

	prom := filepath.Join(t.TempDir(), "ugcbench.prom")
	require.NoError(t, r.WritePrometheus(prom))
	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ugcbench_content_latency_ms{op="like_create",quantile="0.5",store="sqlite"} 2`)

	var buf bytes.Buffer
	require.NoError(t, r.PrintTable(&buf))
	assert.Contains(t, buf.String(), "content/sqlite")
	assert.Contains(t, buf.String(), "database is locked")
}

func TestReport_NoContentSectionByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, sampleReport().WriteJSON(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"content"`)
}

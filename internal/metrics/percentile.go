// Package metrics turns raw latency samples into summary statistics and
// renders the benchmark report.
package metrics

import "sort"

// Percentile returns the nearest-rank p-th percentile of an ascending
// sequence: the element at floor(n*p/100), clamped to the last index. ok is
// false for an empty sequence.
func Percentile(sorted []float64, p float64) (v float64, ok bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}
	k := int(float64(n) * p / 100)
	if k >= n {
		k = n - 1
	}
	if k < 0 {
		k = 0
	}
	return sorted[k], true
}

// Latency summarizes a latency distribution in milliseconds. Percentiles are
// nil when there were no samples.
type Latency struct {
	P50 *float64 `json:"p50"`
	P95 *float64 `json:"p95"`
	P99 *float64 `json:"p99"`
	N   int      `json:"n"`
}

// Summarize computes p50/p95/p99 over samples. The input is not modified.
func Summarize(samples []float64) Latency {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	at := func(p float64) *float64 {
		v, ok := Percentile(sorted, p)
		if !ok {
			return nil
		}
		return &v
	}
	return Latency{
		P50: at(50),
		P95: at(95),
		P99: at(99),
		N:   len(sorted),
	}
}

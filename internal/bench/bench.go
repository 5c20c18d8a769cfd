// Package bench provides benchmarking primitives for the deconv bench command.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and throughput of a single forward pass.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run (cold pools, cold caches)
	Duration time.Duration
	GFLOPS   float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	Median time.Duration
}

// ComputeStats calculates min, max, mean and median over a slice of
// durations. The input slice is not reordered.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return Stats{
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   sum / time.Duration(n),
		Median: median,
	}
}

// ---------------------------------------------------------------------------
// Throughput helpers
// ---------------------------------------------------------------------------

// CalcGFLOPS returns flops / duration in units of 1e9 per second.
// Returns 0 if d is zero to avoid division by zero.
func CalcGFLOPS(flops float64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return flops / d.Seconds() / 1e9
}

// CheckMinGFLOPS returns an error if meanGFLOPS < threshold.
// A threshold of 0 disables the gate.
func CheckMinGFLOPS(meanGFLOPS, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanGFLOPS < threshold {
		return fmt.Errorf("mean throughput %.3f GFLOP/s is below threshold %.3f", meanGFLOPS, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %12s  %10s\n", "Run", "Cold", "MS", "GFLOP/s")
	fmt.Fprintln(sb, strings.Repeat("-", 38))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %12.3f  %10.3f\n",
			r.Index+1,
			cold,
			millis(r.Duration),
			r.GFLOPS,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 38))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  %10s  (min)\n", "", "", millis(stats.Min), "")
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  %10s  (median)\n", "", "", millis(stats.Median), "")
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  %10s  (mean)\n", "", "", millis(stats.Mean), "")
	fmt.Fprintf(sb, "%-5s  %-5s  %12.3f  %10s  (max)\n", "", "", millis(stats.Max), "")

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	GFLOPS     float64 `json:"gflops"`
}

type jsonStats struct {
	MinMS    float64 `json:"min_ms"`
	MedianMS float64 `json:"median_ms"`
	MeanMS   float64 `json:"mean_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:    millis(stats.Min),
			MedianMS: millis(stats.Median),
			MeanMS:   millis(stats.Mean),
			MaxMS:    millis(stats.Max),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: millis(r.Duration),
			GFLOPS:     r.GFLOPS,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}

// Kernel passes are often sub-millisecond, so keep the fraction.
func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Package stageprof times the phases of a deconvolution pass separately and
// labels them for CPU profiles.
package stageprof

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"time"
)

// Stages are the phases of one pass, run in order. Normalize may be nil when
// the pass has no normalization step.
type Stages struct {
	Clear     func() error
	Scatter   func() error
	Normalize func() error
}

type Options struct {
	Runs       int
	Warmup     int
	CPUProfile string // optional output path for a pprof CPU profile
}

type Timings struct {
	Clear     time.Duration
	Scatter   time.Duration
	Normalize time.Duration
	Total     time.Duration
}

// Report holds the per-stage averages over the profiled runs.
type Report struct {
	Runs    int
	Warmup  int
	Average Timings
}

func Run(ctx context.Context, stages Stages, opts Options) (Report, error) {
	if opts.Runs < 1 {
		return Report{}, errors.New("stageprof: runs must be >= 1")
	}

	if stages.Clear == nil || stages.Scatter == nil {
		return Report{}, errors.New("stageprof: clear and scatter stages are required")
	}

	for i := range opts.Warmup {
		if _, err := runOnce(ctx, stages); err != nil {
			return Report{}, fmt.Errorf("warmup run %d failed: %w", i+1, err)
		}
	}

	if opts.CPUProfile != "" {
		f, err := os.Create(opts.CPUProfile)
		if err != nil {
			return Report{}, fmt.Errorf("create cpuprofile: %w", err)
		}
		defer f.Close()

		err = pprof.StartCPUProfile(f)
		if err != nil {
			return Report{}, fmt.Errorf("start cpuprofile: %w", err)
		}

		defer pprof.StopCPUProfile()
	}

	var agg Timings

	for i := range opts.Runs {
		t, err := runOnce(ctx, stages)
		if err != nil {
			return Report{}, fmt.Errorf("profiled run %d failed: %w", i+1, err)
		}

		agg.Clear += t.Clear
		agg.Scatter += t.Scatter
		agg.Normalize += t.Normalize
		agg.Total += t.Total
	}

	n := time.Duration(opts.Runs)

	return Report{
		Runs:   opts.Runs,
		Warmup: opts.Warmup,
		Average: Timings{
			Clear:     agg.Clear / n,
			Scatter:   agg.Scatter / n,
			Normalize: agg.Normalize / n,
			Total:     agg.Total / n,
		},
	}, nil
}

func runOnce(ctx context.Context, stages Stages) (Timings, error) {
	var out Timings

	if err := ctx.Err(); err != nil {
		return out, err
	}

	startTotal := time.Now()

	d, err := stage(ctx, "clear", stages.Clear)
	if err != nil {
		return out, fmt.Errorf("clear: %w", err)
	}
	out.Clear = d

	d, err = stage(ctx, "scatter", stages.Scatter)
	if err != nil {
		return out, fmt.Errorf("scatter: %w", err)
	}
	out.Scatter = d

	if stages.Normalize != nil {
		d, err = stage(ctx, "normalize", stages.Normalize)
		if err != nil {
			return out, fmt.Errorf("normalize: %w", err)
		}
		out.Normalize = d
	}

	out.Total = time.Since(startTotal)

	return out, nil
}

func stage(ctx context.Context, name string, fn func() error) (time.Duration, error) {
	var (
		elapsed time.Duration
		err     error
	)

	pprof.Do(ctx, pprof.Labels("stage", name), func(context.Context) {
		start := time.Now()
		err = fn()
		elapsed = time.Since(start)
	})

	return elapsed, err
}

// Write prints the report as key: value lines.
func (r Report) Write(w io.Writer) {
	avg := r.Average
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

	fmt.Fprintf(w, "runs: %d (warmup %d)\n", r.Runs, r.Warmup)
	fmt.Fprintf(w, "avg_clear_ms: %.3f\n", ms(avg.Clear))
	fmt.Fprintf(w, "avg_scatter_ms: %.3f\n", ms(avg.Scatter))
	fmt.Fprintf(w, "avg_normalize_ms: %.3f\n", ms(avg.Normalize))
	fmt.Fprintf(w, "avg_total_ms: %.3f\n", ms(avg.Total))

	if avg.Total > 0 {
		fmt.Fprintf(w, "share_clear_pct: %.2f\n", 100*ms(avg.Clear)/ms(avg.Total))
		fmt.Fprintf(w, "share_scatter_pct: %.2f\n", 100*ms(avg.Scatter)/ms(avg.Total))
		fmt.Fprintf(w, "share_normalize_pct: %.2f\n", 100*ms(avg.Normalize)/ms(avg.Total))
	}
}

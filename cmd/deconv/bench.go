package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-deconv/internal/bench"
	"github.com/example/go-deconv/internal/config"
	"github.com/example/go-deconv/internal/runtime/kernel"
)

func newBenchCmd() *cobra.Command {
	var (
		runs      int
		format    string
		minGFLOPS float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark forward pass latency and throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			results, err := runBench(cmd.Context(), cfg, runs, slog.Default())
			if err != nil {
				return err
			}

			durations := make([]time.Duration, len(results))
			var totalGFLOPS float64
			for i, r := range results {
				durations[i] = r.Duration
				totalGFLOPS += r.GFLOPS
			}
			stats := bench.ComputeStats(durations)

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				if err := bench.FormatJSON(results, stats, out); err != nil {
					return err
				}
			default:
				bench.FormatTable(results, stats, out)
			}

			return bench.CheckMinGFLOPS(totalGFLOPS/float64(len(results)), minGFLOPS)
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 5, "Number of timed forward passes")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&minGFLOPS, "min-gflops", 0, "Exit non-zero if mean GFLOP/s falls below this value (0 = disabled)")

	return cmd
}

func runBench(ctx context.Context, cfg config.Config, runs int, logger *slog.Logger) ([]bench.RunResult, error) {
	dt, err := cfg.Dtype()
	if err != nil {
		return nil, err
	}

	if dt == kernel.Float64 {
		return benchPasses[float64](ctx, cfg, runs, logger)
	}

	return benchPasses[float32](ctx, cfg, runs, logger)
}

func benchPasses[T kernel.Float](ctx context.Context, cfg config.Config, runs int, logger *slog.Logger) ([]bench.RunResult, error) {
	w, err := newWorkload[T](cfg, logger)
	if err != nil {
		return nil, err
	}

	flops := w.flops()
	results := make([]bench.RunResult, 0, runs)

	for i := range runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		if err := w.forward(); err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}
		dur := time.Since(start)

		results = append(results, bench.RunResult{
			Index:    i,
			Cold:     i == 0,
			Duration: dur,
			GFLOPS:   bench.CalcGFLOPS(flops, dur),
		})
	}

	return results, nil
}

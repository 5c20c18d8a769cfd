package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-deconv/internal/config"
	"github.com/example/go-deconv/internal/runtime/kernel"
	"github.com/example/go-deconv/internal/runtime/ops"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run forward passes on generated data and report output statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			report, err := runForward(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

type runReport struct {
	Dtype     kernel.Dtype  `json:"dtype"`
	Mode      string        `json:"group_mode"`
	BlockSize int           `json:"block_size"`
	Passes    int           `json:"passes"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Overlaps  bool          `json:"overlaps"`
	HasGaps   bool          `json:"has_gaps"`
	Output    ops.Summary   `json:"output"`
	HitsTotal int64         `json:"hits_total,omitempty"`
}

func runForward(ctx context.Context, cfg config.Config, logger *slog.Logger) (runReport, error) {
	dt, err := cfg.Dtype()
	if err != nil {
		return runReport{}, err
	}

	if dt == kernel.Float64 {
		return runPasses[float64](ctx, cfg, dt, logger)
	}

	return runPasses[float32](ctx, cfg, dt, logger)
}

func runPasses[T kernel.Float](ctx context.Context, cfg config.Config, dt kernel.Dtype, logger *slog.Logger) (runReport, error) {
	w, err := newWorkload[T](cfg, logger)
	if err != nil {
		return runReport{}, err
	}

	g := w.deconv.Geometry()
	opts := w.deconv.Options()

	if g.UseHits && !g.Overlaps() {
		logger.Warn("no output cell receives more than one contribution; hit counting is a no-op")
	}
	if g.HasGaps() {
		logger.Warn("some output cells are never covered and will stay zero")
	}

	start := time.Now()
	for pass := range cfg.Run.Passes {
		if err := ctx.Err(); err != nil {
			return runReport{}, err
		}

		passStart := time.Now()
		if err := w.forward(); err != nil {
			return runReport{}, fmt.Errorf("pass %d: %w", pass+1, err)
		}
		logger.Debug("pass complete", "pass", pass+1, "elapsed", time.Since(passStart))
	}
	elapsed := time.Since(start)

	report := runReport{
		Dtype:     dt,
		Mode:      opts.Mode.String(),
		BlockSize: opts.BlockSize,
		Passes:    cfg.Run.Passes,
		Elapsed:   elapsed,
		Overlaps:  g.Overlaps(),
		HasGaps:   g.HasGaps(),
		Output:    ops.Summarize(w.output),
	}
	for _, h := range w.hits {
		report.HitsTotal += int64(h)
	}

	logger.Info("deconv run finished",
		"dtype", dt,
		"passes", report.Passes,
		"elapsed", elapsed,
		"min", report.Output.Min,
		"avg", report.Output.Avg,
		"max", report.Output.Max,
		"sum", report.Output.Sum,
	)

	return report, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

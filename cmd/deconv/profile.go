package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-deconv/internal/bench/stageprof"
	"github.com/example/go-deconv/internal/config"
	"github.com/example/go-deconv/internal/runtime/kernel"
)

func newProfileCmd() *cobra.Command {
	var opts stageprof.Options

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Time the clear, scatter and normalize stages separately",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			rep, err := profilePass(cmd.Context(), cfg, opts, slog.Default())
			if err != nil {
				return err
			}

			rep.Write(cmd.OutOrStdout())

			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Runs, "runs", 5, "Number of profiled passes")
	cmd.Flags().IntVar(&opts.Warmup, "warmup", 1, "Number of warmup passes")
	cmd.Flags().StringVar(&opts.CPUProfile, "cpuprofile", "", "Write a CPU profile labelled by stage")

	return cmd
}

func profilePass(ctx context.Context, cfg config.Config, opts stageprof.Options, logger *slog.Logger) (stageprof.Report, error) {
	dt, err := cfg.Dtype()
	if err != nil {
		return stageprof.Report{}, err
	}

	if dt == kernel.Float64 {
		return profileStages[float64](ctx, cfg, opts, logger)
	}

	return profileStages[float32](ctx, cfg, opts, logger)
}

func profileStages[T kernel.Float](ctx context.Context, cfg config.Config, opts stageprof.Options, logger *slog.Logger) (stageprof.Report, error) {
	w, err := newWorkload[T](cfg, logger)
	if err != nil {
		return stageprof.Report{}, err
	}

	workers := w.deconv.Options().Workers

	stages := stageprof.Stages{
		Clear: func() error {
			kernel.ClearPass(w.output, w.hits, workers)
			return nil
		},
		Scatter: func() error {
			return w.deconv.Accumulate(w.input, w.weights, w.output, w.hits)
		},
	}
	if w.deconv.Geometry().UseHits {
		stages.Normalize = func() error {
			return w.deconv.Normalize(w.output, w.hits)
		}
	}

	rep, err := stageprof.Run(ctx, stages, opts)
	if err != nil {
		return stageprof.Report{}, err
	}

	logger.Info("deconv profile",
		"runs", rep.Runs,
		"clear", rep.Average.Clear,
		"scatter", rep.Average.Scatter,
		"normalize", rep.Average.Normalize,
	)

	return rep, nil
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/example/go-deconv/internal/config"
	"github.com/example/go-deconv/internal/runtime/kernel"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration and print the resolved geometry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			view, err := resolveConfig(cfg)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
}

type resolvedGeometry struct {
	KernelsPerSampleX int     `json:"kernels_per_sample_x"`
	KernelsPerSampleY int     `json:"kernels_per_sample_y"`
	ElementsPerKernel int     `json:"elements_per_kernel"`
	AWidth            int     `json:"a_width"`
	ABCommon          int     `json:"ab_common"`
	BWidth            int     `json:"b_width"`
	InputSize         int     `json:"input_size"`
	WeightsSize       int     `json:"weights_size"`
	OutputSize        int     `json:"output_size"`
	CoverageMin       int     `json:"coverage_min"`
	CoverageMax       int     `json:"coverage_max"`
	ContributionScale float64 `json:"contribution_scale"`
}

type resolvedView struct {
	Config    config.Config    `json:"config"`
	Dtype     kernel.Dtype     `json:"dtype"`
	BlockSize int              `json:"block_size"`
	Workers   int              `json:"workers"`
	Geometry  resolvedGeometry `json:"geometry"`
}

func resolveConfig(cfg config.Config) (resolvedView, error) {
	dt, err := cfg.Dtype()
	if err != nil {
		return resolvedView{}, err
	}

	opts, err := cfg.OpsOptions()
	if err != nil {
		return resolvedView{}, err
	}

	block := opts.BlockSize
	if block == 0 {
		block = kernel.SuggestBlockSize(dt)
	}

	workers := opts.Workers
	if workers == 0 {
		workers = kernel.DefaultWorkers()
	}

	g := cfg.OpsGeometry()
	lo, hi := g.Coverage()

	return resolvedView{
		Config:    cfg,
		Dtype:     dt,
		BlockSize: block,
		Workers:   workers,
		Geometry: resolvedGeometry{
			KernelsPerSampleX: g.KernelsPerSampleX(),
			KernelsPerSampleY: g.KernelsPerSampleY(),
			ElementsPerKernel: g.ElementsPerKernel(),
			AWidth:            g.AWidth(),
			ABCommon:          g.NKernels,
			BWidth:            g.ElementsPerKernel(),
			InputSize:         g.InputSize(),
			WeightsSize:       g.WeightsSize(),
			OutputSize:        g.OutputSize(),
			CoverageMin:       lo,
			CoverageMax:       hi,
			ContributionScale: g.ContributionScale(),
		},
	}, nil
}

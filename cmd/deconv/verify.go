package main

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/spf13/cobra"

	"github.com/example/go-deconv/internal/config"
	"github.com/example/go-deconv/internal/runtime/kernel"
	"github.com/example/go-deconv/internal/runtime/ops"
)

// Kernels verify can check against a float64 reference.
const (
	verifyDeconv  = "deconv"
	verifyAll2All = "all2all"
	verifyMatMul  = "matmul"
)

func newVerifyCmd() *cobra.Command {
	var (
		name string
		act  string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare a tiled pass against the gonum reference",
		Long: `Compare a tiled pass against the gonum reference.

deconv runs the configured deconvolution. matmul runs the bare engine on the
same A and B. all2all runs a fully connected layer with one input row per
kernel window (NKernels inputs, ElementsPerKernel outputs).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			activation, err := ops.ParseActivation(act)
			if err != nil {
				return err
			}

			res, err := verifyKernel(cfg, name, activation, slog.Default())
			if err != nil {
				return err
			}

			if err := writeJSON(cmd.OutOrStdout(), res.printable()); err != nil {
				return err
			}

			if !res.OK {
				return fmt.Errorf("verify failed: element %d got %g want %g (|diff| %g)",
					res.Worst.Index, res.Worst.Got, res.Worst.Want, res.Worst.Diff)
			}
			if !res.HitsOK {
				return fmt.Errorf("verify failed: hit counts differ from reference")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "kernel", verifyDeconv, "Kernel to check: deconv|all2all|matmul")
	cmd.Flags().StringVar(&act, "activation", string(ops.ActivationLinear), "all2all activation: linear|tanh|relu|softmax")

	return cmd
}

type verifyResult struct {
	Kernel    string        `json:"kernel"`
	Dtype     kernel.Dtype  `json:"dtype"`
	Tolerance ops.Tolerance `json:"tolerance"`
	Worst     ops.Mismatch  `json:"worst"`
	OK        bool          `json:"ok"`
	HitsOK    bool          `json:"hits_ok"`
}

func verifyForward(cfg config.Config, logger *slog.Logger) (verifyResult, error) {
	return verifyKernel(cfg, verifyDeconv, ops.ActivationLinear, logger)
}

func verifyKernel(cfg config.Config, name string, act ops.Activation, logger *slog.Logger) (verifyResult, error) {
	dt, err := cfg.Dtype()
	if err != nil {
		return verifyResult{}, err
	}

	if dt == kernel.Float64 {
		return verifyTyped[float64](cfg, dt, name, act, logger)
	}

	return verifyTyped[float32](cfg, dt, name, act, logger)
}

func verifyTyped[T kernel.Float](cfg config.Config, dt kernel.Dtype, name string, act ops.Activation, logger *slog.Logger) (verifyResult, error) {
	switch name {
	case verifyDeconv:
		return verifyPass[T](cfg, dt, logger)
	case verifyAll2All:
		return verifyAll2AllPass[T](cfg, dt, act, logger)
	case verifyMatMul:
		return verifyMatMulPass[T](cfg, dt, logger)
	default:
		return verifyResult{}, fmt.Errorf("unknown kernel %q (expected deconv|all2all|matmul)", name)
	}
}

func verifyPass[T kernel.Float](cfg config.Config, dt kernel.Dtype, logger *slog.Logger) (verifyResult, error) {
	tol, err := ops.KernelTolerance(verifyDeconv, dt)
	if err != nil {
		return verifyResult{}, err
	}

	w, err := newWorkload[T](cfg, logger)
	if err != nil {
		return verifyResult{}, err
	}

	if err := w.forward(); err != nil {
		return verifyResult{}, err
	}

	want, wantHits, err := ops.ReferenceDeconv(w.deconv.Geometry(), w.input, w.weights)
	if err != nil {
		return verifyResult{}, err
	}

	worst, ok, err := ops.Compare(w.output, want, tol)
	if err != nil {
		return verifyResult{}, err
	}

	res := verifyResult{
		Kernel:    verifyDeconv,
		Dtype:     dt,
		Tolerance: tol,
		Worst:     worst,
		OK:        ok,
		HitsOK:    w.hits == nil || slices.Equal(w.hits, wantHits),
	}

	logger.Info("deconv verify", "dtype", dt, "ok", res.OK, "hits_ok", res.HitsOK, "max_diff", worst.Diff)

	return res, nil
}

// verifyMatMulPass checks the bare engine product of the deconv workload's
// input and weights, before any scatter.
func verifyMatMulPass[T kernel.Float](cfg config.Config, dt kernel.Dtype, logger *slog.Logger) (verifyResult, error) {
	tol, err := ops.KernelTolerance(verifyMatMul, dt)
	if err != nil {
		return verifyResult{}, err
	}

	w, err := newWorkload[T](cfg, logger)
	if err != nil {
		return verifyResult{}, err
	}

	g := w.deconv.Geometry()
	opts := w.deconv.Options()
	dims := kernel.Dims{AWidth: g.AWidth(), Common: g.NKernels, BWidth: g.ElementsPerKernel()}

	e, err := kernel.NewEngine[T, kernel.Direct[T]](dims, kernel.EngineOptions{
		BlockSize:   opts.BlockSize,
		BTransposed: g.WeightsTransposed,
		Mode:        opts.Mode,
		Workers:     opts.Workers,
	})
	if err != nil {
		return verifyResult{}, err
	}

	got := make([]T, dims.AWidth*dims.BWidth)
	if err := e.Run(w.input, w.weights, kernel.NewDirect(got, dims.BWidth)); err != nil {
		return verifyResult{}, err
	}

	want, err := ops.ReferenceMatMul(w.input, w.weights, dims, g.WeightsTransposed)
	if err != nil {
		return verifyResult{}, err
	}

	return compareResult(verifyMatMul, dt, got, want, tol, logger)
}

// verifyAll2AllPass runs a dense layer shaped like the deconv product:
// one sample per kernel window.
func verifyAll2AllPass[T kernel.Float](cfg config.Config, dt kernel.Dtype, act ops.Activation, logger *slog.Logger) (verifyResult, error) {
	tol, err := ops.KernelTolerance(verifyAll2All, dt)
	if err != nil {
		return verifyResult{}, err
	}

	opts, err := cfg.OpsOptions()
	if err != nil {
		return verifyResult{}, err
	}
	opts.Logger = logger

	g := cfg.OpsGeometry()
	if err := g.Validate(); err != nil {
		return verifyResult{}, err
	}

	batch, inputs, outputs := g.AWidth(), g.NKernels, g.ElementsPerKernel()

	l, err := ops.NewAll2All[T](batch, inputs, outputs, act, opts)
	if err != nil {
		return verifyResult{}, err
	}

	rng := seededRand(cfg.Run.Seed)

	x := make([]T, batch*inputs)
	weights := make([]T, outputs*inputs)
	bias := make([]T, outputs)
	ops.FillUniform(x, 1, rng)
	ops.FillUniform(weights, cfg.Run.Amplitude, rng)
	ops.FillUniform(bias, cfg.Run.Amplitude, rng)

	got := make([]T, batch*outputs)
	if _, err := l.Forward(x, weights, bias, got); err != nil {
		return verifyResult{}, err
	}

	want, err := ops.ReferenceAll2All(x, weights, bias, batch, inputs, outputs, act)
	if err != nil {
		return verifyResult{}, err
	}

	return compareResult(verifyAll2All, dt, got, want, tol, logger)
}

func compareResult[T kernel.Float](name string, dt kernel.Dtype, got []T, want []float64, tol ops.Tolerance, logger *slog.Logger) (verifyResult, error) {
	worst, ok, err := ops.Compare(got, want, tol)
	if err != nil {
		return verifyResult{}, err
	}

	logger.Info(name+" verify", "dtype", dt, "ok", ok, "max_diff", worst.Diff)

	return verifyResult{
		Kernel:    name,
		Dtype:     dt,
		Tolerance: tol,
		Worst:     worst,
		OK:        ok,
		HitsOK:    true,
	}, nil
}

// printable replaces non-finite mismatch values, which encoding/json rejects.
func (r verifyResult) printable() verifyResult {
	for _, v := range []*float64{&r.Worst.Got, &r.Worst.Diff} {
		switch {
		case math.IsNaN(*v), math.IsInf(*v, 1):
			*v = math.MaxFloat64
		case math.IsInf(*v, -1):
			*v = -math.MaxFloat64
		}
	}

	return r
}

package main

import (
	"log/slog"
	"math/rand/v2"

	"github.com/example/go-deconv/internal/config"
	"github.com/example/go-deconv/internal/runtime/kernel"
	"github.com/example/go-deconv/internal/runtime/ops"
)

// workload holds one deconvolution instance and its host buffers.
type workload[T kernel.Float] struct {
	deconv  *ops.Deconv[T]
	input   []T
	weights []T
	output  []T
	hits    []int32
}

// newWorkload builds the kernel and fills input and weights from the
// configured seed. Inputs span [-1, 1]; weights span [-amplitude, amplitude].
func newWorkload[T kernel.Float](cfg config.Config, logger *slog.Logger) (*workload[T], error) {
	opts, err := cfg.OpsOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger

	g := cfg.OpsGeometry()

	d, err := ops.NewDeconv[T](g, opts)
	if err != nil {
		return nil, err
	}

	rng := seededRand(cfg.Run.Seed)

	w := &workload[T]{
		deconv:  d,
		input:   make([]T, g.InputSize()),
		weights: make([]T, g.WeightsSize()),
		output:  make([]T, g.OutputSize()),
	}
	if g.UseHits {
		w.hits = make([]int32, g.OutputSize())
	}

	ops.FillUniform(w.input, 1, rng)
	ops.FillUniform(w.weights, cfg.Run.Amplitude, rng)

	return w, nil
}

func seededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (w *workload[T]) forward() error {
	return w.deconv.Forward(w.input, w.weights, w.output, w.hits)
}

// flops is the multiply-add count of one pass.
func (w *workload[T]) flops() float64 {
	g := w.deconv.Geometry()
	return 2 * float64(g.AWidth()) * float64(g.NKernels) * float64(g.ElementsPerKernel())
}

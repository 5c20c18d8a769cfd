package ops

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/example/go-deconv/internal/runtime/kernel"
)

// ReferenceMatMul computes A·B in float64 with gonum. It is the slow,
// order-stable host path the tiled engine is checked against.
func ReferenceMatMul[T kernel.Float](a, b []T, dims kernel.Dims, bTransposed bool) ([]float64, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	if len(a) != dims.AWidth*dims.Common || len(b) != dims.Common*dims.BWidth {
		return nil, fmt.Errorf("%w: reference matmul got A=%d B=%d for dims %+v", ErrBufferSize, len(a), len(b), dims)
	}

	am := mat.NewDense(dims.AWidth, dims.Common, toFloat64(a))

	var bm mat.Matrix = mat.NewDense(dims.Common, dims.BWidth, toFloat64(b))
	if bTransposed {
		bm = mat.NewDense(dims.BWidth, dims.Common, toFloat64(b)).T()
	}

	c := mat.NewDense(dims.AWidth, dims.BWidth, nil)
	c.Mul(am, bm)

	return c.RawMatrix().Data, nil
}

// ReferenceDeconv runs the whole deconvolution serially in float64: gonum
// product, scatter with hit counting, then normalization (or the uniform
// contribution scale when hits are off).
func ReferenceDeconv[T kernel.Float](g Geometry, input, weights []T) (output []float64, hits []int32, err error) {
	if err := g.Validate(); err != nil {
		return nil, nil, err
	}

	dims := kernel.Dims{AWidth: g.AWidth(), Common: g.NKernels, BWidth: g.ElementsPerKernel()}

	product, err := ReferenceMatMul(input, weights, dims, g.WeightsTransposed)
	if err != nil {
		return nil, nil, err
	}

	cells := newCellMap(g)
	output = make([]float64, g.OutputSize())
	hits = make([]int32, g.OutputSize())

	for row := range dims.AWidth {
		for col := range dims.BWidth {
			cell, ok := cells.Cell(row, col)
			if !ok {
				continue
			}

			output[cell] += product[row*dims.BWidth+col]
			hits[cell]++
		}
	}

	if !g.UseHits {
		scale := g.ContributionScale()
		for i := range output {
			output[i] *= scale
		}

		return output, hits, nil
	}

	for i, h := range hits {
		if h > 1 {
			output[i] /= float64(h)
		}
	}

	return output, hits, nil
}

// ReferenceAll2All computes act(x·Wᵀ + b) in float64. Weights are one row of
// inputs per output, as All2All stores them; bias may be nil.
func ReferenceAll2All[T kernel.Float](x, w, bias []T, batch, inputs, outputs int, act Activation) ([]float64, error) {
	if bias != nil && len(bias) != outputs {
		return nil, fmt.Errorf("%w: reference all2all bias has %d elements, want %d", ErrBufferSize, len(bias), outputs)
	}

	y, err := ReferenceMatMul(x, w, kernel.Dims{AWidth: batch, Common: inputs, BWidth: outputs}, true)
	if err != nil {
		return nil, err
	}

	for i := range y {
		if bias != nil {
			y[i] += float64(bias[i%outputs])
		}

		switch act {
		case ActivationTanh:
			y[i] = tanhOuter * math.Tanh(tanhInner*y[i])
		case ActivationRELU:
			y[i] = softplus(y[i])
		}
	}

	if act == ActivationSoftmax {
		softmaxRows(y, outputs)
	}

	return y, nil
}

func toFloat64[T kernel.Float](s []T) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}

	return out
}

package ops

import (
	"fmt"
	"math"
	"strings"

	"github.com/example/go-deconv/internal/runtime/kernel"
)

// Activation is applied to every output of an All2All layer.
type Activation string

const (
	ActivationLinear  Activation = "linear"
	ActivationTanh    Activation = "tanh"
	ActivationRELU    Activation = "relu"
	ActivationSoftmax Activation = "softmax"
)

func ParseActivation(raw string) (Activation, error) {
	a := Activation(strings.ToLower(strings.TrimSpace(raw)))
	switch a {
	case "":
		return ActivationLinear, nil
	case ActivationLinear, ActivationTanh, ActivationRELU, ActivationSoftmax:
		return a, nil
	default:
		return "", fmt.Errorf("ops: invalid activation %q (expected linear|tanh|relu|softmax)", raw)
	}
}

// Scaled tanh constants: f(x) = 1.7159 * tanh(0.6666 * x).
const (
	tanhOuter = 1.7159
	tanhInner = 0.6666
)

// denseStore applies act(sum + bias[col]) and hands the result to a
// row-major direct store. Softmax is applied after the pass, so here it
// behaves as linear.
type denseStore[T kernel.Float] struct {
	direct kernel.Direct[T]
	bias   []T
	act    Activation
}

func (s denseStore[T]) Store(row, col int, v T) {
	if s.bias != nil {
		v += s.bias[col]
	}

	switch s.act {
	case ActivationTanh:
		v = T(tanhOuter * math.Tanh(tanhInner*float64(v)))
	case ActivationRELU:
		v = T(softplus(float64(v)))
	}

	s.direct.Store(row, col, v)
}

// softplus is log(1 + exp(x)), the smooth rectifier of the original layer.
func softplus(x float64) float64 {
	if x > 30 {
		return x
	}

	return math.Log1p(math.Exp(x))
}

// All2All is a fully connected layer y = act(x·Wᵀ + b). Weights are stored
// transposed, one row of Inputs weights per output neuron.
type All2All[T kernel.Float] struct {
	batch   int
	inputs  int
	outputs int
	act     Activation
	engine  *kernel.Engine[T, denseStore[T]]
	workers int
}

func NewAll2All[T kernel.Float](batch, inputs, outputs int, act Activation, opts Options) (*All2All[T], error) {
	if _, err := ParseActivation(string(act)); err != nil {
		return nil, err
	}

	engine, err := kernel.NewEngine[T, denseStore[T]](kernel.Dims{
		AWidth: batch,
		Common: inputs,
		BWidth: outputs,
	}, kernel.EngineOptions{
		BlockSize:   opts.BlockSize,
		BTransposed: true,
		Mode:        opts.Mode,
		Workers:     opts.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("ops: all2all engine: %w", err)
	}

	if act == "" {
		act = ActivationLinear
	}

	return &All2All[T]{
		batch:   batch,
		inputs:  inputs,
		outputs: outputs,
		act:     act,
		engine:  engine,
		workers: engine.Options().Workers,
	}, nil
}

func (l *All2All[T]) Activation() Activation { return l.act }

// Forward computes the layer output for a [batch, inputs] input. bias may be
// nil. For softmax layers it also returns the arg-max of every sample taken
// before normalization; otherwise maxIdx is nil.
func (l *All2All[T]) Forward(input, weights, bias, output []T) (maxIdx []int, err error) {
	if len(input) != l.batch*l.inputs {
		return nil, fmt.Errorf("%w: all2all input has %d elements, want %d", ErrBufferSize, len(input), l.batch*l.inputs)
	}

	if len(weights) != l.outputs*l.inputs {
		return nil, fmt.Errorf("%w: all2all weights have %d elements, want %d", ErrBufferSize, len(weights), l.outputs*l.inputs)
	}

	if bias != nil && len(bias) != l.outputs {
		return nil, fmt.Errorf("%w: all2all bias has %d elements, want %d", ErrBufferSize, len(bias), l.outputs)
	}

	if len(output) != l.batch*l.outputs {
		return nil, fmt.Errorf("%w: all2all output has %d elements, want %d", ErrBufferSize, len(output), l.batch*l.outputs)
	}

	store := denseStore[T]{direct: kernel.NewDirect(output, l.outputs), bias: bias, act: l.act}
	if err := l.engine.Run(input, weights, store); err != nil {
		return nil, err
	}

	if l.act != ActivationSoftmax {
		return nil, nil
	}

	return softmaxRows(output, l.outputs), nil
}

// softmaxRows normalizes each row in place and returns its pre-softmax
// arg-max.
func softmaxRows[T kernel.Float](data []T, width int) []int {
	rows := len(data) / width
	maxIdx := make([]int, rows)

	for r := range rows {
		row := data[r*width : (r+1)*width]

		im := 0
		for i, v := range row {
			if v > row[im] {
				im = i
			}
		}

		maxIdx[r] = im
		m := float64(row[im])

		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v) - m)
			row[i] = T(e)
			sum += e
		}

		for i := range row {
			row[i] = T(float64(row[i]) / sum)
		}
	}

	return maxIdx
}

package ops

import (
	"fmt"
	"math"

	"github.com/example/go-deconv/internal/runtime/kernel"
)

// Tolerance defines acceptable numeric drift versus the float64 reference.
type Tolerance struct {
	Abs float64 `json:"abs"`
	Rel float64 `json:"rel"`
}

// KernelTolerances are per-kernel, per-dtype parity targets. Scatter passes
// sum in a nondeterministic order, so they get more room than direct ones.
var KernelTolerances = map[string]map[kernel.Dtype]Tolerance{
	"matmul": {
		kernel.Float32: {Abs: 1e-4, Rel: 1e-4},
		kernel.Float64: {Abs: 1e-10, Rel: 1e-10},
	},
	"deconv": {
		kernel.Float32: {Abs: 2e-4, Rel: 2e-4},
		kernel.Float64: {Abs: 1e-10, Rel: 1e-10},
	},
	"all2all": {
		kernel.Float32: {Abs: 2e-4, Rel: 2e-4},
		kernel.Float64: {Abs: 1e-10, Rel: 1e-10},
	},
}

func KernelTolerance(name string, dt kernel.Dtype) (Tolerance, error) {
	t, ok := KernelTolerances[name][dt]
	if !ok {
		return Tolerance{}, fmt.Errorf("ops: no tolerance configured for kernel %q dtype %q", name, dt)
	}

	return t, nil
}

// Mismatch is the worst element of a comparison.
type Mismatch struct {
	Index int     `json:"index"`
	Got   float64 `json:"got"`
	Want  float64 `json:"want"`
	Diff  float64 `json:"diff"`
}

// Compare checks got against want element by element and returns the worst
// deviation. ok is false if any element is outside |got-want| <= Abs +
// Rel*|want|.
func Compare[T kernel.Float](got []T, want []float64, tol Tolerance) (worst Mismatch, ok bool, err error) {
	if len(got) != len(want) {
		return Mismatch{}, false, fmt.Errorf("%w: compare got %d elements, want %d", ErrBufferSize, len(got), len(want))
	}

	ok = true
	worst.Index = -1

	for i, w := range want {
		g := float64(got[i])

		diff := math.Abs(g - w)
		if math.IsNaN(diff) {
			diff = math.Inf(1)
		}

		if diff > tol.Abs+tol.Rel*math.Abs(w) {
			ok = false
		}

		if worst.Index < 0 || diff > worst.Diff {
			worst = Mismatch{Index: i, Got: g, Want: w, Diff: diff}
		}
	}

	return worst, ok, nil
}

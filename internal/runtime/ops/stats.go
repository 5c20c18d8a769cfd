package ops

import (
	"math"
	"math/rand/v2"

	"github.com/example/go-deconv/internal/runtime/kernel"
)

// Summary describes one output buffer: min, mean and max of |y| and the
// plain sum of y.
type Summary struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
	Sum float64 `json:"sum"`
}

func Summarize[T kernel.Float](y []T) Summary {
	if len(y) == 0 {
		return Summary{}
	}

	s := Summary{Min: math.Inf(1)}

	var absSum float64
	for _, v := range y {
		f := float64(v)
		a := math.Abs(f)

		s.Min = min(s.Min, a)
		s.Max = max(s.Max, a)
		absSum += a
		s.Sum += f
	}

	s.Avg = absSum / float64(len(y))

	return s
}

// FillUniform fills dst with values drawn uniformly from
// [-amplitude, amplitude).
func FillUniform[T kernel.Float](dst []T, amplitude float64, rng *rand.Rand) {
	for i := range dst {
		dst[i] = T((rng.Float64()*2 - 1) * amplitude)
	}
}

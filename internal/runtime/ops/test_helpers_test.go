package ops

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/example/go-deconv/internal/runtime/kernel"
)

func randData[T kernel.Float](n int, seed uint64) []T {
	out := make([]T, n)
	FillUniform(out, 1, rand.New(rand.NewPCG(seed, seed+1)))

	return out
}

func equalApprox[T kernel.Float](got []T, want []float64, tol float64) bool {
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		if math.Abs(float64(got[i])-want[i]) > tol {
			return false
		}
	}

	return true
}

func assertErrContains(t *testing.T, err error, substr string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}

	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("error %q does not contain %q", err.Error(), substr)
	}
}

func sumHits(hits []int32) int {
	var total int
	for _, h := range hits {
		total += int(h)
	}

	return total
}

// overlapGeometry is a small 2D geometry where interior cells are hit by
// four windows and border cells by fewer.
func overlapGeometry() Geometry {
	return Geometry{
		Batch:    2,
		SX:       5,
		SY:       4,
		Channels: 3,
		KX:       3,
		KY:       2,
		SlideX:   1,
		SlideY:   1,
		NKernels: 4,
		UseHits:  true,
	}
}

package kernel

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	out := []float64{6, 7, 0, -9, 5}
	hits := []int32{2, 1, 0, 3, 0}

	Normalize(out, hits, 1)

	want := []float64{3, 7, 0, -3, 5}
	if !equalApprox(out, want, 0) {
		t.Fatalf("out = %v, want %v", out, want)
	}
}

func TestNormalizeZeroHitsNeverFaults(t *testing.T) {
	out := make([]float32, 8)
	hits := make([]int32, 8)

	Normalize(out, hits, 4)

	for i, v := range out {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) || v != 0 {
			t.Fatalf("out[%d] = %v, want 0", i, v)
		}
	}
}

func TestNormalizeParallelLargeBuffer(t *testing.T) {
	n := minParallelElems*3 + 17
	out := make([]float32, n)
	hits := make([]int32, n)

	for i := range out {
		h := int32(i%4 + 1)
		hits[i] = h
		out[i] = float32(h) * 3
	}

	Normalize(out, hits, 8)

	for i, v := range out {
		if v != 3 {
			t.Fatalf("out[%d] = %v, want 3", i, v)
		}
	}
}

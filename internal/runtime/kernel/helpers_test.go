package kernel

import "math"

// intData returns small integer-valued elements so sums are exact in both
// float32 and float64 regardless of summation order.
func intData[T Float](n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = T((i*5)%7 - 3)
	}

	return out
}

func naiveMatMul[T Float](a, b []T, d Dims, bTransposed bool) []T {
	out := make([]T, d.AWidth*d.BWidth)
	for row := range d.AWidth {
		for col := range d.BWidth {
			var sum T
			for k := range d.Common {
				bv := b[k*d.BWidth+col]
				if bTransposed {
					bv = b[col*d.Common+k]
				}

				sum += a[row*d.Common+k] * bv
			}

			out[row*d.BWidth+col] = sum
		}
	}

	return out
}

func equalApprox[T Float](got, want []T, tol float64) bool {
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			return false
		}
	}

	return true
}

// modMapper folds every coordinate onto a small set of cells so that many
// workers collide on the same destination.
type modMapper struct {
	cells int
}

func (m modMapper) Cell(row, col int) (int, bool) {
	return (row*7 + col) % m.cells, true
}

// evenColMapper drops odd columns.
type evenColMapper struct {
	width int
}

func (m evenColMapper) Cell(row, col int) (int, bool) {
	if col%2 == 1 {
		return 0, false
	}

	return row*m.width + col/2, true
}

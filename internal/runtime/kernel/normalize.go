package kernel

// Normalize divides every accumulated cell by the number of contributions it
// received: out[i] /= max(hits[i], 1). Cells nobody wrote keep their cleared
// value. hits is left untouched but must be cleared before the next pass.
func Normalize[T Float](out []T, hits []int32, workers int) {
	n := min(len(out), len(hits))

	parallelFor(n, elementwiseWorkers(n, workers), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			if h := hits[i]; h > 1 {
				out[i] /= T(h)
			}
		}
	})
}

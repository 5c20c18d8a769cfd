package kernel

// Clear sets every element of buf to its zero value.
func Clear[E any](buf []E, workers int) {
	parallelFor(len(buf), elementwiseWorkers(len(buf), workers), func(lo, hi int) {
		clear(buf[lo:hi])
	})
}

// ClearPass resets the shared state of one pass: the output buffer and, when
// hit counting is in use, its co-indexed hit buffer. Nothing else resets
// these buffers between passes.
func ClearPass[T Float](out []T, hits []int32, workers int) {
	Clear(out, workers)

	if hits != nil {
		Clear(hits, workers)
	}
}

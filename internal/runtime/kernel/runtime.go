package kernel

import (
	"runtime"

	"github.com/sourcegraph/conc"
)

// minParallelElems is the smallest elementwise pass (clear, normalize) that
// is split across goroutines. Smaller buffers run on the caller's goroutine.
const minParallelElems = 1 << 14

// DefaultWorkers returns the worker count used when a caller passes 0.
func DefaultWorkers() int { return runtime.GOMAXPROCS(0) }

func resolveWorkers(n int) int {
	if n <= 0 {
		return DefaultWorkers()
	}

	return n
}

// elementwiseWorkers caps workers for an n-element elementwise pass.
func elementwiseWorkers(n, workers int) int {
	if n < minParallelElems {
		return 1
	}

	return resolveWorkers(workers)
}

// parallelFor splits the range [0, n) into chunks and runs fn(lo, hi)
// concurrently. When workers <= 1 the call is sequential (no goroutines).
func parallelFor(n, workers int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}

	if workers <= 1 || n == 1 {
		fn(0, n)
		return
	}

	if workers > n {
		workers = n
	}

	var wg conc.WaitGroup

	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)

		wg.Go(func() {
			fn(lo, hi)
		})
	}

	wg.Wait()
}

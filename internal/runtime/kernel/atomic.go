package kernel

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// AtomicAdd adds v to *p with a compare-and-swap loop over the value's bits.
// Concurrent adders never lose a contribution, but the order in which they
// land is unspecified, so the final value is only reproducible up to
// floating-point summation order.
func AtomicAdd[T Float](p *T, v T) {
	if unsafe.Sizeof(v) == 4 {
		addr := (*uint32)(unsafe.Pointer(p))
		for {
			old := atomic.LoadUint32(addr)

			sum := math.Float32bits(math.Float32frombits(old) + float32(v))
			if atomic.CompareAndSwapUint32(addr, old, sum) {
				return
			}
		}
	}

	addr := (*uint64)(unsafe.Pointer(p))
	for {
		old := atomic.LoadUint64(addr)

		sum := math.Float64bits(math.Float64frombits(old) + float64(v))
		if atomic.CompareAndSwapUint64(addr, old, sum) {
			return
		}
	}
}

package kernel

import "sync"

// groupLocal is the fast memory one worker group stages tiles into.
type groupLocal[T Float] struct {
	a    []T
	b    []T
	sums []T
	bar  *Barrier
}

// localPool recycles group-local memory across groups and passes. All buffers
// in one pool share a block size.
type localPool[T Float] struct {
	blockSize int
	pool      sync.Pool
}

func newLocalPool[T Float](blockSize int) *localPool[T] {
	lp := &localPool[T]{blockSize: blockSize}
	lp.pool.New = func() any {
		n := blockSize * blockSize

		return &groupLocal[T]{
			a:    make([]T, n),
			b:    make([]T, n),
			sums: make([]T, n),
			bar:  NewBarrier(n),
		}
	}

	return lp
}

// get returns group memory with zeroed private sums. Staging tiles are fully
// overwritten every chunk and are not cleared.
func (lp *localPool[T]) get() *groupLocal[T] {
	l, _ := lp.pool.Get().(*groupLocal[T])
	clear(l.sums)

	return l
}

// put returns l to the pool. Memory whose barrier was broken is dropped.
func (lp *localPool[T]) put(l *groupLocal[T]) {
	if l.bar.Broken() {
		return
	}

	lp.pool.Put(l)
}

package kernel

import "sync/atomic"

// Store receives each finished dot product from the Engine together with its
// (row, col) coordinate. It is called concurrently from many workers.
type Store[T Float] interface {
	Store(row, col int, v T)
}

// Direct overwrites out[Base + row*RowStride + col*ColStride]. Each cell has a
// single writer, so no synchronization is needed.
type Direct[T Float] struct {
	Out       []T
	Base      int
	RowStride int
	ColStride int
}

// NewDirect returns a row-major direct store for a matrix bWidth columns wide.
func NewDirect[T Float](out []T, bWidth int) Direct[T] {
	return Direct[T]{Out: out, RowStride: bWidth, ColStride: 1}
}

func (d Direct[T]) Store(row, col int, v T) {
	d.Out[d.Base+row*d.RowStride+col*d.ColStride] = v
}

// CellMapper maps an engine coordinate to a destination cell. ok is false
// for contributions that fall outside the destination (padding); those are
// dropped and not counted.
type CellMapper interface {
	Cell(row, col int) (cell int, ok bool)
}

// Scatter accumulates each value into the cell chosen by Map. Several
// coordinates may share a cell, so the add is atomic. With Hits set, every
// accumulated contribution also increments Hits[cell] once; without hits the
// value is multiplied by Scale before it is added.
type Scatter[T Float, M CellMapper] struct {
	Out   []T
	Hits  []int32
	Map   M
	Scale T
}

// NewScatter returns a scatter store. hits may be nil to disable counting, in
// which case every contribution is scaled by scale.
func NewScatter[T Float, M CellMapper](out []T, hits []int32, m M, scale T) Scatter[T, M] {
	return Scatter[T, M]{Out: out, Hits: hits, Map: m, Scale: scale}
}

func (s Scatter[T, M]) Store(row, col int, v T) {
	cell, ok := s.Map.Cell(row, col)
	if !ok {
		return
	}

	if s.Hits != nil {
		AtomicAdd(&s.Out[cell], v)
		atomic.AddInt32(&s.Hits[cell], 1)

		return
	}

	AtomicAdd(&s.Out[cell], v*s.Scale)
}

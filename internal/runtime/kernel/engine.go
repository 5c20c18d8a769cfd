package kernel

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
)

// Dims are the logical matrix extents of one engine pass:
// A is AWidth x Common, B is Common x BWidth.
type Dims struct {
	AWidth int
	Common int
	BWidth int
}

func (d Dims) Validate() error {
	if d.AWidth <= 0 || d.Common <= 0 || d.BWidth <= 0 {
		return fmt.Errorf("kernel: matrix dims must be > 0, got a_width=%d ab_common=%d b_width=%d", d.AWidth, d.Common, d.BWidth)
	}

	return nil
}

// GroupMode selects how the workers of one group are executed.
type GroupMode int

const (
	// GroupLockstep runs all workers of a group on one goroutine, phase by
	// phase. Each barrier becomes the boundary between two loops over the
	// workers.
	GroupLockstep GroupMode = iota
	// GroupCooperative runs one goroutine per worker, synchronized with a
	// Barrier at the same two points per chunk.
	GroupCooperative
)

func (m GroupMode) String() string {
	switch m {
	case GroupLockstep:
		return "lockstep"
	case GroupCooperative:
		return "cooperative"
	default:
		return fmt.Sprintf("GroupMode(%d)", int(m))
	}
}

func ParseGroupMode(raw string) (GroupMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "lockstep":
		return GroupLockstep, nil
	case "cooperative", "coop":
		return GroupCooperative, nil
	default:
		return 0, fmt.Errorf("kernel: invalid group mode %q (expected lockstep|cooperative)", raw)
	}
}

// EngineOptions are the static, per-instantiation parameters of an Engine.
type EngineOptions struct {
	// BlockSize is the tile edge; one group of BlockSize*BlockSize workers
	// owns one output tile. 0 selects SuggestBlockSize for the dtype.
	BlockSize int
	// BTransposed means B is stored column-major (BWidth x Common). A
	// mismatch with the real layout is not detectable and gives wrong results.
	BTransposed bool
	Mode        GroupMode
	// Workers bounds the number of groups running at once. 0 means
	// DefaultWorkers.
	Workers int
}

// Engine is a block-tiled matrix multiplication whose per-element write is
// delegated to a Store. It is immutable after construction and safe for
// concurrent passes over distinct buffers.
type Engine[T Float, S Store[T]] struct {
	dims      Dims
	opts      EngineOptions
	tileRows  int
	tileCols  int
	locals    *localPool[T]
	blockSize int
}

// NewEngine validates dims and options and returns an engine instance.
func NewEngine[T Float, S Store[T]](dims Dims, opts EngineOptions) (*Engine[T, S], error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	if opts.BlockSize < 0 {
		return nil, fmt.Errorf("kernel: block size must be >= 0, got %d", opts.BlockSize)
	}

	if opts.BlockSize == 0 {
		opts.BlockSize = SuggestBlockSize(DtypeOf[T]())
	}

	if opts.Mode != GroupLockstep && opts.Mode != GroupCooperative {
		return nil, fmt.Errorf("kernel: unknown group mode %v", opts.Mode)
	}

	opts.Workers = resolveWorkers(opts.Workers)
	bs := opts.BlockSize

	return &Engine[T, S]{
		dims:      dims,
		opts:      opts,
		tileRows:  (dims.AWidth + bs - 1) / bs,
		tileCols:  (dims.BWidth + bs - 1) / bs,
		locals:    newLocalPool[T](bs),
		blockSize: bs,
	}, nil
}

func (e *Engine[T, S]) Dims() Dims { return e.dims }

func (e *Engine[T, S]) Options() EngineOptions { return e.opts }

// Groups returns the number of worker groups (output tiles) per pass.
func (e *Engine[T, S]) Groups() int { return e.tileRows * e.tileCols }

// CheckInputs reports whether a and b are large enough for the engine dims.
func (e *Engine[T, S]) CheckInputs(a, b []T) error {
	if want := e.dims.AWidth * e.dims.Common; len(a) < want {
		return fmt.Errorf("kernel: A has %d elements, want %d", len(a), want)
	}

	if want := e.dims.Common * e.dims.BWidth; len(b) < want {
		return fmt.Errorf("kernel: B has %d elements, want %d", len(b), want)
	}

	return nil
}

// Run computes every dot product A[row,:]·B[:,col] and hands it to store
// exactly once per (row, col). Groups run in no particular order. The
// caller must not run two passes against the same output buffers at once.
// Short inputs are rejected before any group starts; a panic inside store is
// re-raised on the caller's goroutine in both group modes.
func (e *Engine[T, S]) Run(a, b []T, store S) error {
	if err := e.CheckInputs(a, b); err != nil {
		return err
	}

	groups := e.Groups()

	workers := min(e.opts.Workers, groups)
	if workers <= 1 {
		for g := range groups {
			e.runGroup(g, a, b, store)
		}

		return nil
	}

	p := pool.New().WithMaxGoroutines(workers)
	for g := range groups {
		p.Go(func() {
			e.runGroup(g, a, b, store)
		})
	}

	p.Wait()

	return nil
}

func (e *Engine[T, S]) runGroup(g int, a, b []T, store S) {
	tileRow, tileCol := g/e.tileCols, g%e.tileCols

	l := e.locals.get()
	defer e.locals.put(l)

	if e.opts.Mode == GroupCooperative {
		e.runCooperative(l, a, b, tileRow, tileCol, store)
		return
	}

	e.runLockstep(l, a, b, tileRow, tileCol, store)
}

func (e *Engine[T, S]) runLockstep(l *groupLocal[T], a, b []T, tileRow, tileCol int, store S) {
	bs := e.blockSize
	n := bs * bs

	for k0 := 0; k0 < e.dims.Common; k0 += bs {
		for w := range n {
			e.stage(l, a, b, tileRow, tileCol, k0, w/bs, w%bs)
		}

		for w := range n {
			l.sums[w] += e.consume(l, w/bs, w%bs)
		}
	}

	for w := range n {
		e.storeResult(store, tileRow, tileCol, w/bs, w%bs, l.sums[w])
	}
}

func (e *Engine[T, S]) runCooperative(l *groupLocal[T], a, b []T, tileRow, tileCol int, store S) {
	bs := e.blockSize

	var wg conc.WaitGroup
	for w := range bs * bs {
		ty, tx := w/bs, w%bs

		wg.Go(func() {
			// A worker that panics never reaches the next barrier; break it
			// so the rest of the group unwinds instead of waiting forever.
			defer func() {
				if r := recover(); r != nil {
					l.bar.Break()
					panic(r)
				}
			}()

			var sum T

			for k0 := 0; k0 < e.dims.Common; k0 += bs {
				e.stage(l, a, b, tileRow, tileCol, k0, ty, tx)
				if !l.bar.Wait() {
					return
				}

				sum += e.consume(l, ty, tx)
				if !l.bar.Wait() {
					return
				}
			}

			e.storeResult(store, tileRow, tileCol, ty, tx, sum)
		})
	}

	wg.Wait()
}

// stage copies worker (ty, tx)'s share of the current chunk into local
// memory: A[row, k0+tx] and B[k0+ty, col]. Out-of-range reads stage zero.
func (e *Engine[T, S]) stage(l *groupLocal[T], a, b []T, tileRow, tileCol, k0, ty, tx int) {
	bs := e.blockSize
	d := e.dims

	var av T
	if row, k := tileRow*bs+ty, k0+tx; row < d.AWidth && k < d.Common {
		av = a[row*d.Common+k]
	}

	l.a[ty*bs+tx] = av

	var bv T
	if col, k := tileCol*bs+tx, k0+ty; col < d.BWidth && k < d.Common {
		if e.opts.BTransposed {
			bv = b[col*d.Common+k]
		} else {
			bv = b[k*d.BWidth+col]
		}
	}

	l.b[ty*bs+tx] = bv
}

func (e *Engine[T, S]) consume(l *groupLocal[T], ty, tx int) T {
	bs := e.blockSize

	var sum T
	for i, av := range l.a[ty*bs : (ty+1)*bs] {
		sum += av * l.b[i*bs+tx]
	}

	return sum
}

func (e *Engine[T, S]) storeResult(store S, tileRow, tileCol, ty, tx int, sum T) {
	row := tileRow*e.blockSize + ty
	col := tileCol*e.blockSize + tx

	if row < e.dims.AWidth && col < e.dims.BWidth {
		store.Store(row, col, sum)
	}
}

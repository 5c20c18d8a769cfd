package ops

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/go-deconv/internal/runtime/kernel"
)

// ErrBufferSize is returned when a launch buffer does not match the geometry.
var ErrBufferSize = errors.New("ops: buffer size mismatch")

// Options are the execution parameters shared by every pass of one kernel
// instance. They are fixed at construction.
type Options struct {
	// BlockSize is the tile edge; 0 selects kernel.SuggestBlockSize.
	BlockSize int
	Mode      kernel.GroupMode
	// Workers bounds concurrently running groups and elementwise chunks;
	// 0 means kernel.DefaultWorkers.
	Workers int
	Logger  *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}

	return o.Logger
}

// Deconv reconstructs a map from convolution activations by scattering every
// (window, receptive-field element) product back to the cell it came from.
// A Deconv is immutable and may run passes concurrently on distinct buffers.
type Deconv[T kernel.Float] struct {
	geom   Geometry
	opts   Options
	engine *kernel.Engine[T, kernel.Scatter[T, cellMap]]
	cells  cellMap
	scale  T
	log    *slog.Logger
}

// NewDeconv validates g and instantiates the scatter engine for it.
func NewDeconv[T kernel.Float](g Geometry, opts Options) (*Deconv[T], error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	engine, err := kernel.NewEngine[T, kernel.Scatter[T, cellMap]](kernel.Dims{
		AWidth: g.AWidth(),
		Common: g.NKernels,
		BWidth: g.ElementsPerKernel(),
	}, kernel.EngineOptions{
		BlockSize:   opts.BlockSize,
		BTransposed: g.WeightsTransposed,
		Mode:        opts.Mode,
		Workers:     opts.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("ops: deconv engine: %w", err)
	}

	eo := engine.Options()
	opts.BlockSize = eo.BlockSize
	opts.Workers = eo.Workers

	d := &Deconv[T]{
		geom:   g,
		opts:   opts,
		engine: engine,
		cells:  newCellMap(g),
		scale:  T(g.ContributionScale()),
		log:    opts.logger(),
	}

	lo, hi := g.Coverage()
	d.log.Debug("deconv kernel ready",
		slog.String("dtype", string(kernel.DtypeOf[T]())),
		slog.Int("block_size", eo.BlockSize),
		slog.String("group_mode", eo.Mode.String()),
		slog.Int("groups", engine.Groups()),
		slog.Bool("use_hits", g.UseHits),
		slog.Int("min_hits", lo),
		slog.Int("max_hits", hi),
	)

	return d, nil
}

func (d *Deconv[T]) Geometry() Geometry { return d.geom }

// Options returns the options with defaults resolved.
func (d *Deconv[T]) Options() Options { return d.opts }

// Forward runs one full pass: clear output (and hits), scatter every
// contribution, then normalize by hit count when counting is on.
// hits must be nil when the geometry has hit counting disabled.
func (d *Deconv[T]) Forward(input, weights, output []T, hits []int32) error {
	if err := d.checkBuffers(input, weights, output, hits); err != nil {
		return err
	}

	start := time.Now()

	kernel.ClearPass(output, hits, d.opts.Workers)

	if err := d.accumulate(input, weights, output, hits); err != nil {
		return err
	}

	if d.geom.UseHits {
		kernel.Normalize(output, hits, d.opts.Workers)
	}

	d.log.Debug("deconv forward",
		slog.Int("cells", len(output)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return nil
}

// Accumulate scatters one pass of contributions into output (and hits)
// without clearing or normalizing. Calling it twice without clearing adds
// every contribution twice.
func (d *Deconv[T]) Accumulate(input, weights, output []T, hits []int32) error {
	if err := d.checkBuffers(input, weights, output, hits); err != nil {
		return err
	}

	return d.accumulate(input, weights, output, hits)
}

// Normalize divides output by the hit counts of the pass that produced it.
func (d *Deconv[T]) Normalize(output []T, hits []int32) error {
	if !d.geom.UseHits {
		return errors.New("ops: deconv normalize requires hit counting")
	}

	if err := d.checkOutput(output, hits); err != nil {
		return err
	}

	kernel.Normalize(output, hits, d.opts.Workers)

	return nil
}

func (d *Deconv[T]) accumulate(input, weights, output []T, hits []int32) error {
	return d.engine.Run(input, weights, kernel.NewScatter(output, hits, d.cells, d.scale))
}

func (d *Deconv[T]) checkBuffers(input, weights, output []T, hits []int32) error {
	if len(input) != d.geom.InputSize() {
		return fmt.Errorf("%w: input has %d elements, want %d", ErrBufferSize, len(input), d.geom.InputSize())
	}

	if len(weights) != d.geom.WeightsSize() {
		return fmt.Errorf("%w: weights have %d elements, want %d", ErrBufferSize, len(weights), d.geom.WeightsSize())
	}

	return d.checkOutput(output, hits)
}

func (d *Deconv[T]) checkOutput(output []T, hits []int32) error {
	if len(output) != d.geom.OutputSize() {
		return fmt.Errorf("%w: output has %d elements, want %d", ErrBufferSize, len(output), d.geom.OutputSize())
	}

	if !d.geom.UseHits {
		if hits != nil {
			return errors.New("ops: deconv hits buffer given but hit counting is disabled")
		}

		return nil
	}

	if len(hits) != len(output) {
		return fmt.Errorf("%w: hits has %d elements, want %d", ErrBufferSize, len(hits), len(output))
	}

	return nil
}

package ops

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is wrapped by every configuration rejection. A geometry
// that fails validation can never be used to run a pass.
var ErrInvalidGeometry = errors.New("ops: invalid geometry")

// Padding is the number of virtual cells around the reconstructed map that
// windows may cover. Contributions landing there are dropped.
type Padding struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Geometry is the static shape of a deconvolution: the map being
// reconstructed (Batch x SY x SX x Channels), the convolution windows that
// produced the activations, and the hit counting / weight layout switches.
//
// Input activations are laid out [Batch, KernelsPerSampleY,
// KernelsPerSampleX, NKernels]; weights are [NKernels, ElementsPerKernel]
// or, with WeightsTransposed, [ElementsPerKernel, NKernels]; the output is
// [Batch, SY, SX, Channels].
type Geometry struct {
	Batch    int
	SX       int
	SY       int
	Channels int

	KX     int
	KY     int
	SlideX int
	SlideY int
	Padding

	NKernels int

	UseHits           bool
	WeightsTransposed bool
}

func (g Geometry) KernelsPerSampleX() int { return (g.SX+g.Left+g.Right-g.KX)/g.SlideX + 1 }

func (g Geometry) KernelsPerSampleY() int { return (g.SY+g.Top+g.Bottom-g.KY)/g.SlideY + 1 }

func (g Geometry) KernelsPerSample() int { return g.KernelsPerSampleX() * g.KernelsPerSampleY() }

// ElementsPerKernel is the flattened receptive field size (B_WIDTH).
func (g Geometry) ElementsPerKernel() int { return g.KX * g.KY * g.Channels }

// AWidth is the number of input rows: one per window per sample.
func (g Geometry) AWidth() int { return g.Batch * g.KernelsPerSample() }

func (g Geometry) InputSize() int { return g.AWidth() * g.NKernels }

func (g Geometry) WeightsSize() int { return g.NKernels * g.ElementsPerKernel() }

func (g Geometry) OutputSize() int { return g.Batch * g.SY * g.SX * g.Channels }

// Validate rejects geometries that cannot run. Without hit counting every
// output cell must receive the same number of contributions, which needs
// KX%SlideX == 0, KY%SlideY == 0 and padding that gives border cells full
// coverage.
func (g Geometry) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"batch", g.Batch},
		{"sx", g.SX},
		{"sy", g.SY},
		{"channels", g.Channels},
		{"kx", g.KX},
		{"ky", g.KY},
		{"slide_x", g.SlideX},
		{"slide_y", g.SlideY},
		{"n_kernels", g.NKernels},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be > 0, got %d", ErrInvalidGeometry, p.name, p.v)
		}
	}

	if g.Left < 0 || g.Top < 0 || g.Right < 0 || g.Bottom < 0 {
		return fmt.Errorf("%w: padding must be >= 0, got %+v", ErrInvalidGeometry, g.Padding)
	}

	if g.KX > g.SX+g.Left+g.Right {
		return fmt.Errorf("%w: kx %d exceeds padded width %d", ErrInvalidGeometry, g.KX, g.SX+g.Left+g.Right)
	}

	if g.KY > g.SY+g.Top+g.Bottom {
		return fmt.Errorf("%w: ky %d exceeds padded height %d", ErrInvalidGeometry, g.KY, g.SY+g.Top+g.Bottom)
	}

	if g.UseHits {
		return nil
	}

	if g.KX%g.SlideX != 0 {
		return fmt.Errorf("%w: kx %d is not divisible by slide_x %d; enable hit counting for this geometry", ErrInvalidGeometry, g.KX, g.SlideX)
	}

	if g.KY%g.SlideY != 0 {
		return fmt.Errorf("%w: ky %d is not divisible by slide_y %d; enable hit counting for this geometry", ErrInvalidGeometry, g.KY, g.SlideY)
	}

	lo, hi := g.Coverage()
	if lo != hi || lo == 0 {
		return fmt.Errorf("%w: coverage is not uniform (%d..%d contributions per cell); use padding of kx-slide_x / ky-slide_y per side or enable hit counting", ErrInvalidGeometry, lo, hi)
	}

	return nil
}

// Coverage returns the minimum and maximum number of windows covering any
// output cell. Windows are rectangular, so a cell's count is the product of
// its per-axis counts.
func (g Geometry) Coverage() (lo, hi int) {
	xlo, xhi := axisCoverage(g.SX, g.KX, g.SlideX, g.Left, g.KernelsPerSampleX())
	ylo, yhi := axisCoverage(g.SY, g.KY, g.SlideY, g.Top, g.KernelsPerSampleY())

	return xlo * ylo, xhi * yhi
}

// Overlaps reports whether some cell is written by more than one window.
func (g Geometry) Overlaps() bool {
	_, hi := g.Coverage()
	return hi > 1
}

// HasGaps reports whether some cell is never written (its hit count stays 0).
func (g Geometry) HasGaps() bool {
	lo, _ := g.Coverage()
	return lo == 0
}

// ContributionScale is the factor applied to every contribution when hit
// counting is off: the reciprocal of the uniform per-cell coverage, which for
// a valid geometry is SlideX*SlideY/(KX*KY).
func (g Geometry) ContributionScale() float64 {
	lo, _ := g.Coverage()
	if g.UseHits || lo == 0 {
		return 1
	}

	return 1 / float64(lo)
}

func axisCoverage(size, k, slide, pad, windows int) (lo, hi int) {
	counts := make([]int, size)
	for w := range windows {
		start := w*slide - pad
		for p := max(start, 0); p < min(start+k, size); p++ {
			counts[p]++
		}
	}

	lo, hi = counts[0], counts[0]
	for _, c := range counts[1:] {
		lo = min(lo, c)
		hi = max(hi, c)
	}

	return lo, hi
}

// cellMap places engine coordinates into the reconstructed map. Rows walk
// (sample, window y, window x); columns walk (kernel y, kernel x, channel).
type cellMap struct {
	kps      int
	kpsx     int
	kx       int
	channels int
	slideX   int
	slideY   int
	left     int
	top      int
	sx       int
	sy       int
}

func newCellMap(g Geometry) cellMap {
	return cellMap{
		kps:      g.KernelsPerSample(),
		kpsx:     g.KernelsPerSampleX(),
		kx:       g.KX,
		channels: g.Channels,
		slideX:   g.SlideX,
		slideY:   g.SlideY,
		left:     g.Left,
		top:      g.Top,
		sx:       g.SX,
		sy:       g.SY,
	}
}

func (m cellMap) Cell(row, col int) (int, bool) {
	sample, win := row/m.kps, row%m.kps
	wy, wx := win/m.kpsx, win%m.kpsx

	elem, ch := col/m.channels, col%m.channels
	ey, ex := elem/m.kx, elem%m.kx

	x := wx*m.slideX - m.left + ex
	y := wy*m.slideY - m.top + ey

	if x < 0 || x >= m.sx || y < 0 || y >= m.sy {
		return 0, false
	}

	return ((sample*m.sy+y)*m.sx+x)*m.channels + ch, true
}

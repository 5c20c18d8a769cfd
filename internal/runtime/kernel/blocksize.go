package kernel

import "golang.org/x/sys/cpu"

const (
	minBlockSize = 8
	maxBlockSize = 16
)

// MaxGroupWorkers is the largest worker group (BlockSize²) a configuration
// may ask for. It matches the work-group limit common OpenCL devices accept.
const MaxGroupWorkers = 1024

// VectorISA names the widest SIMD extension the CPU reports and its register
// width in bytes. Without one it returns ("scalar", 8).
func VectorISA() (name string, bytes int) {
	switch {
	case cpu.X86.HasAVX512F:
		return "avx512f", 64
	case cpu.X86.HasAVX2:
		return "avx2", 32
	case cpu.ARM64.HasASIMD:
		return "asimd", 16
	case cpu.X86.HasSSE2:
		return "sse2", 16
	default:
		return "scalar", 8
	}
}

// SuggestBlockSize returns the default tile edge for dt: two vector widths of
// elements, clamped to [8, 16] so a group stays at most 256 workers.
func SuggestBlockSize(dt Dtype) int {
	_, width := VectorISA()
	lanes := width / dt.Size()

	return min(max(2*lanes, minBlockSize), maxBlockSize)
}

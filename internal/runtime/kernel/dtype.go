package kernel

import (
	"fmt"
	"strings"
	"unsafe"
)

// Float is the set of element types the kernel family is instantiated for.
type Float interface {
	~float32 | ~float64
}

// Dtype names the element type a kernel family runs with.
type Dtype string

const (
	Float32 Dtype = "float32"
	Float64 Dtype = "float64"
)

// ParseDtype normalizes a configuration value. "single"/"double" are accepted
// as aliases.
func ParseDtype(raw string) (Dtype, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "float32", "single", "f32":
		return Float32, nil
	case "float64", "double", "f64":
		return Float64, nil
	default:
		return "", fmt.Errorf("kernel: invalid dtype %q (expected float32|float64)", raw)
	}
}

// Size returns the element size in bytes.
func (d Dtype) Size() int {
	if d == Float64 {
		return 8
	}

	return 4
}

// DtypeOf reports the Dtype of T.
func DtypeOf[T Float]() Dtype {
	var zero T
	if unsafe.Sizeof(zero) == 4 {
		return Float32
	}

	return Float64
}

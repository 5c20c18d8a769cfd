// Package doctor provides environment and configuration preflight checks for
// deconv.
package doctor

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// MinGoMinor is the oldest Go 1.x release the kernels are supported on.
const MinGoMinor = 25

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// GoVersion returns the runtime version, e.g. "go1.25.3".
	GoVersion VersionFunc
	// VectorISA and VectorBytes describe the widest SIMD extension found.
	VectorISA   string
	VectorBytes int
	// Validate checks the loaded configuration and geometry.
	Validate func() error
	// BlockSize is the resolved tile edge; a group runs BlockSize² workers.
	BlockSize int
	// MaxGroupWorkers bounds BlockSize². 0 disables the check.
	MaxGroupWorkers int
	// BufferBytes is the host memory one pass needs. MaxBufferBytes bounds
	// it; 0 disables the check.
	BufferBytes    int64
	MaxBufferBytes int64
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- Go runtime -------------------------------------------------------
	if cfg.GoVersion == nil {
		fmt.Fprintf(w, "%s go runtime: skipped\n", PassMark)
	} else {
		ver, err := cfg.GoVersion()
		if err != nil {
			res.fail(fmt.Sprintf("go runtime: %v", err))
			fmt.Fprintf(w, "%s go runtime: unavailable (%v)\n", FailMark, err)
		} else if goErr := checkGoVersion(ver); goErr != nil {
			res.fail(fmt.Sprintf("go runtime: %v", goErr))
			fmt.Fprintf(w, "%s go runtime %s: %v\n", FailMark, ver, goErr)
		} else {
			fmt.Fprintf(w, "%s go runtime: %s\n", PassMark, ver)
		}
	}

	// ---- SIMD -------------------------------------------------------------
	fmt.Fprintf(w, "%s vector unit: %s (%d bytes)\n", PassMark, cfg.VectorISA, cfg.VectorBytes)

	// ---- configuration ----------------------------------------------------
	if cfg.Validate != nil {
		if err := cfg.Validate(); err != nil {
			res.fail(fmt.Sprintf("configuration: %v", err))
			fmt.Fprintf(w, "%s configuration: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s configuration: valid\n", PassMark)
		}
	}

	// ---- work-group size --------------------------------------------------
	if cfg.MaxGroupWorkers > 0 {
		if workers := cfg.BlockSize * cfg.BlockSize; workers > cfg.MaxGroupWorkers {
			res.fail(fmt.Sprintf("work-group size: %d workers exceeds %d", workers, cfg.MaxGroupWorkers))
			fmt.Fprintf(w, "%s work-group size: %d workers (block %d) exceeds %d\n", FailMark, workers, cfg.BlockSize, cfg.MaxGroupWorkers)
		} else {
			fmt.Fprintf(w, "%s work-group size: %d workers (block %d)\n", PassMark, workers, cfg.BlockSize)
		}
	}

	// ---- buffer footprint -------------------------------------------------
	if cfg.MaxBufferBytes > 0 {
		if cfg.BufferBytes > cfg.MaxBufferBytes {
			res.fail(fmt.Sprintf("buffers: %d bytes exceeds limit %d", cfg.BufferBytes, cfg.MaxBufferBytes))
			fmt.Fprintf(w, "%s buffers: %d bytes exceeds limit %d\n", FailMark, cfg.BufferBytes, cfg.MaxBufferBytes)
		} else {
			fmt.Fprintf(w, "%s buffers: %d bytes\n", PassMark, cfg.BufferBytes)
		}
	}

	return res
}

// checkGoVersion returns an error if ver is older than go1.MinGoMinor.
// ver is expected to be a string like "go1.25.3"; devel builds pass.
func checkGoVersion(ver string) error {
	if strings.HasPrefix(ver, "devel") {
		return nil
	}

	major, minor, err := parseMajorMinor(strings.TrimPrefix(ver, "go"))
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 1 {
		return fmt.Errorf("requires Go 1.x, got %d", major)
	}
	if minor < MinGoMinor {
		return fmt.Errorf("requires Go >=1.%d, got 1.%d", MinGoMinor, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	// Pre-release suffixes such as "25rc1" carry the minor as a prefix.
	minorStr := parts[1]
	if i := strings.IndexFunc(minorStr, func(r rune) bool { return r < '0' || r > '9' }); i > 0 {
		minorStr = minorStr[:i]
	}
	minor, err = strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}

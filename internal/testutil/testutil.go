// Package testutil provides shared skip helpers for heavyweight tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so the suite stays runnable on small machines and
// under -short without failing noisily.
//
// Typical usage:
//
//	func TestLargeGeometry(t *testing.T) {
//	    testutil.RequireLongTests(t)
//	    testutil.RequireParallelism(t, 4)
//	    ...
//	}
package testutil

import (
	"os"
	"runtime"
	"strconv"
	"testing"
)

// LongTestsEnv forces long tests on (1) or off (0) regardless of -short.
const LongTestsEnv = "DECONV_LONG_TESTS"

// RequireLongTests skips the test under -short unless DECONV_LONG_TESTS=1.
// DECONV_LONG_TESTS=0 skips it unconditionally.
func RequireLongTests(tb testing.TB) {
	tb.Helper()

	if v := os.Getenv(LongTestsEnv); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			tb.Fatalf("invalid %s=%q: %v", LongTestsEnv, v, err)
		}

		if !on {
			tb.Skipf("long tests disabled by %s=%q", LongTestsEnv, v)
		}

		return
	}

	if testing.Short() {
		tb.Skipf("long test skipped in -short mode; set %s=1 to force", LongTestsEnv)
	}
}

// RequireParallelism skips the test when fewer than n goroutines can run
// simultaneously, i.e. when contention the test relies on cannot occur.
func RequireParallelism(tb testing.TB, n int) {
	tb.Helper()

	if procs := runtime.GOMAXPROCS(0); procs < n {
		tb.Skipf("needs GOMAXPROCS >= %d, have %d", n, procs)
	}
}

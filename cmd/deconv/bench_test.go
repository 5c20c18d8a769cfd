package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunBench_SingleRun(t *testing.T) {
	results, err := runBench(context.Background(), smallConfig(), 1, discardLogger())
	if err != nil {
		t.Fatalf("runBench: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	if !results[0].Cold {
		t.Error("first run should be marked Cold")
	}

	if results[0].Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestRunBench_MultipleRuns(t *testing.T) {
	cfg := smallConfig()
	cfg.Kernel.Dtype = "float64"

	results, err := runBench(context.Background(), cfg, 3, discardLogger())
	if err != nil {
		t.Fatalf("runBench: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d", i, r.Index)
		}

		if i > 0 && r.Cold {
			t.Errorf("results[%d] should not be Cold", i)
		}
	}
}

func TestBenchCmd_RejectsBadFlags(t *testing.T) {
	if _, err := executeRoot(t, "bench", "--runs=0", "--log-level=error"); err == nil {
		t.Error("expected error for --runs=0")
	}

	if _, err := executeRoot(t, "bench", "--format=xml", "--log-level=error"); err == nil {
		t.Error("expected error for --format=xml")
	}
}

func TestBenchCmd_JSON(t *testing.T) {
	out, err := executeRoot(t, "bench", "--runs=2", "--format=json", "--kernel-block-size=4", "--log-level=error")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	var decoded struct {
		Runs []json.RawMessage `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v\n%s", err, out)
	}

	if len(decoded.Runs) != 2 {
		t.Errorf("runs = %d; want 2", len(decoded.Runs))
	}
}

func TestBenchCmd_Table(t *testing.T) {
	out, err := executeRoot(t, "bench", "--runs=1", "--log-level=error")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	if !strings.Contains(out, "GFLOP/s") {
		t.Errorf("table output missing header:\n%s", out)
	}
}

package main

import (
	"strings"
	"testing"

	"github.com/example/go-deconv/internal/config"
)

func TestDoctorConfig_Defaults(t *testing.T) {
	cfg := config.DefaultConfig()

	dc := doctorConfig(cfg, 1<<30)

	if dc.BlockSize < 8 || dc.BlockSize > 16 {
		t.Errorf("BlockSize = %d; want suggested value in [8, 16]", dc.BlockSize)
	}

	// 2*9*8 input + 8*48 weights + 2*8*8*3 output float32, plus int32 hits.
	want := int64(144+384+384)*4 + 384*4
	if dc.BufferBytes != want {
		t.Errorf("BufferBytes = %d; want %d", dc.BufferBytes, want)
	}

	if err := dc.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestDoctorConfig_InvalidDtypeStillValidates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Kernel.Dtype = "int8"

	dc := doctorConfig(cfg, 0)
	if dc.Validate() == nil {
		t.Error("Validate() = nil; want dtype error")
	}

	if dc.MaxGroupWorkers != 0 {
		t.Error("group check should be disabled when dtype is invalid")
	}
}

func TestExecute_Doctor(t *testing.T) {
	out, err := executeRoot(t, "doctor", "--log-level=error")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}

	if !strings.Contains(out, "doctor checks passed") {
		t.Errorf("doctor output:\n%s", out)
	}
}

func TestExecute_DoctorReportsInvalidGeometry(t *testing.T) {
	out, err := executeRoot(t, "doctor", "--geometry-kx=100", "--log-level=error")
	if err == nil {
		t.Fatalf("expected doctor failure for invalid geometry:\n%s", out)
	}

	if !strings.Contains(out, "configuration") {
		t.Errorf("doctor output missing configuration failure:\n%s", out)
	}
}

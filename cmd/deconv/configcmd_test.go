package main

import (
	"testing"

	"github.com/example/go-deconv/internal/runtime/kernel"
)

func TestResolveConfig_Defaults(t *testing.T) {
	cfg := smallConfig()
	cfg.Kernel.BlockSize = 0
	cfg.Kernel.Workers = 0

	view, err := resolveConfig(cfg)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}

	if view.BlockSize != kernel.SuggestBlockSize(kernel.Float32) {
		t.Errorf("BlockSize = %d; want suggested %d", view.BlockSize, kernel.SuggestBlockSize(kernel.Float32))
	}

	if view.Workers != kernel.DefaultWorkers() {
		t.Errorf("Workers = %d; want %d", view.Workers, kernel.DefaultWorkers())
	}

	g := view.Geometry
	// 8x8 map, 4x4 kernel, stride 2: 3x3 windows per sample.
	if g.KernelsPerSampleX != 3 || g.KernelsPerSampleY != 3 {
		t.Errorf("kernels per sample = %dx%d; want 3x3", g.KernelsPerSampleX, g.KernelsPerSampleY)
	}

	if g.AWidth != 18 || g.ABCommon != 8 || g.BWidth != 48 {
		t.Errorf("dims = %d/%d/%d; want 18/8/48", g.AWidth, g.ABCommon, g.BWidth)
	}

	if g.CoverageMin != 1 || g.CoverageMax != 4 {
		t.Errorf("coverage = %d..%d; want 1..4", g.CoverageMin, g.CoverageMax)
	}

	if g.ContributionScale != 1 {
		t.Errorf("ContributionScale = %v; want 1 with hits", g.ContributionScale)
	}
}

func TestResolveConfig_UniformWithoutHits(t *testing.T) {
	cfg := smallConfig()
	cfg.Geometry.UseHits = false
	cfg.Geometry.PadLeft, cfg.Geometry.PadRight = 2, 2
	cfg.Geometry.PadTop, cfg.Geometry.PadBottom = 2, 2

	view, err := resolveConfig(cfg)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}

	if view.Geometry.CoverageMin != 4 || view.Geometry.CoverageMax != 4 {
		t.Errorf("coverage = %d..%d; want 4..4", view.Geometry.CoverageMin, view.Geometry.CoverageMax)
	}

	if view.Geometry.ContributionScale != 0.25 {
		t.Errorf("ContributionScale = %v; want 0.25", view.Geometry.ContributionScale)
	}
}

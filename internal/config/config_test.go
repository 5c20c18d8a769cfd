package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/example/go-deconv/internal/runtime/kernel"
	"github.com/example/go-deconv/internal/runtime/ops"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their defaults.
func newFlagBinder(defaults Config) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	return &fakeBinder{fs: fs}
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Kernel.Dtype != "float32" {
		t.Errorf("Kernel.Dtype = %q; want float32", cfg.Kernel.Dtype)
	}

	if cfg.Kernel.BlockSize != 0 {
		t.Errorf("Kernel.BlockSize = %d; want 0", cfg.Kernel.BlockSize)
	}

	if cfg.Kernel.GroupMode != "lockstep" {
		t.Errorf("Kernel.GroupMode = %q; want lockstep", cfg.Kernel.GroupMode)
	}

	if cfg.Geometry.KX != 4 || cfg.Geometry.SlideX != 2 {
		t.Errorf("Geometry kx/slide_x = %d/%d; want 4/2", cfg.Geometry.KX, cfg.Geometry.SlideX)
	}

	if !cfg.Geometry.UseHits {
		t.Error("Geometry.UseHits = false; want true")
	}

	if cfg.Run.Amplitude != 0.05 {
		t.Errorf("Run.Amplitude = %v; want 0.05", cfg.Run.Amplitude)
	}

	if cfg.Run.Passes != 1 {
		t.Errorf("Run.Passes = %d; want 1", cfg.Run.Passes)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want info", cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

// --- RegisterFlags ---

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	for name := range flagKeys {
		if fs.Lookup(name) == nil {
			t.Errorf("flag %q not registered", name)
		}
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(defaults),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg != defaults {
		t.Errorf("Load() = %+v; want %+v", cfg, defaults)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	defaults := DefaultConfig()
	b := newFlagBinder(defaults)

	err := b.fs.Parse([]string{
		"--kernel-dtype=float64",
		"--kernel-block-size=4",
		"--kernel-group-mode=cooperative",
		"--geometry-kx=3",
		"--geometry-pad-left=1",
		"--geometry-use-hits=false",
		"--run-seed=42",
		"--log-level=debug",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(LoadOptions{Cmd: b, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Kernel.Dtype != "float64" {
		t.Errorf("Kernel.Dtype = %q; want float64", cfg.Kernel.Dtype)
	}

	if cfg.Kernel.BlockSize != 4 {
		t.Errorf("Kernel.BlockSize = %d; want 4", cfg.Kernel.BlockSize)
	}

	if cfg.Kernel.GroupMode != "cooperative" {
		t.Errorf("Kernel.GroupMode = %q; want cooperative", cfg.Kernel.GroupMode)
	}

	if cfg.Geometry.KX != 3 {
		t.Errorf("Geometry.KX = %d; want 3", cfg.Geometry.KX)
	}

	if cfg.Geometry.PadLeft != 1 {
		t.Errorf("Geometry.PadLeft = %d; want 1", cfg.Geometry.PadLeft)
	}

	if cfg.Geometry.UseHits {
		t.Error("Geometry.UseHits = true; want false")
	}

	if cfg.Run.Seed != 42 {
		t.Errorf("Run.Seed = %d; want 42", cfg.Run.Seed)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want debug", cfg.LogLevel)
	}

	// Untouched flags keep their defaults.
	if cfg.Geometry.SX != defaults.Geometry.SX {
		t.Errorf("Geometry.SX = %d; want %d", cfg.Geometry.SX, defaults.Geometry.SX)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DECONV_LOG_LEVEL", "warn")
	t.Setenv("DECONV_GEOMETRY_SLIDE_X", "1")
	t.Setenv("DECONV_KERNEL_WORKERS", "3")

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}

	if cfg.Geometry.SlideX != 1 {
		t.Errorf("Geometry.SlideX = %d; want 1", cfg.Geometry.SlideX)
	}

	if cfg.Kernel.Workers != 3 {
		t.Errorf("Kernel.Workers = %d; want 3", cfg.Kernel.Workers)
	}
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Setenv("DECONV_GEOMETRY_BATCH", "5")

	defaults := DefaultConfig()
	b := newFlagBinder(defaults)

	if err := b.fs.Parse([]string{"--geometry-batch=7"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(LoadOptions{Cmd: b, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Geometry.Batch != 7 {
		t.Errorf("Geometry.Batch = %d; want 7", cfg.Geometry.Batch)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "deconv.yaml")

	content := `
log_level: error
kernel:
  dtype: float64
  block_size: 8
geometry:
  kx: 6
  ky: 6
  slide_x: 3
  slide_y: 3
  use_hits: false
run:
  passes: 4
`

	err := os.WriteFile(cfgFile, []byte(content), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(defaults),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}

	if cfg.Kernel.Dtype != "float64" || cfg.Kernel.BlockSize != 8 {
		t.Errorf("Kernel = %+v; want dtype float64 block 8", cfg.Kernel)
	}

	if cfg.Geometry.KX != 6 || cfg.Geometry.SlideY != 3 || cfg.Geometry.UseHits {
		t.Errorf("Geometry = %+v; want kx 6 slide 3 hits off", cfg.Geometry)
	}

	if cfg.Geometry.SX != defaults.Geometry.SX {
		t.Errorf("Geometry.SX = %d; want default %d", cfg.Geometry.SX, defaults.Geometry.SX)
	}

	if cfg.Run.Passes != 4 {
		t.Errorf("Run.Passes = %d; want 4", cfg.Run.Passes)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "deconv.yaml")

	err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: filepath.Join(t.TempDir(), "missing.yaml"),
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Fatal("Load() expected error for missing explicit config file, got nil")
	}
}

// --- Conversions ---

func TestOpsGeometry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Geometry.PadLeft = 1
	cfg.Geometry.PadBottom = 2
	cfg.Geometry.WeightsTransposed = true

	g := cfg.OpsGeometry()

	want := ops.Geometry{
		Batch:             2,
		SX:                8,
		SY:                8,
		Channels:          3,
		KX:                4,
		KY:                4,
		SlideX:            2,
		SlideY:            2,
		Padding:           ops.Padding{Left: 1, Bottom: 2},
		NKernels:          8,
		UseHits:           true,
		WeightsTransposed: true,
	}
	if g != want {
		t.Errorf("OpsGeometry() = %+v; want %+v", g, want)
	}
}

func TestOpsOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kernel.GroupMode = "coop"
	cfg.Kernel.BlockSize = 16
	cfg.Kernel.Workers = 2

	opts, err := cfg.OpsOptions()
	if err != nil {
		t.Fatalf("OpsOptions() error = %v", err)
	}

	if opts.Mode != kernel.GroupCooperative || opts.BlockSize != 16 || opts.Workers != 2 {
		t.Errorf("OpsOptions() = %+v", opts)
	}

	cfg.Kernel.GroupMode = "simd"
	if _, err := cfg.OpsOptions(); err == nil {
		t.Error("OpsOptions() expected error for unknown group mode")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad dtype", func(c *Config) { c.Kernel.Dtype = "float16" }, "dtype"},
		{"negative block", func(c *Config) { c.Kernel.BlockSize = -1 }, "block_size"},
		{"oversized block", func(c *Config) { c.Kernel.BlockSize = 33 }, "block_size"},
		{"negative workers", func(c *Config) { c.Kernel.Workers = -2 }, "workers"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"zero passes", func(c *Config) { c.Run.Passes = 0 }, "passes"},
		{"zero amplitude", func(c *Config) { c.Run.Amplitude = 0 }, "amplitude"},
		{"zero slide", func(c *Config) { c.Geometry.SlideY = 0 }, "slide"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}

			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v; want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_BlockSizeAtGroupLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kernel.BlockSize = 32

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() with a %d-worker group = %v", 32*32, err)
	}
}

func TestValidate_GeometryWrapsSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Geometry.UseHits = false
	cfg.Geometry.KX = 3

	err := cfg.Validate()
	if !errors.Is(err, ops.ErrInvalidGeometry) {
		t.Errorf("Validate() = %v; want ErrInvalidGeometry", err)
	}
}

// --- ParseLogLevel ---

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) error = %v", tt.in, err)
			continue
		}

		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("ParseLogLevel(verbose) expected error")
	}
}

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/go-deconv/internal/runtime/kernel"
	"github.com/example/go-deconv/internal/runtime/ops"
)

type Config struct {
	Kernel   KernelConfig   `mapstructure:"kernel"`
	Geometry GeometryConfig `mapstructure:"geometry"`
	Run      RunConfig      `mapstructure:"run"`
	LogLevel string         `mapstructure:"log_level"`
}

type KernelConfig struct {
	Dtype     string `mapstructure:"dtype"`
	BlockSize int    `mapstructure:"block_size"`
	GroupMode string `mapstructure:"group_mode"`
	Workers   int    `mapstructure:"workers"`
}

type GeometryConfig struct {
	Batch             int  `mapstructure:"batch"`
	SX                int  `mapstructure:"sx"`
	SY                int  `mapstructure:"sy"`
	Channels          int  `mapstructure:"channels"`
	KX                int  `mapstructure:"kx"`
	KY                int  `mapstructure:"ky"`
	SlideX            int  `mapstructure:"slide_x"`
	SlideY            int  `mapstructure:"slide_y"`
	PadLeft           int  `mapstructure:"pad_left"`
	PadTop            int  `mapstructure:"pad_top"`
	PadRight          int  `mapstructure:"pad_right"`
	PadBottom         int  `mapstructure:"pad_bottom"`
	NKernels          int  `mapstructure:"n_kernels"`
	UseHits           bool `mapstructure:"use_hits"`
	WeightsTransposed bool `mapstructure:"weights_transposed"`
}

type RunConfig struct {
	Seed      uint64  `mapstructure:"seed"`
	Amplitude float64 `mapstructure:"amplitude"`
	Passes    int     `mapstructure:"passes"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Kernel: KernelConfig{
			Dtype:     string(kernel.Float32),
			BlockSize: 0,
			GroupMode: kernel.GroupLockstep.String(),
			Workers:   0,
		},
		Geometry: GeometryConfig{
			Batch:    2,
			SX:       8,
			SY:       8,
			Channels: 3,
			KX:       4,
			KY:       4,
			SlideX:   2,
			SlideY:   2,
			NKernels: 8,
			UseHits:  true,
		},
		Run: RunConfig{
			Seed:      1,
			Amplitude: 0.05,
			Passes:    1,
		},
		LogLevel: "info",
	}
}

// flagKeys maps each command line flag to its nested config key.
var flagKeys = map[string]string{
	"kernel-dtype":                "kernel.dtype",
	"kernel-block-size":           "kernel.block_size",
	"kernel-group-mode":           "kernel.group_mode",
	"kernel-workers":              "kernel.workers",
	"geometry-batch":              "geometry.batch",
	"geometry-sx":                 "geometry.sx",
	"geometry-sy":                 "geometry.sy",
	"geometry-channels":           "geometry.channels",
	"geometry-kx":                 "geometry.kx",
	"geometry-ky":                 "geometry.ky",
	"geometry-slide-x":            "geometry.slide_x",
	"geometry-slide-y":            "geometry.slide_y",
	"geometry-pad-left":           "geometry.pad_left",
	"geometry-pad-top":            "geometry.pad_top",
	"geometry-pad-right":          "geometry.pad_right",
	"geometry-pad-bottom":         "geometry.pad_bottom",
	"geometry-n-kernels":          "geometry.n_kernels",
	"geometry-use-hits":           "geometry.use_hits",
	"geometry-weights-transposed": "geometry.weights_transposed",
	"run-seed":                    "run.seed",
	"run-amplitude":               "run.amplitude",
	"run-passes":                  "run.passes",
	"log-level":                   "log_level",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("kernel-dtype", defaults.Kernel.Dtype, "Element type: float32|float64")
	fs.Int("kernel-block-size", defaults.Kernel.BlockSize, "Tile edge / work-group size (0 = suggest from CPU)")
	fs.String("kernel-group-mode", defaults.Kernel.GroupMode, "Work-group executor: lockstep|cooperative")
	fs.Int("kernel-workers", defaults.Kernel.Workers, "Concurrent work-groups (0 = GOMAXPROCS)")
	fs.Int("geometry-batch", defaults.Geometry.Batch, "Samples per batch")
	fs.Int("geometry-sx", defaults.Geometry.SX, "Reconstructed map width")
	fs.Int("geometry-sy", defaults.Geometry.SY, "Reconstructed map height")
	fs.Int("geometry-channels", defaults.Geometry.Channels, "Reconstructed map channels")
	fs.Int("geometry-kx", defaults.Geometry.KX, "Kernel width")
	fs.Int("geometry-ky", defaults.Geometry.KY, "Kernel height")
	fs.Int("geometry-slide-x", defaults.Geometry.SlideX, "Horizontal stride")
	fs.Int("geometry-slide-y", defaults.Geometry.SlideY, "Vertical stride")
	fs.Int("geometry-pad-left", defaults.Geometry.PadLeft, "Left padding")
	fs.Int("geometry-pad-top", defaults.Geometry.PadTop, "Top padding")
	fs.Int("geometry-pad-right", defaults.Geometry.PadRight, "Right padding")
	fs.Int("geometry-pad-bottom", defaults.Geometry.PadBottom, "Bottom padding")
	fs.Int("geometry-n-kernels", defaults.Geometry.NKernels, "Number of convolution kernels")
	fs.Bool("geometry-use-hits", defaults.Geometry.UseHits, "Count hits per output cell and average overlaps")
	fs.Bool("geometry-weights-transposed", defaults.Geometry.WeightsTransposed, "Weights are stored [elements_per_kernel, n_kernels]")
	fs.Uint64("run-seed", defaults.Run.Seed, "Seed for generated inputs and weights")
	fs.Float64("run-amplitude", defaults.Run.Amplitude, "Amplitude of generated weights")
	fs.Int("run-passes", defaults.Run.Passes, "Forward passes per run")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("DECONV")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("deconv")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("kernel.dtype", c.Kernel.Dtype)
	v.SetDefault("kernel.block_size", c.Kernel.BlockSize)
	v.SetDefault("kernel.group_mode", c.Kernel.GroupMode)
	v.SetDefault("kernel.workers", c.Kernel.Workers)
	v.SetDefault("geometry.batch", c.Geometry.Batch)
	v.SetDefault("geometry.sx", c.Geometry.SX)
	v.SetDefault("geometry.sy", c.Geometry.SY)
	v.SetDefault("geometry.channels", c.Geometry.Channels)
	v.SetDefault("geometry.kx", c.Geometry.KX)
	v.SetDefault("geometry.ky", c.Geometry.KY)
	v.SetDefault("geometry.slide_x", c.Geometry.SlideX)
	v.SetDefault("geometry.slide_y", c.Geometry.SlideY)
	v.SetDefault("geometry.pad_left", c.Geometry.PadLeft)
	v.SetDefault("geometry.pad_top", c.Geometry.PadTop)
	v.SetDefault("geometry.pad_right", c.Geometry.PadRight)
	v.SetDefault("geometry.pad_bottom", c.Geometry.PadBottom)
	v.SetDefault("geometry.n_kernels", c.Geometry.NKernels)
	v.SetDefault("geometry.use_hits", c.Geometry.UseHits)
	v.SetDefault("geometry.weights_transposed", c.Geometry.WeightsTransposed)
	v.SetDefault("run.seed", c.Run.Seed)
	v.SetDefault("run.amplitude", c.Run.Amplitude)
	v.SetDefault("run.passes", c.Run.Passes)
	v.SetDefault("log_level", c.LogLevel)
}

// bindFlags binds registered flags to their nested keys. Flags missing from
// fs are skipped so subcommands may register a subset.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}

// Dtype returns the parsed kernel element type.
func (c Config) Dtype() (kernel.Dtype, error) {
	return kernel.ParseDtype(c.Kernel.Dtype)
}

// OpsGeometry converts the geometry section. The result is not validated.
func (c Config) OpsGeometry() ops.Geometry {
	g := c.Geometry

	return ops.Geometry{
		Batch:    g.Batch,
		SX:       g.SX,
		SY:       g.SY,
		Channels: g.Channels,
		KX:       g.KX,
		KY:       g.KY,
		SlideX:   g.SlideX,
		SlideY:   g.SlideY,
		Padding: ops.Padding{
			Left:   g.PadLeft,
			Top:    g.PadTop,
			Right:  g.PadRight,
			Bottom: g.PadBottom,
		},
		NKernels:          g.NKernels,
		UseHits:           g.UseHits,
		WeightsTransposed: g.WeightsTransposed,
	}
}

// OpsOptions converts the kernel section into execution options.
func (c Config) OpsOptions() (ops.Options, error) {
	mode, err := kernel.ParseGroupMode(c.Kernel.GroupMode)
	if err != nil {
		return ops.Options{}, err
	}

	if c.Kernel.BlockSize < 0 {
		return ops.Options{}, fmt.Errorf("invalid kernel.block_size %d (must be >= 0)", c.Kernel.BlockSize)
	}

	if bs := c.Kernel.BlockSize; bs*bs > kernel.MaxGroupWorkers {
		return ops.Options{}, fmt.Errorf("invalid kernel.block_size %d (group of %d workers exceeds %d)", bs, bs*bs, kernel.MaxGroupWorkers)
	}

	if c.Kernel.Workers < 0 {
		return ops.Options{}, fmt.Errorf("invalid kernel.workers %d (must be >= 0)", c.Kernel.Workers)
	}

	return ops.Options{
		BlockSize: c.Kernel.BlockSize,
		Mode:      mode,
		Workers:   c.Kernel.Workers,
	}, nil
}

// Validate checks every static setting before any pass runs.
func (c Config) Validate() error {
	if _, err := c.Dtype(); err != nil {
		return err
	}

	if _, err := c.OpsOptions(); err != nil {
		return err
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Run.Passes < 1 {
		return fmt.Errorf("invalid run.passes %d (must be >= 1)", c.Run.Passes)
	}

	if c.Run.Amplitude <= 0 {
		return fmt.Errorf("invalid run.amplitude %v (must be > 0)", c.Run.Amplitude)
	}

	return c.OpsGeometry().Validate()
}

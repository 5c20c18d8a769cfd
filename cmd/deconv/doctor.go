package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/example/go-deconv/internal/config"
	"github.com/example/go-deconv/internal/doctor"
	"github.com/example/go-deconv/internal/runtime/kernel"
)

func newDoctorCmd() *cobra.Command {
	var maxBufferMB int64

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment and configuration preflight checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if activeCfg.Kernel.Dtype == "" {
				return errors.New("configuration not loaded")
			}

			out := cmd.OutOrStdout()
			result := doctor.Run(doctorConfig(activeCfg, maxBufferMB<<20), out)
			if result.Failed() {
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().Int64Var(&maxBufferMB, "max-buffer-mb", 1024, "Fail if one pass needs more host memory than this (0 = disabled)")

	return cmd
}

// doctorConfig derives the check inputs from cfg. An invalid cfg still
// yields a config; the configuration check reports the error.
func doctorConfig(cfg config.Config, maxBufferBytes int64) doctor.Config {
	isa, width := kernel.VectorISA()

	dc := doctor.Config{
		GoVersion:      func() (string, error) { return runtime.Version(), nil },
		VectorISA:      isa,
		VectorBytes:    width,
		Validate:       cfg.Validate,
		MaxBufferBytes: maxBufferBytes,
	}

	dt, err := cfg.Dtype()
	if err != nil {
		return dc
	}

	dc.BlockSize = cfg.Kernel.BlockSize
	if dc.BlockSize == 0 {
		dc.BlockSize = kernel.SuggestBlockSize(dt)
	}
	dc.MaxGroupWorkers = kernel.MaxGroupWorkers

	g := cfg.OpsGeometry()
	if g.Validate() == nil {
		elems := int64(g.InputSize()) + int64(g.WeightsSize()) + int64(g.OutputSize())
		dc.BufferBytes = elems * int64(dt.Size())
		if g.UseHits {
			dc.BufferBytes += int64(g.OutputSize()) * 4
		}
	}

	return dc
}

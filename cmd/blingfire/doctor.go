package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-blingfire/internal/config"
	"github.com/example/go-blingfire/internal/doctor"
	"github.com/example/go-blingfire/internal/tokenizer"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local library and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "capacity policy: %s\n", cfg.Tokenizer.CapacityPolicy)

			result := doctor.Run(doctorConfig(cfg), out)

			if result.Failed() {
				errOut := cmd.ErrOrStderr()
				for _, f := range result.Failures() {
					// #nosec G705 -- Writes plain diagnostic text to stderr for CLI output, not HTML rendering.
					_, _ = fmt.Fprintf(errOut, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

func doctorConfig(cfg config.Config) doctor.Config {
	var lib tokenizer.Library

	return doctor.Config{
		Library: func() (string, error) {
			opened, info, err := libraryOpener(cfg.Paths)
			if err != nil {
				return "", err
			}
			lib = opened
			return fmt.Sprintf("%s (version %d)", info.LibraryPath, info.Version), nil
		},
		ModelFiles: []string{cfg.Paths.ModelPath},
		RoundTrip: func(path string) error {
			opts, err := tokenizer.OptionsFromConfig(cfg.Tokenizer)
			if err != nil {
				return err
			}
			return doctor.RoundTrip(lib, path, opts...)
		},
	}
}

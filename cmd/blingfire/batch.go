package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/example/go-blingfire/internal/batch"
	"github.com/example/go-blingfire/internal/corpus"
	"github.com/example/go-blingfire/internal/tokenizer"
)

func newBatchCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "batch INPUT",
		Short: "Tokenize a line-delimited corpus and write golden-format output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			texts, err := corpus.ReadLines(args[0])
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, createErr := os.Create(output)
				if createErr != nil {
					return fmt.Errorf("create output: %w", createErr)
				}
				defer func() { err = multierr.Append(err, f.Close()) }()
				w = f
			}

			return withModel(cfg, func(m *tokenizer.Model) error {
				start := time.Now()
				results, err := batch.TextsToIDs(contextOf(cmd), m, texts, batch.Options{Workers: cfg.Batch.Workers})
				if err != nil {
					return err
				}

				slog.Info("batch complete",
					slog.Int("texts", len(texts)),
					slog.Int("workers", cfg.Batch.Workers),
					slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				)

				return corpus.WriteGolden(w, results)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")

	return cmd
}

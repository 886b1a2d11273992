package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-blingfire/internal/batch"
	"github.com/example/go-blingfire/internal/corpus"
	"github.com/example/go-blingfire/internal/tokenizer"
)

func newGoldenCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "golden INPUT EXPECTED",
		Short: "Tokenize a corpus and compare it against a golden output file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			texts, err := corpus.ReadLines(args[0])
			if err != nil {
				return err
			}

			want, err := corpus.ReadGolden(args[1])
			if err != nil {
				return err
			}

			return withModel(cfg, func(m *tokenizer.Model) error {
				got, err := batch.TextsToIDs(contextOf(cmd), m, texts, batch.Options{Workers: cfg.Batch.Workers})
				if err != nil {
					return err
				}

				mismatches, err := corpus.Compare(want, got)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for i, mm := range mismatches {
					if limit > 0 && i >= limit {
						_, _ = fmt.Fprintf(out, "... %d more\n", len(mismatches)-limit)
						break
					}
					_, _ = fmt.Fprintln(out, mm.String())
				}

				if len(mismatches) > 0 {
					return fmt.Errorf("%d of %d lines differ from %s", len(mismatches), len(want), args[1])
				}

				_, err = fmt.Fprintf(out, "%d lines match\n", len(want))
				return err
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Max mismatches to print (0 = all)")

	return cmd
}

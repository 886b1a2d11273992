package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/example/go-blingfire/internal/bench"
	"github.com/example/go-blingfire/internal/corpus"
	"github.com/example/go-blingfire/internal/tokenizer"
)

func newBenchCmd() *cobra.Command {
	var (
		text          string
		input         string
		runs          int
		format        string
		minThroughput float64
		cpuprofile    string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark tokenization latency and throughput",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			var texts []string
			switch {
			case input != "":
				texts, err = corpus.ReadLines(input)
				if err != nil {
					return err
				}
			case strings.TrimSpace(text) != "":
				texts = []string{text}
			default:
				return fmt.Errorf("one of --text or --input is required for bench")
			}

			stopProfile, err := bench.StartCPUProfile(cpuprofile)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, stopProfile()) }()

			return withModel(cfg, func(m *tokenizer.Model) error {
				results, err := bench.Run(contextOf(cmd), m, texts, bench.Options{
					Runs:    runs,
					Workers: cfg.Batch.Workers,
				})
				if err != nil {
					return err
				}

				stats := bench.ComputeStats(bench.Durations(results))

				switch format {
				case "json":
					bench.FormatJSON(results, stats, cmd.OutOrStdout())
				default:
					bench.FormatTable(results, stats, cmd.OutOrStdout())
				}

				return bench.CheckThroughputThreshold(bench.MeanTokensPerSec(results), minThroughput)
			})
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to tokenize on each run")
	cmd.Flags().StringVar(&input, "input", "", "Line-delimited corpus to tokenize on each run (overrides --text)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&minThroughput, "min-tokens-per-sec", 0,
		"Exit non-zero if mean warm throughput is below this value (0 = disabled)")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile to this file")

	return cmd
}

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-blingfire/internal/corpus"
	"github.com/example/go-blingfire/internal/tokenizer"
)

type tokenizeOutput struct {
	IDs   []int32 `json:"ids"`
	Count int     `json:"count"`
}

func newTokenizeCmd() *cobra.Command {
	var (
		trim    bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "tokenize [text...]",
		Short: "Print token IDs for text (arguments, or one text per stdin line)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			var texts []string
			if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
				texts, err = readStdinLines(cmd.InOrStdin())
				if err != nil {
					return err
				}
			} else {
				texts = []string{strings.Join(args, " ")}
			}

			return withModel(cfg, func(m *tokenizer.Model) error {
				return writeTokenized(cmd.OutOrStdout(), m, texts, trim, jsonOut)
			})
		},
	}

	cmd.Flags().BoolVar(&trim, "trim", false, "Strip trailing zero padding from each result")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Write one JSON object per text")

	return cmd
}

func writeTokenized(w io.Writer, tok tokenizer.Tokenizer, texts []string, trim, jsonOut bool) error {
	enc := json.NewEncoder(w)

	for _, text := range texts {
		ids, err := tok.TextToIDs(text)
		if err != nil {
			return err
		}

		if trim {
			ids = corpus.TrimPadding(ids)
		}

		if jsonOut {
			if err := enc.Encode(tokenizeOutput{IDs: ids, Count: len(ids)}); err != nil {
				return err
			}
			continue
		}

		if _, err := fmt.Fprintln(w, corpus.FormatIDs(ids)); err != nil {
			return err
		}
	}

	return nil
}

func readStdinLines(r io.Reader) ([]string, error) {
	var lines []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}

	return lines, nil
}

// Package batch tokenizes many independent texts against one shared model.
package batch

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/iter"

	"github.com/example/go-blingfire/internal/tokenizer"
)

// Options controls batch execution.
type Options struct {
	// Workers bounds concurrent tokenization calls. Zero or less means GOMAXPROCS.
	Workers int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}

	return runtime.GOMAXPROCS(0)
}

// TextsToIDs tokenizes every text with tok and returns results in input
// order. Calls run concurrently, at most opts.Workers at a time.
//
// Cancelling ctx stops texts that have not started; calls already inside the
// native routine run to completion. The caller must not free the model until
// TextsToIDs has returned.
func TextsToIDs(ctx context.Context, tok tokenizer.Tokenizer, texts []string, opts Options) ([][]int32, error) {
	if len(texts) == 0 {
		return [][]int32{}, nil
	}

	mapper := iter.Mapper[string, []int32]{MaxGoroutines: opts.workers()}

	out, err := mapper.MapErr(texts, func(text *string) ([]int32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		return tok.TextToIDs(*text)
	})
	if err != nil {
		return nil, fmt.Errorf("tokenize batch of %d texts: %w", len(texts), err)
	}

	return out, nil
}

// Package bench provides benchmarking primitives for the blingfire bench command.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/example/go-blingfire/internal/batch"
	"github.com/example/go-blingfire/internal/corpus"
	"github.com/example/go-blingfire/internal/tokenizer"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and volume of a single pass over the corpus.
type RunResult struct {
	Index        int
	Cold         bool // true for the first run (cold-start)
	Duration     time.Duration
	Texts        int
	Bytes        int
	Tokens       int // IDs after trailing padding is removed
	TokensPerSec float64
	BytesPerSec  float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
// An empty slice yields zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Durations extracts the Duration of each run.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}
	return out
}

// MeanTokensPerSec averages TokensPerSec over warm runs, falling back to all
// runs when only the cold run exists.
func MeanTokensPerSec(runs []RunResult) float64 {
	var sum float64
	var n int
	for _, r := range runs {
		if r.Cold && len(runs) > 1 {
			continue
		}
		sum += r.TokensPerSec
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ---------------------------------------------------------------------------
// Throughput helpers
// ---------------------------------------------------------------------------

// CalcThroughput returns count per second over d.
// Returns 0 if d is zero to avoid division by zero.
func CalcThroughput(count int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(count) / d.Seconds()
}

// Options controls a benchmark run.
type Options struct {
	Runs    int // passes over the corpus; values below 1 mean 1
	Workers int // batch parallelism, see batch.Options
}

// Run tokenizes texts opts.Runs times through tok and times each pass. The
// first pass is marked Cold.
func Run(ctx context.Context, tok tokenizer.Tokenizer, texts []string, opts Options) ([]RunResult, error) {
	runs := opts.Runs
	if runs < 1 {
		runs = 1
	}

	var bytes int
	for _, t := range texts {
		bytes += len(t)
	}

	results := make([]RunResult, 0, runs)
	for i := range runs {
		start := time.Now()
		ids, err := batch.TextsToIDs(ctx, tok, texts, batch.Options{Workers: opts.Workers})
		elapsed := time.Since(start)
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}

		var tokens int
		for _, row := range ids {
			tokens += len(corpus.TrimPadding(row))
		}

		results = append(results, RunResult{
			Index:        i,
			Cold:         i == 0,
			Duration:     elapsed,
			Texts:        len(texts),
			Bytes:        bytes,
			Tokens:       tokens,
			TokensPerSec: CalcThroughput(tokens, elapsed),
			BytesPerSec:  CalcThroughput(bytes, elapsed),
		})
	}

	return results, nil
}

// ---------------------------------------------------------------------------
// Throughput threshold gate
// ---------------------------------------------------------------------------

// CheckThroughputThreshold returns an error if tokensPerSec < minimum.
// A minimum of 0 disables the gate.
func CheckThroughputThreshold(tokensPerSec, minimum float64) error {
	if minimum <= 0 {
		return nil
	}
	if tokensPerSec < minimum {
		return fmt.Errorf("mean throughput %.1f tokens/s below threshold %.1f", tokensPerSec, minimum)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Profiling
// ---------------------------------------------------------------------------

// StartCPUProfile writes a CPU profile to path until the returned stop
// function is called. An empty path is a no-op.
func StartCPUProfile(path string) (func() error, error) {
	if path == "" {
		return func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cpu profile: %w", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("start cpu profile: %w", err)
	}

	return func() error {
		pprof.StopCPUProfile()
		return f.Close()
	}, nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %10s  %14s  %12s\n", "Run", "Cold", "MS", "Tokens", "Tokens/s", "MB/s")
	fmt.Fprintln(sb, strings.Repeat("-", 68))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %10d  %14.1f  %12.2f\n",
			r.Index+1,
			cold,
			float64(r.Duration.Microseconds())/1000,
			r.Tokens,
			r.TokensPerSec,
			r.BytesPerSec/1e6,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 68))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (min)\n", "", "", float64(stats.Min.Microseconds())/1000)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (mean)\n", "", "", float64(stats.Mean.Microseconds())/1000)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (max)\n", "", "", float64(stats.Max.Microseconds())/1000)

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index        int     `json:"index"`
	Cold         bool    `json:"cold"`
	DurationMS   float64 `json:"duration_ms"`
	Texts        int     `json:"texts"`
	Bytes        int     `json:"bytes"`
	Tokens       int     `json:"tokens"`
	TokensPerSec float64 `json:"tokens_per_sec"`
	BytesPerSec  float64 `json:"bytes_per_sec"`
}

type jsonStats struct {
	MinMS            float64 `json:"min_ms"`
	MeanMS           float64 `json:"mean_ms"`
	MaxMS            float64 `json:"max_ms"`
	MeanTokensPerSec float64 `json:"mean_tokens_per_sec"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:            float64(stats.Min.Microseconds()) / 1000,
			MeanMS:           float64(stats.Mean.Microseconds()) / 1000,
			MaxMS:            float64(stats.Max.Microseconds()) / 1000,
			MeanTokensPerSec: MeanTokensPerSec(runs),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:        r.Index,
			Cold:         r.Cold,
			DurationMS:   float64(r.Duration.Microseconds()) / 1000,
			Texts:        r.Texts,
			Bytes:        r.Bytes,
			Tokens:       r.Tokens,
			TokensPerSec: r.TokensPerSec,
			BytesPerSec:  r.BytesPerSec,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}

// Package doctor provides environment preflight checks for blingfire.
package doctor

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/example/go-blingfire/internal/corpus"
	"github.com/example/go-blingfire/internal/tokenizer"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// ProbeText is tokenized by the round-trip check.
const ProbeText = "hello world"

// LibraryFunc locates and opens the shared library, returning a short
// description such as its path and version.
type LibraryFunc func() (string, error)

// RoundTripFunc loads the model at path, tokenizes once and frees it.
type RoundTripFunc func(path string) error

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Library opens the BlingFire shared library.
	Library LibraryFunc
	// ModelFiles is the list of model paths to verify on disk.
	ModelFiles []string
	// RoundTrip exercises each present model. Nil skips the check.
	RoundTrip RoundTripFunc
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark. The round trip only
// runs when the library opened and the model file exists.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- shared library ---------------------------------------------------
	libOK := false
	if cfg.Library == nil {
		res.fail("blingfire library: no check configured")
		fmt.Fprintf(w, "%s blingfire library: no check configured\n", FailMark)
	} else if desc, err := cfg.Library(); err != nil {
		res.fail(fmt.Sprintf("blingfire library: %v", err))
		fmt.Fprintf(w, "%s blingfire library: not available (%v)\n", FailMark, err)
	} else {
		libOK = true
		fmt.Fprintf(w, "%s blingfire library: %s\n", PassMark, desc)
	}

	// ---- model files ------------------------------------------------------
	for _, path := range cfg.ModelFiles {
		if err := checkModelFile(path); err != nil {
			res.fail(fmt.Sprintf("model file %q: %v", path, err))
			fmt.Fprintf(w, "%s model file %s: %v\n", FailMark, path, err)
			continue
		}

		fmt.Fprintf(w, "%s model file: %s\n", PassMark, path)

		// ---- load -> tokenize -> free ---------------------------------------
		if cfg.RoundTrip == nil {
			continue
		}

		if !libOK {
			fmt.Fprintf(w, "%s model round trip %s: skipped (library unavailable)\n", FailMark, path)
			continue
		}

		if err := cfg.RoundTrip(path); err != nil {
			res.fail(fmt.Sprintf("model round trip %q: %v", path, err))
			fmt.Fprintf(w, "%s model round trip %s: %v\n", FailMark, path, err)
		} else {
			fmt.Fprintf(w, "%s model round trip: %s\n", PassMark, path)
		}
	}

	return res
}

func checkModelFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.New("not found")
	}

	if info.IsDir() {
		return errors.New("is a directory")
	}

	if info.Size() == 0 {
		return errors.New("is empty")
	}

	return nil
}

// RoundTrip acquires the model at path through lib, tokenizes ProbeText and
// releases the model. It fails when the probe yields no IDs.
func RoundTrip(lib tokenizer.Library, path string, opts ...tokenizer.Option) error {
	m, err := tokenizer.Load(lib, path, opts...)
	if err != nil {
		return err
	}

	ids, err := m.TextToIDs(ProbeText)
	if err != nil {
		_ = m.Free()
		return err
	}

	if err := m.Free(); err != nil {
		return err
	}

	if len(corpus.TrimPadding(ids)) == 0 {
		return fmt.Errorf("tokenizing %q produced no ids", ProbeText)
	}

	return nil
}

// Package testutil provides shared skip helpers and an in-process stand-in
// for the BlingFire shared library.
//
// The Require helpers call t.Skipf with a clear human-readable reason when the
// named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    libPath := testutil.RequireLibrary(t)
//	    modelPath := testutil.RequireModel(t)
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-blingfire/internal/config"
	"github.com/example/go-blingfire/internal/native"
)

// DefaultModelFile is the model the integration tests look for when
// BLINGFIRE_MODEL is unset.
const DefaultModelFile = "xlm_roberta.bling"

// RequireLibrary skips the test unless a BlingFire shared library can be
// located via BLINGFIRE_LIB, BLINGFIRE_LIBRARY_PATH or the usual system
// paths. It returns the library path.
func RequireLibrary(tb testing.TB) string {
	tb.Helper()

	path, err := native.DetectLibrary(config.PathsConfig{})
	if err != nil {
		tb.Skipf("BlingFire shared library not available (%v); set BLINGFIRE_LIB to override", err)
		return ""
	}

	return path
}

// RequireModel skips the test unless a model artifact is available. It
// checks BLINGFIRE_MODEL, then walks up from the working directory looking
// for data/xlm_roberta.bling.
func RequireModel(tb testing.TB) string {
	tb.Helper()

	if p := os.Getenv("BLINGFIRE_MODEL"); p != "" {
		_, err := os.Stat(p)
		if err != nil {
			tb.Skipf("BlingFire model not found at BLINGFIRE_MODEL=%q", p)
			return ""
		}

		return p
	}

	p, ok := findUp(filepath.Join("data", DefaultModelFile))
	if !ok {
		tb.Skipf("data/%s not found; set BLINGFIRE_MODEL to override", DefaultModelFile)
		return ""
	}

	return p
}

// RequireFile skips the test unless rel exists in the working directory or
// one of its parents. It returns the resolved path.
func RequireFile(tb testing.TB, rel string) string {
	tb.Helper()

	p, ok := findUp(rel)
	if !ok {
		tb.Skipf("fixture %q not found", rel)
		return ""
	}

	return p
}

func findUp(rel string) (string, bool) {
	dir, err := filepath.Abs(".")
	if err != nil {
		return "", false
	}

	for {
		candidate := filepath.Join(dir, rel)

		_, err = os.Stat(candidate)
		if err == nil {
			return candidate, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}

		dir = parent
	}
}

package native

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/example/go-blingfire/internal/config"
)

// ErrLibraryNotFound is returned when no BlingFire shared library can be located.
var ErrLibraryNotFound = errors.New("unable to locate BlingFire shared library")

// ErrShutdown is returned by Bootstrap once Shutdown has closed the library.
var ErrShutdown = errors.New("blingfire library has been shut down")

type RuntimeInfo struct {
	LibraryPath string
	Version     int
	Initialized bool
}

var (
	bootstrapMu   sync.Mutex
	bootstrapOnce sync.Once
	bootstrapLib  *Library
	bootstrapInfo RuntimeInfo
	errBootstrap  error
	shutdownFlag  atomic.Bool
)

// Bootstrap locates and opens the BlingFire library once per process. Later
// calls return the same library regardless of cfg, or ErrShutdown after
// Shutdown.
func Bootstrap(cfg config.PathsConfig) (*Library, RuntimeInfo, error) {
	bootstrapMu.Lock()
	defer bootstrapMu.Unlock()

	if shutdownFlag.Load() {
		return nil, RuntimeInfo{}, ErrShutdown
	}

	bootstrapOnce.Do(func() {
		path, err := DetectLibrary(cfg)
		if err != nil {
			errBootstrap = err
			return
		}

		lib, err := Open(path)
		if err != nil {
			errBootstrap = fmt.Errorf("open blingfire library: %w", err)
			return
		}

		bootstrapLib = lib
		bootstrapInfo = RuntimeInfo{
			LibraryPath: path,
			Version:     lib.Version(),
			Initialized: true,
		}
	})

	if errBootstrap != nil {
		return nil, RuntimeInfo{}, errBootstrap
	}

	return bootstrapLib, bootstrapInfo, nil
}

// Shutdown closes the library opened by Bootstrap. All models must have been
// freed first. Only the first call has any effect, and Bootstrap fails
// afterwards.
func Shutdown() error {
	bootstrapMu.Lock()
	defer bootstrapMu.Unlock()

	if shutdownFlag.Swap(true) {
		return nil
	}

	if !bootstrapInfo.Initialized {
		return nil
	}

	bootstrapInfo.Initialized = false

	return bootstrapLib.Close()
}

// DetectLibrary resolves the shared library path: the configured path first,
// then BLINGFIRE_LIB and BLINGFIRE_LIBRARY_PATH, then well-known install
// locations for the current OS.
func DetectLibrary(cfg config.PathsConfig) (string, error) {
	path := cfg.LibraryPath
	if path == "" {
		path = os.Getenv("BLINGFIRE_LIB")
	}

	if path == "" {
		path = os.Getenv("BLINGFIRE_LIBRARY_PATH")
	}

	if path == "" {
		for _, c := range libraryCandidates(runtime.GOOS) {
			_, err := os.Stat(c)
			if err == nil {
				path = c
				break
			}
		}
	}

	if path == "" {
		return "", ErrLibraryNotFound
	}

	_, err := os.Stat(path)
	if err != nil {
		return path, fmt.Errorf("blingfire library path check failed: %w", err)
	}

	return path, nil
}

func libraryCandidates(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/usr/local/lib/libblingfiretokdll.dylib",
			"/opt/homebrew/lib/libblingfiretokdll.dylib",
		}
	case "windows":
		return []string{
			"C:/blingfire/blingfiretokdll.dll",
			"blingfiretokdll.dll",
		}
	default:
		return []string{
			"/usr/lib/libblingfiretokdll.so",
			"/usr/local/lib/libblingfiretokdll.so",
			"/usr/lib/x86_64-linux-gnu/libblingfiretokdll.so",
		}
	}
}

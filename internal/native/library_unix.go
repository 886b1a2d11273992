//go:build !windows

package native

import (
	"fmt"

	"github.com/ebitengine/purego"
)

func loadLibrary(path string) (uintptr, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("load shared library %s: %w", path, err)
	}

	if handle == 0 {
		return 0, fmt.Errorf("shared library handle is nil after loading: %s", path)
	}

	return handle, nil
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func closeLibrary(handle uintptr) error {
	err := purego.Dlclose(handle)
	if err != nil {
		return fmt.Errorf("close shared library: %w", err)
	}

	return nil
}

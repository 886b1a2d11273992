//go:build windows

package native

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

func loadLibrary(path string) (uintptr, error) {
	handle, err := windows.LoadLibrary(path)
	if err != nil {
		return 0, fmt.Errorf("load shared library %s: %w", path, err)
	}

	if handle == 0 {
		return 0, fmt.Errorf("shared library handle is nil after loading: %s", path)
	}

	return uintptr(handle), nil
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}

func closeLibrary(handle uintptr) error {
	if handle == 0 {
		return errors.New("invalid library handle")
	}

	err := windows.FreeLibrary(windows.Handle(handle))
	if err != nil {
		return fmt.Errorf("close shared library: %w", err)
	}

	return nil
}

// Package native binds the prebuilt BlingFire shared library through purego.
//
// It is the only package that touches raw pointers or C integer widths. Every
// other package works with Go strings and []int32 slices and goes through
// Library.
package native

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

// FreeOK is the status FreeModel returns when the model was released.
const FreeOK int32 = 1

// Symbol names exported by libblingfiretokdll.
const (
	symLoadModel = "LoadModel"
	symTextToIDs = "TextToIds"
	symFreeModel = "FreeModel"
	symVersion   = "GetBlingFireTokVersion"
)

// ErrMissingSymbol is returned by Open when the library lacks a required export.
var ErrMissingSymbol = errors.New("blingfire library is missing a required symbol")

// Library is an opened BlingFire shared library with its entry points bound.
//
// The bound functions are safe to call from multiple goroutines; whether the
// model a handle points to tolerates concurrent TextToIds calls is a property
// of the native library, not of this binding.
type Library struct {
	path   string
	handle uintptr

	loadModel func(path *byte) uintptr
	textToIDs func(model uintptr, text *byte, textLen int32, ids *int32, maxIDs int32, algorithm int32) int32
	freeModel func(model uintptr) int32
	version   func() int32
}

// Open loads the shared library at path and binds LoadModel, TextToIds and
// FreeModel. GetBlingFireTokVersion is bound when present.
func Open(path string) (*Library, error) {
	if path == "" {
		return nil, ErrLibraryNotFound
	}

	handle, err := loadLibrary(path)
	if err != nil {
		return nil, err
	}

	lib := &Library{path: path, handle: handle}

	err = lib.bind()
	if err != nil {
		_ = closeLibrary(handle)
		return nil, err
	}

	return lib, nil
}

func (l *Library) bind() error {
	required := []struct {
		name string
		fptr any
	}{
		{symLoadModel, &l.loadModel},
		{symTextToIDs, &l.textToIDs},
		{symFreeModel, &l.freeModel},
	}

	for _, r := range required {
		sym, err := lookupSymbol(l.handle, r.name)
		if err != nil || sym == 0 {
			return fmt.Errorf("%w: %s in %s", ErrMissingSymbol, r.name, l.path)
		}

		purego.RegisterFunc(r.fptr, sym)
	}

	if sym, err := lookupSymbol(l.handle, symVersion); err == nil && sym != 0 {
		purego.RegisterFunc(&l.version, sym)
	}

	return nil
}

// Path returns the file the library was opened from.
func (l *Library) Path() string { return l.path }

// Version returns the value of GetBlingFireTokVersion, or 0 when the library
// does not export it.
func (l *Library) Version() int {
	if l.version == nil {
		return 0
	}

	return int(l.version())
}

// LoadModel calls the native LoadModel. A zero handle means the native side
// refused the model; it gives no further detail. The only error returned is
// ErrEmbeddedNUL, before the native call is made.
func (l *Library) LoadModel(path string) (uintptr, error) {
	cpath, err := CString(path)
	if err != nil {
		return 0, fmt.Errorf("model path: %w", err)
	}

	model := l.loadModel(&cpath[0])
	runtime.KeepAlive(cpath)

	return model, nil
}

// TextToIDs calls the native TextToIds, writing into out. The byte length of
// text and len(out) are saturated to the C int range. The native routine
// writes at most len(out) IDs and silently drops the rest; the returned count
// is whatever the native side reported.
func (l *Library) TextToIDs(model uintptr, text string, out []int32, algorithm int32) (int, error) {
	ctext, err := CString(text)
	if err != nil {
		return 0, fmt.Errorf("text: %w", err)
	}

	var ids *int32
	if len(out) > 0 {
		ids = &out[0]
	}

	n := l.textToIDs(model, &ctext[0], SaturateInt32(len(text)), ids, SaturateInt32(len(out)), algorithm)
	runtime.KeepAlive(ctext)
	runtime.KeepAlive(out)

	return int(n), nil
}

// FreeModel calls the native FreeModel and returns its raw status.
// FreeOK signals success.
func (l *Library) FreeModel(model uintptr) int32 {
	return l.freeModel(model)
}

// Close unloads the shared library. No model loaded from it may be used
// afterwards.
func (l *Library) Close() error {
	if l.handle == 0 {
		return nil
	}

	err := closeLibrary(l.handle)
	l.handle = 0

	return err
}

package tokenizer

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPath is returned when Load is called with an empty model path.
	ErrEmptyPath = errors.New("tokenizer model path must not be empty")

	// ErrModelLoad reports that the native LoadModel returned a null handle.
	// The library gives no reason (missing file, corrupt or incompatible
	// model all look the same), so none is inferred. Retrying the same path
	// will not help.
	ErrModelLoad = errors.New("blingfire model load failed")

	// ErrModelFree reports that the native FreeModel returned a failure
	// status. The native memory is in an unknown state: it may or may not have
	// been freed. Do not retry.
	ErrModelFree = errors.New("blingfire model free failed")

	// ErrNotAcquired is returned by operations on a Model that was never
	// loaded (the zero value or a nil pointer).
	ErrNotAcquired = errors.New("tokenizer model not acquired")

	// ErrReleased is returned by TextToIDs after Free.
	ErrReleased = errors.New("tokenizer model has been released")

	// ErrAlreadyReleased is returned by a second Free. It wraps ErrReleased.
	ErrAlreadyReleased = fmt.Errorf("free called more than once: %w", ErrReleased)

	// ErrInvalidText is returned when text cannot be passed to the native
	// routine, i.e. it contains a NUL byte.
	ErrInvalidText = errors.New("text cannot be passed to blingfire")

	// ErrNilLibrary is returned by Load when no native library is supplied.
	ErrNilLibrary = errors.New("tokenizer library must not be nil")
)

package native

import (
	"errors"
	"math"
	"strings"
)

// ErrEmbeddedNUL is returned when a string bound for a NUL-terminated native
// parameter contains a NUL byte. Passing it through would silently truncate.
var ErrEmbeddedNUL = errors.New("string contains an embedded NUL byte")

// CString returns s as a NUL-terminated byte slice. The slice always has at
// least one element, so &b[0] is valid even for the empty string.
func CString(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, ErrEmbeddedNUL
	}

	b := make([]byte, len(s)+1)
	copy(b, s)

	return b, nil
}

// SaturateInt32 converts a Go length to a C int, clamping to [0, MaxInt32]
// instead of wrapping.
func SaturateInt32(n int) int32 {
	switch {
	case n < 0:
		return 0
	case int64(n) > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(n)
	}
}

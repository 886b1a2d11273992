package testutil

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/example/go-blingfire/internal/native"
)

// FakeLibrary is a deterministic in-process replacement for the native
// library. It implements tokenizer.Library.
//
// Each whitespace-separated word becomes one non-zero ID (see FakeIDs). It
// counts every call and records handles used after they were freed.
type FakeLibrary struct {
	// Models maps loadable paths to handles. Any other path loads as 0.
	Models map[string]uintptr
	// FreeStatus is returned by FreeModel. Zero means native.FreeOK.
	FreeStatus int32

	loads atomic.Int64
	calls atomic.Int64
	frees atomic.Int64

	mu           sync.Mutex
	freed        map[uintptr]int
	useAfterFree int
}

// NewFakeLibrary returns a FakeLibrary that loads each path in paths with a
// distinct non-zero handle.
func NewFakeLibrary(paths ...string) *FakeLibrary {
	models := make(map[string]uintptr, len(paths))
	for i, p := range paths {
		models[p] = uintptr(0x1000 + i)
	}

	return &FakeLibrary{Models: models}
}

// LoadModel returns the configured handle for path, or 0.
func (f *FakeLibrary) LoadModel(path string) (uintptr, error) {
	if _, err := native.CString(path); err != nil {
		return 0, err
	}

	f.loads.Add(1)

	return f.Models[path], nil
}

// TextToIDs writes FakeIDs(text) into out, truncating to len(out), and
// returns the untruncated count the way the native routine does.
func (f *FakeLibrary) TextToIDs(model uintptr, text string, out []int32, _ int32) (int, error) {
	if _, err := native.CString(text); err != nil {
		return 0, err
	}

	f.calls.Add(1)

	f.mu.Lock()
	if f.freed[model] > 0 {
		f.useAfterFree++
	}
	f.mu.Unlock()

	ids := FakeIDs(text)
	copy(out, ids)

	return len(ids), nil
}

// FreeModel records the release and returns FreeStatus (FreeOK when unset).
func (f *FakeLibrary) FreeModel(model uintptr) int32 {
	f.frees.Add(1)

	f.mu.Lock()
	if f.freed == nil {
		f.freed = make(map[uintptr]int)
	}
	f.freed[model]++
	f.mu.Unlock()

	if f.FreeStatus == 0 {
		return native.FreeOK
	}

	return f.FreeStatus
}

// Loads returns the number of LoadModel calls.
func (f *FakeLibrary) Loads() int64 { return f.loads.Load() }

// Calls returns the number of TextToIDs calls that reached the fake.
func (f *FakeLibrary) Calls() int64 { return f.calls.Load() }

// Frees returns the number of FreeModel calls.
func (f *FakeLibrary) Frees() int64 { return f.frees.Load() }

// UseAfterFree returns how many TextToIDs calls used an already freed handle.
func (f *FakeLibrary) UseAfterFree() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.useAfterFree
}

// FakeIDs is the tokenization FakeLibrary applies: one ID per
// whitespace-separated word, derived from its bytes and never zero.
func FakeIDs(text string) []int32 {
	words := strings.Fields(text)
	ids := make([]int32, len(words))

	for i, w := range words {
		var h int32 = 7
		for j := 0; j < len(w); j++ {
			h = (h*31 + int32(w[j])) % 250000
		}

		ids[i] = h + 1
	}

	return ids
}

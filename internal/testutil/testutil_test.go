package testutil_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/example/go-blingfire/internal/native"
	"github.com/example/go-blingfire/internal/testutil"
)

func TestRequireLibrary_SkipsWhenAbsent(t *testing.T) {
	t.Setenv("BLINGFIRE_LIB", "/nonexistent/libblingfiretokdll.so")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireLibrary(fakeT)
	if !skipped {
		t.Error("expected RequireLibrary to skip when library is absent")
	}
}

func TestRequireModel_SkipsWhenEnvPointsNowhere(t *testing.T) {
	t.Setenv("BLINGFIRE_MODEL", filepath.Join(t.TempDir(), "missing.bling"))

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	if got := testutil.RequireModel(fakeT); got != "" {
		t.Errorf("RequireModel returned %q; want empty path on skip", got)
	}
	if !skipped {
		t.Error("expected RequireModel to skip when BLINGFIRE_MODEL does not exist")
	}
}

func TestRequireFile_SkipsWhenAbsent(t *testing.T) {
	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireFile(fakeT, filepath.Join("no", "such", "fixture.txt"))
	if !skipped {
		t.Error("expected RequireFile to skip for a missing fixture")
	}
}

func TestFakeIDs_NonZeroAndPerWord(t *testing.T) {
	ids := testutil.FakeIDs("hello  world again")
	if len(ids) != 3 {
		t.Fatalf("len(FakeIDs) = %d; want 3", len(ids))
	}

	for i, id := range ids {
		if id <= 0 {
			t.Errorf("ids[%d] = %d; want positive", i, id)
		}
	}

	again := testutil.FakeIDs("hello world again")
	for i := range ids {
		if ids[i] != again[i] {
			t.Errorf("FakeIDs not deterministic at %d: %d vs %d", i, ids[i], again[i])
		}
	}
}

func TestFakeLibrary_TruncatesAndReportsCount(t *testing.T) {
	lib := testutil.NewFakeLibrary("m")

	out := make([]int32, 2)
	n, err := lib.TextToIDs(0x1000, "a b c d", out, 3)
	if err != nil {
		t.Fatalf("TextToIDs: %v", err)
	}

	if n != 4 {
		t.Errorf("count = %d; want 4", n)
	}

	want := testutil.FakeIDs("a b")
	if out[0] != want[0] || out[1] != want[1] {
		t.Errorf("out = %v; want %v", out, want)
	}
}

func TestFakeLibrary_RejectsNUL(t *testing.T) {
	lib := testutil.NewFakeLibrary()

	_, err := lib.TextToIDs(1, "a\x00b", make([]int32, 3), 3)
	if !errors.Is(err, native.ErrEmbeddedNUL) {
		t.Fatalf("err = %v; want ErrEmbeddedNUL", err)
	}

	if lib.Calls() != 0 {
		t.Errorf("Calls() = %d; want 0", lib.Calls())
	}
}

func TestFakeLibrary_DetectsUseAfterFree(t *testing.T) {
	lib := testutil.NewFakeLibrary("m")

	h, _ := lib.LoadModel("m")
	if status := lib.FreeModel(h); status != native.FreeOK {
		t.Fatalf("FreeModel status = %d", status)
	}

	_, _ = lib.TextToIDs(h, "late call", make([]int32, 9), 3)

	if lib.UseAfterFree() != 1 {
		t.Errorf("UseAfterFree() = %d; want 1", lib.UseAfterFree())
	}
}

// skipTracker is a minimal testing.TB implementation that intercepts Skip calls.
type skipTracker struct {
	testing.TB
	onSkip func()
}

func (s *skipTracker) Helper() {}

func (s *skipTracker) Skipf(_ string, _ ...any) {
	s.onSkip()
	// Do NOT call s.TB.Skip; that would actually skip the outer test.
}

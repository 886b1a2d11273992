package tokenizer_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/example/go-blingfire/internal/native"
	"github.com/example/go-blingfire/internal/testutil"
	"github.com/example/go-blingfire/internal/tokenizer"
)

const testModel = "data/test.bling"

// MockLibrary implements tokenizer.Library for call-recording tests.
type MockLibrary struct {
	mock.Mock
}

func (m *MockLibrary) LoadModel(path string) (uintptr, error) {
	args := m.Called(path)
	handle, ok := args.Get(0).(uintptr)
	if !ok {
		panic("MockLibrary.LoadModel: expected uintptr from mock")
	}

	return handle, args.Error(1)
}

func (m *MockLibrary) TextToIDs(model uintptr, text string, out []int32, algorithm int32) (int, error) {
	args := m.Called(model, text, out, algorithm)
	return args.Int(0), args.Error(1)
}

func (m *MockLibrary) FreeModel(model uintptr) int32 {
	args := m.Called(model)
	status, ok := args.Get(0).(int32)
	if !ok {
		panic("MockLibrary.FreeModel: expected int32 from mock")
	}

	return status
}

func loadFake(t *testing.T, opts ...tokenizer.Option) (*tokenizer.Model, *testutil.FakeLibrary) {
	t.Helper()

	lib := testutil.NewFakeLibrary(testModel)
	m, err := tokenizer.Load(lib, testModel, opts...)
	require.NoError(t, err)

	return m, lib
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad_ThenFreeSucceeds(t *testing.T) {
	lib := &MockLibrary{}
	lib.On("LoadModel", testModel).Return(uintptr(0xbeef), nil).Once()
	lib.On("FreeModel", uintptr(0xbeef)).Return(native.FreeOK).Once()

	m, err := tokenizer.Load(lib, testModel)
	require.NoError(t, err)
	assert.Equal(t, tokenizer.StateAcquired, m.State())
	assert.Equal(t, testModel, m.Path())

	require.NoError(t, m.Free())
	assert.Equal(t, tokenizer.StateReleased, m.State())
	lib.AssertExpectations(t)
}

func TestLoad_NullHandleIsModelLoadFailure(t *testing.T) {
	lib := &MockLibrary{}
	lib.On("LoadModel", "missing.bling").Return(uintptr(0), nil).Once()

	m, err := tokenizer.Load(lib, "missing.bling")
	require.ErrorIs(t, err, tokenizer.ErrModelLoad)
	assert.Nil(t, m)
	assert.Contains(t, err.Error(), "missing.bling")
	lib.AssertExpectations(t)
}

func TestLoad_EmbeddedNULFailsFast(t *testing.T) {
	lib := testutil.NewFakeLibrary()

	m, err := tokenizer.Load(lib, "model\x00.bling")
	require.ErrorIs(t, err, native.ErrEmbeddedNUL)
	assert.Nil(t, m)
	assert.Zero(t, lib.Loads(), "native LoadModel must not run for a NUL path")
}

func TestLoad_EmptyPath(t *testing.T) {
	lib := &MockLibrary{}

	_, err := tokenizer.Load(lib, "")
	require.ErrorIs(t, err, tokenizer.ErrEmptyPath)
	lib.AssertNotCalled(t, "LoadModel", mock.Anything)
}

func TestLoad_NilLibrary(t *testing.T) {
	_, err := tokenizer.Load(nil, testModel)
	require.ErrorIs(t, err, tokenizer.ErrNilLibrary)
}

// ---------------------------------------------------------------------------
// TextToIDs
// ---------------------------------------------------------------------------

func TestTextToIDs_EmptyTextSkipsNative(t *testing.T) {
	lib := &MockLibrary{}
	lib.On("LoadModel", testModel).Return(uintptr(1), nil)

	m, err := tokenizer.Load(lib, testModel)
	require.NoError(t, err)

	ids, err := m.TextToIDs("")
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
	lib.AssertNotCalled(t, "TextToIDs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTextToIDs_ForwardsHandleLengthAndAlgorithm(t *testing.T) {
	tests := []struct {
		name string
		opts []tokenizer.Option
		algo int32
	}{
		{"default algorithm", nil, tokenizer.DefaultAlgorithm},
		{"custom algorithm", []tokenizer.Option{tokenizer.WithAlgorithm(7)}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := &MockLibrary{}
			lib.On("LoadModel", testModel).Return(uintptr(42), nil)
			lib.On("TextToIDs", uintptr(42), "hello world",
				mock.MatchedBy(func(out []int32) bool { return len(out) == len("hello world") }),
				tt.algo,
			).Run(func(args mock.Arguments) {
				out := args.Get(2).([]int32)
				out[0], out[1] = 101, 202
			}).Return(2, nil).Once()

			m, err := tokenizer.Load(lib, testModel, tt.opts...)
			require.NoError(t, err)

			ids, err := m.TextToIDs("hello world")
			require.NoError(t, err)
			require.Len(t, ids, len("hello world"))
			assert.Equal(t, []int32{101, 202}, ids[:2])
			assert.Equal(t, make([]int32, len(ids)-2), ids[2:], "trailing padding must be kept")
			lib.AssertExpectations(t)
		})
	}
}

func TestTextToIDs_RejectsEmbeddedNUL(t *testing.T) {
	m, lib := loadFake(t)

	_, err := m.TextToIDs("a\x00b")
	require.ErrorIs(t, err, tokenizer.ErrInvalidText)
	require.ErrorIs(t, err, native.ErrEmbeddedNUL)
	assert.Zero(t, lib.Calls())
}

func TestTextToIDs_ByteLengthPolicyKeepsAllTokens(t *testing.T) {
	m, _ := loadFake(t)

	text := "the quick brown fox jumps over the lazy dog"
	ids, err := m.TextToIDs(text)
	require.NoError(t, err)
	require.Len(t, ids, len(text))

	want := testutil.FakeIDs(text)
	assert.Equal(t, want, ids[:len(want)])
}

func TestTextToIDs_FixedPolicyTruncatesSilently(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	m, _ := loadFake(t, tokenizer.WithCapacityPolicy(tokenizer.Fixed(2)), tokenizer.WithLogger(logger))

	ids, err := m.TextToIDs("one two three four")
	require.NoError(t, err, "truncation is not an error")
	assert.Equal(t, testutil.FakeIDs("one two"), ids)
	assert.Contains(t, logs.String(), "truncated")
}

func TestTextToIDs_FixedPolicyPadsShortInput(t *testing.T) {
	m, _ := loadFake(t, tokenizer.WithCapacityPolicy(tokenizer.Fixed(16)))

	ids, err := m.TextToIDs("hi")
	require.NoError(t, err)
	require.Len(t, ids, 16)
	assert.Equal(t, testutil.FakeIDs("hi")[0], ids[0])
	assert.Equal(t, make([]int32, 15), ids[1:])
}

func TestTextToIDs_CappedPolicy(t *testing.T) {
	m, _ := loadFake(t, tokenizer.WithCapacityPolicy(tokenizer.Capped(500)))

	short, err := m.TextToIDs("hello world")
	require.NoError(t, err)
	assert.Len(t, short, len("hello world"))

	long := strings.Repeat("ab ", 400) // 1200 bytes, 400 words
	ids, err := m.TextToIDs(long)
	require.NoError(t, err)
	assert.Len(t, ids, 500)
	assert.Equal(t, testutil.FakeIDs(long), ids[:400])
}

func TestTextToIDs_ZeroCapacitySkipsNative(t *testing.T) {
	m, lib := loadFake(t, tokenizer.WithCapacityPolicy(tokenizer.Fixed(0)))

	ids, err := m.TextToIDs("hello")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, lib.Calls())
}

func TestTextToIDs_AfterFreeIsRejected(t *testing.T) {
	m, lib := loadFake(t)
	require.NoError(t, m.Free())

	_, err := m.TextToIDs("hello")
	require.ErrorIs(t, err, tokenizer.ErrReleased)
	assert.Zero(t, lib.Calls())
	assert.Zero(t, lib.UseAfterFree())
}

func TestZeroValueModelIsUnacquired(t *testing.T) {
	var m tokenizer.Model

	assert.Equal(t, tokenizer.StateUnacquired, m.State())

	_, err := m.TextToIDs("hello")
	require.ErrorIs(t, err, tokenizer.ErrNotAcquired)
	require.ErrorIs(t, m.Free(), tokenizer.ErrNotAcquired)

	var nilModel *tokenizer.Model
	_, err = nilModel.TextToIDs("hello")
	require.ErrorIs(t, err, tokenizer.ErrNotAcquired)
	require.ErrorIs(t, nilModel.Free(), tokenizer.ErrNotAcquired)
}

// ---------------------------------------------------------------------------
// Free
// ---------------------------------------------------------------------------

func TestFree_TwiceIsAPreconditionViolation(t *testing.T) {
	lib := &MockLibrary{}
	lib.On("LoadModel", testModel).Return(uintptr(9), nil)
	lib.On("FreeModel", uintptr(9)).Return(native.FreeOK).Once()

	m, err := tokenizer.Load(lib, testModel)
	require.NoError(t, err)
	require.NoError(t, m.Free())

	err = m.Free()
	require.ErrorIs(t, err, tokenizer.ErrAlreadyReleased)
	require.ErrorIs(t, err, tokenizer.ErrReleased)
	lib.AssertNumberOfCalls(t, "FreeModel", 1)
}

func TestFree_NativeFailureIsModelFreeFailure(t *testing.T) {
	lib := &MockLibrary{}
	lib.On("LoadModel", testModel).Return(uintptr(9), nil)
	lib.On("FreeModel", uintptr(9)).Return(int32(0)).Once()

	m, err := tokenizer.Load(lib, testModel)
	require.NoError(t, err)

	err = m.Free()
	require.ErrorIs(t, err, tokenizer.ErrModelFree)
	assert.Equal(t, tokenizer.StateReleased, m.State(), "state after a failed free is unknown; never reuse")

	require.ErrorIs(t, m.Free(), tokenizer.ErrAlreadyReleased, "a failed free must not be retried")
	lib.AssertNumberOfCalls(t, "FreeModel", 1)
}

// blockingLibrary parks every TextToIDs call until release is closed.
type blockingLibrary struct {
	*testutil.FakeLibrary

	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	order []string
}

func (b *blockingLibrary) TextToIDs(model uintptr, text string, out []int32, algo int32) (int, error) {
	b.entered <- struct{}{}
	<-b.release

	b.mu.Lock()
	b.order = append(b.order, "call")
	b.mu.Unlock()

	return b.FakeLibrary.TextToIDs(model, text, out, algo)
}

func (b *blockingLibrary) FreeModel(model uintptr) int32 {
	b.mu.Lock()
	b.order = append(b.order, "free")
	b.mu.Unlock()

	return b.FakeLibrary.FreeModel(model)
}

func TestFree_WaitsForInFlightCalls(t *testing.T) {
	lib := &blockingLibrary{
		FakeLibrary: testutil.NewFakeLibrary(testModel),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}

	m, err := tokenizer.Load(lib, testModel)
	require.NoError(t, err)

	callDone := make(chan error, 1)
	go func() {
		_, err := m.TextToIDs("in flight")
		callDone <- err
	}()
	<-lib.entered

	freeDone := make(chan error, 1)
	go func() { freeDone <- m.Free() }()

	select {
	case <-freeDone:
		t.Fatal("Free returned while a TextToIDs call was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(lib.release)
	require.NoError(t, <-callDone)
	require.NoError(t, <-freeDone)

	lib.mu.Lock()
	defer lib.mu.Unlock()
	assert.Equal(t, []string{"call", "free"}, lib.order)
	assert.Zero(t, lib.UseAfterFree())
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestTextToIDs_ConcurrentMatchesSequential(t *testing.T) {
	inputs := []string{
		"hello world",
		"Ð­pple pie. How do I renew my virtual smart card?",
		"In order to get to microsoft.com we need to type pi@1.2.1.2.",
		"",
		strings.Repeat("token ", 64),
		"one",
	}

	for _, n := range []int{1, 2, 8, 64} {
		t.Run(fmt.Sprintf("goroutines=%d", n), func(t *testing.T) {
			m, lib := loadFake(t)

			want := make([][]int32, len(inputs))
			for i, in := range inputs {
				ids, err := m.TextToIDs(in)
				require.NoError(t, err)
				want[i] = ids
			}

			got := make([][][]int32, n)
			errs := make([]error, n)

			var wg sync.WaitGroup
			for g := range n {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()

					got[g] = make([][]int32, len(inputs))
					for i := range inputs {
						// Rotate so goroutines hit different inputs at the same time.
						idx := (i + g) % len(inputs)

						ids, err := m.TextToIDs(inputs[idx])
						if err != nil {
							errs[g] = err
							return
						}

						got[g][idx] = ids
					}
				}(g)
			}
			wg.Wait()

			for g := range n {
				require.NoError(t, errs[g])
				assert.Equal(t, want, got[g], "goroutine %d diverged from sequential results", g)
			}

			require.NoError(t, m.Free())
			assert.Zero(t, lib.UseAfterFree())
		})
	}
}

func TestTextToIDs_ConcurrentWithFreeNeverUsesFreedHandle(t *testing.T) {
	m, lib := loadFake(t)

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for range 50 {
				_, err := m.TextToIDs("race the release")
				if err != nil && !errors.Is(err, tokenizer.ErrReleased) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}

	require.NoError(t, m.Free())
	wg.Wait()

	assert.Zero(t, lib.UseAfterFree())
	assert.Equal(t, int64(1), lib.Frees())
}

// ---------------------------------------------------------------------------
// Scenario
// ---------------------------------------------------------------------------

func TestScenario_HelloWorldEmptyFree(t *testing.T) {
	m, _ := loadFake(t)

	ids, err := m.TextToIDs("hello world")
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	assert.Equal(t, testutil.FakeIDs("hello world"), ids[:2])

	empty, err := m.TextToIDs("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, m.Free())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unacquired", tokenizer.StateUnacquired.String())
	assert.Equal(t, "acquired", tokenizer.StateAcquired.String())
	assert.Equal(t, "released", tokenizer.StateReleased.String())
	assert.Equal(t, "state(9)", tokenizer.State(9).String())
}

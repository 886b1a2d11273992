package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-blingfire/internal/batch"
	"github.com/example/go-blingfire/internal/testutil"
	"github.com/example/go-blingfire/internal/tokenizer"
)

func loadModel(t *testing.T) (*tokenizer.Model, *testutil.FakeLibrary) {
	t.Helper()

	lib := testutil.NewFakeLibrary("m.bling")
	m, err := tokenizer.Load(lib, "m.bling")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Free() })

	return m, lib
}

func corpus(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("line %d has some words %d", i, i*i)
	}

	texts[n/2] = ""

	return texts
}

func TestTextsToIDs_PreservesOrder(t *testing.T) {
	m, lib := loadModel(t)
	texts := corpus(200)

	for _, workers := range []int{0, 1, 2, 8, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			got, err := batch.TextsToIDs(context.Background(), m, texts, batch.Options{Workers: workers})
			require.NoError(t, err)
			require.Len(t, got, len(texts))

			for i, text := range texts {
				want, err := m.TextToIDs(text)
				require.NoError(t, err)
				assert.Equal(t, want, got[i], "text %d", i)
			}
		})
	}

	assert.Zero(t, lib.UseAfterFree())
}

func TestTextsToIDs_Empty(t *testing.T) {
	m, lib := loadModel(t)

	got, err := batch.TextsToIDs(context.Background(), m, nil, batch.Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, lib.Calls())
}

func TestTextsToIDs_PropagatesErrors(t *testing.T) {
	m, _ := loadModel(t)

	_, err := batch.TextsToIDs(context.Background(), m, []string{"ok", "bad\x00text", "ok too"}, batch.Options{Workers: 2})
	require.ErrorIs(t, err, tokenizer.ErrInvalidText)
}

func TestTextsToIDs_ReleasedModel(t *testing.T) {
	lib := testutil.NewFakeLibrary("m.bling")
	m, err := tokenizer.Load(lib, "m.bling")
	require.NoError(t, err)
	require.NoError(t, m.Free())

	_, err = batch.TextsToIDs(context.Background(), m, []string{"a", "b"}, batch.Options{})
	require.ErrorIs(t, err, tokenizer.ErrReleased)
	assert.Zero(t, lib.UseAfterFree())
}

// countingTokenizer cancels its context after the first call.
type countingTokenizer struct {
	calls  atomic.Int64
	cancel context.CancelFunc
}

func (c *countingTokenizer) TextToIDs(string) ([]int32, error) {
	c.calls.Add(1)
	c.cancel()

	return []int32{1}, nil
}

func TestTextsToIDs_CancelStopsPendingTexts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tok := &countingTokenizer{cancel: cancel}

	_, err := batch.TextsToIDs(ctx, tok, corpus(100), batch.Options{Workers: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
	assert.Less(t, tok.calls.Load(), int64(100))
}

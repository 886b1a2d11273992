// Package tokenizer owns the lifecycle of a native BlingFire model handle.
//
// A Model moves through three states: Unacquired (the zero value), Acquired
// (after Load) and Released (after Free). TextToIDs is only valid while
// Acquired; Free is valid exactly once.
//
// Output buffers are sized by a CapacityPolicy before the native call. The
// native routine cannot report that a buffer was too small: IDs that do not
// fit are dropped without any signal. Choosing a policy large enough for the
// input is the caller's responsibility. Returned buffers keep any trailing
// zero slots; stripping them is post-processing (see corpus.TrimPadding).
//
// Concurrent TextToIDs calls on one Model are supported. That relies on the
// native library treating the loaded model as read-only during TextToIds,
// which this package assumes and exercises in tests but cannot prove.
package tokenizer

// Tokenizer converts text into BlingFire token IDs.
type Tokenizer interface {
	TextToIDs(text string) ([]int32, error)
}

// Library is the native surface a Model drives. *native.Library implements it;
// tests substitute a recording stub.
type Library interface {
	// LoadModel returns 0 when the native side rejects the model.
	LoadModel(path string) (uintptr, error)
	// TextToIDs writes at most len(out) IDs and returns the native count.
	TextToIDs(model uintptr, text string, out []int32, algorithm int32) (int, error)
	// FreeModel returns the raw native status.
	FreeModel(model uintptr) int32
}

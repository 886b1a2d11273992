package tokenizer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/example/go-blingfire/internal/native"
)

// DefaultAlgorithm is the selector passed as the last TextToIds argument.
// Its meaning belongs to the native library; this package only forwards it.
const DefaultAlgorithm int32 = 3

// State is the lifecycle state of a Model.
type State int

const (
	StateUnacquired State = iota
	StateAcquired
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnacquired:
		return "unacquired"
	case StateAcquired:
		return "acquired"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type options struct {
	policy    CapacityPolicy
	algorithm int32
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{
		policy:    ByteLength(),
		algorithm: DefaultAlgorithm,
		logger:    slog.Default(),
	}
}

// Option configures a Model at Load time.
type Option func(*options)

// WithCapacityPolicy overrides the default ByteLength output sizing.
func WithCapacityPolicy(p CapacityPolicy) Option {
	return func(o *options) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithAlgorithm overrides the selector forwarded to TextToIds.
func WithAlgorithm(a int32) Option {
	return func(o *options) { o.algorithm = a }
}

// WithLogger sets the logger used for lifecycle and truncation messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Model owns one native model handle.
//
// TextToIDs holds a read lock for the duration of the native call and Free
// takes the write lock, so Free waits for every in-flight call and no call
// can start on a freed handle.
type Model struct {
	mu     sync.RWMutex
	lib    Library
	handle uintptr
	state  State
	path   string
	opts   options
}

var _ Tokenizer = (*Model)(nil)

// Load acquires a native model from path.
//
// A path containing a NUL byte is rejected before the native call. A null
// handle from the native side is reported as ErrModelLoad.
func Load(lib Library, path string, optFns ...Option) (*Model, error) {
	if lib == nil {
		return nil, ErrNilLibrary
	}

	if path == "" {
		return nil, ErrEmptyPath
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	handle, err := lib.LoadModel(path)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", path, err)
	}

	if handle == 0 {
		return nil, fmt.Errorf("load model %q: %w", path, ErrModelLoad)
	}

	opts.logger.Debug("loaded blingfire model",
		slog.String("path", path),
		slog.String("capacity_policy", opts.policy.String()),
		slog.Int("algorithm", int(opts.algorithm)),
	)

	return &Model{
		lib:    lib,
		handle: handle,
		state:  StateAcquired,
		path:   path,
		opts:   opts,
	}, nil
}

// Path returns the model path given to Load.
func (m *Model) Path() string {
	if m == nil {
		return ""
	}

	return m.path
}

// State reports the current lifecycle state.
func (m *Model) State() State {
	if m == nil {
		return StateUnacquired
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// CapacityPolicy returns the policy used to size output buffers.
func (m *Model) CapacityPolicy() CapacityPolicy {
	if m == nil || m.opts.policy == nil {
		return ByteLength()
	}

	return m.opts.policy
}

// TextToIDs tokenizes text into a freshly allocated buffer whose length is
// the policy's capacity for len(text). The buffer is returned as filled by
// the native routine, trailing zero slots included.
//
// Empty text returns an empty slice without calling the native library.
// Text that needs more slots than the capacity is truncated silently; a
// warning is logged when the native count shows it happened.
func (m *Model) TextToIDs(text string) ([]int32, error) {
	if m == nil {
		return nil, ErrNotAcquired
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.state {
	case StateUnacquired:
		return nil, ErrNotAcquired
	case StateReleased:
		return nil, ErrReleased
	}

	if text == "" {
		return []int32{}, nil
	}

	if strings.IndexByte(text, 0) >= 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidText, native.ErrEmbeddedNUL)
	}

	out := make([]int32, m.opts.policy.Capacity(len(text)))
	if len(out) == 0 {
		return out, nil
	}

	n, err := m.lib.TextToIDs(m.handle, text, out, m.opts.algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidText, err)
	}

	if n > len(out) {
		m.opts.logger.Warn("token ids truncated by output capacity",
			slog.String("capacity_policy", m.opts.policy.String()),
			slog.Int("capacity", len(out)),
			slog.Int("native_count", n),
			slog.Int("text_len", len(text)),
		)
	}

	return out, nil
}

// Free releases the native model. It blocks until in-flight TextToIDs calls
// return. The Model is Released afterwards even if the native status reports
// failure (ErrModelFree), because the native state is then unknown. A second
// Free returns ErrAlreadyReleased.
func (m *Model) Free() error {
	if m == nil {
		return ErrNotAcquired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateUnacquired:
		return ErrNotAcquired
	case StateReleased:
		return ErrAlreadyReleased
	}

	status := m.lib.FreeModel(m.handle)
	m.state = StateReleased
	m.handle = 0

	if status != native.FreeOK {
		return fmt.Errorf("free model %q (status %d): %w", m.path, status, ErrModelFree)
	}

	m.opts.logger.Debug("freed blingfire model", slog.String("path", m.path))

	return nil
}

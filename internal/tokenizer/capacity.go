package tokenizer

import (
	"fmt"

	"github.com/example/go-blingfire/internal/config"
	"github.com/example/go-blingfire/internal/native"
)

// Capacity policy names as they appear in configuration.
const (
	PolicyByteLength = config.CapacityByteLength
	PolicyFixed      = config.CapacityFixed
	PolicyCapped     = config.CapacityCapped
)

// CapacityPolicy decides how many int32 slots to allocate for a text of
// byteLen bytes. A capacity below the true token count truncates silently.
type CapacityPolicy interface {
	Capacity(byteLen int) int
	String() string
}

// ByteLength sizes the buffer to the input's byte length. Byte and subword
// models never emit more IDs than input bytes, so this does not truncate for
// them. It is the default.
func ByteLength() CapacityPolicy { return byteLengthPolicy{} }

// Fixed always allocates n slots. Use it only when inputs are known to be
// short; longer inputs are truncated to n IDs.
func Fixed(n int) CapacityPolicy { return fixedPolicy{n: max(n, 0)} }

// Capped allocates min(byteLen, n) slots: byte-length sizing with a ceiling.
// Inputs producing more than n IDs are truncated.
func Capped(n int) CapacityPolicy { return cappedPolicy{n: max(n, 0)} }

type byteLengthPolicy struct{}

func (byteLengthPolicy) Capacity(byteLen int) int { return max(byteLen, 0) }
func (byteLengthPolicy) String() string           { return PolicyByteLength }

type fixedPolicy struct{ n int }

func (p fixedPolicy) Capacity(int) int { return p.n }
func (p fixedPolicy) String() string   { return fmt.Sprintf("%s(%d)", PolicyFixed, p.n) }

type cappedPolicy struct{ n int }

func (p cappedPolicy) Capacity(byteLen int) int { return min(max(byteLen, 0), p.n) }
func (p cappedPolicy) String() string           { return fmt.Sprintf("%s(%d)", PolicyCapped, p.n) }

// ParseCapacityPolicy builds a policy from its configured name. limit is
// required for fixed and capped and ignored for byte-length.
func ParseCapacityPolicy(name string, limit int) (CapacityPolicy, error) {
	policy, err := config.NormalizeCapacityPolicy(name)
	if err != nil {
		return nil, err
	}

	switch policy {
	case PolicyFixed:
		if limit <= 0 {
			return nil, fmt.Errorf("capacity policy %q requires a positive limit, got %d", PolicyFixed, limit)
		}

		return Fixed(limit), nil
	case PolicyCapped:
		if limit <= 0 {
			return nil, fmt.Errorf("capacity policy %q requires a positive limit, got %d", PolicyCapped, limit)
		}

		return Capped(limit), nil
	default:
		return ByteLength(), nil
	}
}

// OptionsFromConfig translates the tokenizer config section into Load
// options.
func OptionsFromConfig(cfg config.TokenizerConfig) ([]Option, error) {
	policy, err := ParseCapacityPolicy(cfg.CapacityPolicy, cfg.CapacityLimit)
	if err != nil {
		return nil, err
	}

	algorithm := DefaultAlgorithm
	if cfg.Algorithm != 0 {
		algorithm = native.SaturateInt32(cfg.Algorithm)
	}

	return []Option{WithCapacityPolicy(policy), WithAlgorithm(algorithm)}, nil
}

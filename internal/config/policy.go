package config

import (
	"fmt"
	"strings"
)

const (
	CapacityByteLength = "byte-length"
	CapacityFixed      = "fixed"
	CapacityCapped     = "capped"
)

func NormalizeCapacityPolicy(raw string) (string, error) {
	policy := strings.ToLower(strings.TrimSpace(raw))
	if policy == "" {
		policy = CapacityByteLength
	}
	switch policy {
	case CapacityByteLength, CapacityFixed, CapacityCapped:
		return policy, nil
	case "bytes", "byte_length":
		return CapacityByteLength, nil
	default:
		return "", fmt.Errorf(
			"invalid capacity policy %q (expected %s|%s|%s|bytes)",
			raw,
			CapacityByteLength,
			CapacityFixed,
			CapacityCapped,
		)
	}
}

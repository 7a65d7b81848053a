package ai

import (
	"fmt"
	"math"
	"strings"
)

// DimensionPolicy decides how vectors of the wrong length are brought to the store dimension.
type DimensionPolicy string

const (
	// PolicyPadTruncate zero-pads short vectors and keeps the leading components of long ones.
	PolicyPadTruncate DimensionPolicy = "pad-truncate"
	// PolicyStrict rejects any vector whose length differs from the dimension.
	PolicyStrict DimensionPolicy = "strict"
)

// ParseDimensionPolicy converts a configuration string into a DimensionPolicy.
// The empty string selects PolicyPadTruncate.
func ParseDimensionPolicy(s string) (DimensionPolicy, error) {
	switch DimensionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPadTruncate:
		return PolicyPadTruncate, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDimensionPolicy, s)
}

// Normalizer enforces the store dimension on provider output.
type Normalizer struct {
	dimension   int
	policy      DimensionPolicy
	renormalize bool
}

// NewNormalizer creates a Normalizer. With renormalize set, adjusted vectors are rescaled to
// unit length so L2 distance orders results the same way cosine similarity would.
func NewNormalizer(dimension int, policy DimensionPolicy, renormalize bool) (*Normalizer, error) {
	if dimension < 1 {
		return nil, ErrInvalidDimension
	}
	if _, err := ParseDimensionPolicy(string(policy)); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = PolicyPadTruncate
	}
	return &Normalizer{dimension: dimension, policy: policy, renormalize: renormalize}, nil
}

// Dimension returns the target vector length.
func (n *Normalizer) Dimension() int {
	return n.dimension
}

// Apply returns a new vector of exactly Dimension() components.
func (n *Normalizer) Apply(v []float32) ([]float32, error) {
	if len(v) != n.dimension && n.policy == PolicyStrict {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), n.dimension)
	}

	out := make([]float32, n.dimension)
	copy(out, v)

	if n.renormalize {
		return NormalizeVector(out), nil
	}
	return out, nil
}

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float64
	for _, val := range v {
		magnitude += float64(val) * float64(val)
	}
	magnitude = math.Sqrt(magnitude)

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

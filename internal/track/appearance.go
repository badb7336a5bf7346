package track

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Descriptor is an opaque appearance summary for one detection, in practice
// a normalised colour histogram. A nil or empty descriptor means appearance
// is unavailable for that detection; callers fall back to geometry.
type Descriptor []float64

// NewDescriptor copies raw histogram counts and normalises them to sum to 1.
// Returns nil when the input is empty or carries no mass.
func NewDescriptor(counts []float64) Descriptor {
	if len(counts) == 0 {
		return nil
	}
	total := floats.Sum(counts)
	if total <= 0 {
		return nil
	}
	d := make(Descriptor, len(counts))
	copy(d, counts)
	floats.Scale(1/total, d)
	return d
}

// Distance returns the Bhattacharyya distance between two normalised
// descriptors: sqrt(1 - sum(sqrt(p_i * q_i))), in [0, 1] where 0 means
// identical. Mismatched or missing descriptors are maximally distant.
func Distance(p, q Descriptor) float64 {
	if len(p) == 0 || len(q) == 0 || len(p) != len(q) {
		return 1
	}

	var coeff float64
	for i := range p {
		coeff += math.Sqrt(p[i] * q[i])
	}
	if coeff > 1 {
		coeff = 1 // Guard against rounding drift
	}
	return math.Sqrt(1 - coeff)
}

package track

import (
	"math"
	"testing"
)

func TestNewDescriptor(t *testing.T) {
	d := NewDescriptor([]float64{2, 6, 2})
	if d == nil {
		t.Fatal("expected non-nil descriptor")
	}

	var sum float64
	for _, v := range d {
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("expected normalised descriptor to sum to 1, got %v", sum)
	}
	if math.Abs(d[1]-0.6) > 1e-9 {
		t.Errorf("expected d[1]=0.6, got %v", d[1])
	}
}

func TestNewDescriptor_Degenerate(t *testing.T) {
	if d := NewDescriptor(nil); d != nil {
		t.Errorf("expected nil descriptor for nil input, got %v", d)
	}
	if d := NewDescriptor([]float64{}); d != nil {
		t.Errorf("expected nil descriptor for empty input, got %v", d)
	}
	if d := NewDescriptor([]float64{0, 0, 0}); d != nil {
		t.Errorf("expected nil descriptor for zero-mass input, got %v", d)
	}
}

func TestNewDescriptor_CopiesInput(t *testing.T) {
	counts := []float64{1, 1}
	d := NewDescriptor(counts)
	counts[0] = 99

	if d[0] != 0.5 {
		t.Errorf("descriptor shares storage with input: got %v", d[0])
	}
}

func TestDistance(t *testing.T) {
	p := NewDescriptor([]float64{1, 2, 3})

	// Identical descriptors are distance 0.
	if got := Distance(p, p); math.Abs(got) > 1e-6 {
		t.Errorf("expected distance 0 for identical descriptors, got %v", got)
	}

	// Disjoint support is maximally distant.
	a := NewDescriptor([]float64{1, 0})
	b := NewDescriptor([]float64{0, 1})
	if got := Distance(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected distance 1 for disjoint descriptors, got %v", got)
	}

	// Known value: {1,0} vs {0.5,0.5} gives sqrt(1 - sqrt(0.5)).
	c := NewDescriptor([]float64{1, 1})
	want := math.Sqrt(1 - math.Sqrt(0.5))
	if got := Distance(a, c); math.Abs(got-want) > 1e-9 {
		t.Errorf("expected distance %v, got %v", want, got)
	}
}

func TestDistance_Unavailable(t *testing.T) {
	p := NewDescriptor([]float64{1, 2, 3})

	if got := Distance(nil, p); got != 1 {
		t.Errorf("expected distance 1 for nil first descriptor, got %v", got)
	}
	if got := Distance(p, nil); got != 1 {
		t.Errorf("expected distance 1 for nil second descriptor, got %v", got)
	}
	if got := Distance(p, NewDescriptor([]float64{1, 2})); got != 1 {
		t.Errorf("expected distance 1 for mismatched lengths, got %v", got)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	p := NewDescriptor([]float64{1, 2, 3, 4})
	q := NewDescriptor([]float64{4, 3, 2, 1})

	if pq, qp := Distance(p, q), Distance(q, p); math.Abs(pq-qp) > 1e-12 {
		t.Errorf("distance not symmetric: %v vs %v", pq, qp)
	}
}

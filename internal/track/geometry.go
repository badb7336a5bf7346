package track

import "math"

// Box is an axis-aligned bounding box in pixel coordinates.
// X and Y locate the top-left corner.
type Box struct {
	X float64
	Y float64
	W float64
	H float64
}

// Valid reports whether the box has positive extent in both dimensions.
func (b Box) Valid() bool {
	return b.W > 0 && b.H > 0
}

// Area returns the box area in square pixels.
func (b Box) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.W * b.H
}

// CenterY returns the vertical centre of the box.
func (b Box) CenterY() float64 {
	return b.Y + b.H/2
}

// Angle returns the box orientation angle in degrees.
// An upright person gives an angle near 90, a horizontal body near 0.
func (b Box) Angle() float64 {
	return math.Atan2(b.H, b.W) * 180 / math.Pi
}

// AspectRatio returns width over height, or 0 for degenerate boxes.
func (b Box) AspectRatio() float64 {
	if b.H <= 0 {
		return 0
	}
	return b.W / b.H
}

// IoU returns the intersection-over-union of two boxes in [0, 1].
// Degenerate boxes and disjoint boxes score 0.
func (b Box) IoU(o Box) float64 {
	if !b.Valid() || !o.Valid() {
		return 0
	}

	ix1 := math.Max(b.X, o.X)
	iy1 := math.Max(b.Y, o.Y)
	ix2 := math.Min(b.X+b.W, o.X+o.W)
	iy2 := math.Min(b.Y+b.H, o.Y+o.H)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

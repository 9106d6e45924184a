package tensor

import (
	"slices"

	"github.com/pkg/errors"
)

// Shape lists the size of every dimension, outermost first. The empty
// shape is a scalar.
type Shape []int

// NumElements is the product of the dimensions (1 for a scalar).
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate rejects zero or negative dimensions.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d < 1 }); i >= 0 {
		return errors.Errorf("dimension %d of %v is %d, must be positive", i, s, s[i])
	}
	return nil
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// Clone returns a copy that does not alias s.
func (s Shape) Clone() Shape {
	return append(Shape{}, s...)
}

// ComputeStrides returns the row-major element strides of s.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return strides
}

// NormalizeDim resolves a negative dimension index against the rank of s.
func (s Shape) NormalizeDim(dim int) (int, error) {
	d := dim
	if d < 0 {
		d += len(s)
	}
	if d < 0 || d >= len(s) {
		return 0, errors.Errorf("dimension %d out of range for %d-D shape %v", dim, len(s), s)
	}
	return d, nil
}

// BroadcastShapes returns the shape two operands broadcast to. Dimensions
// are aligned from the right; a missing or size-1 dimension stretches to
// match the other operand.
//
//	(3, 1) and (3, 5) -> (3, 5)
//	(5)    and (2, 5) -> (2, 5)
//	(3, 4) and (3, 5) -> error
func BroadcastShapes(a, b Shape) (Shape, error) {
	out := make(Shape, max(len(a), len(b)))
	for i := range out {
		da, db := dimFromRight(a, i), dimFromRight(b, i)
		switch {
		case da == db, db == 1:
			out[len(out)-1-i] = da
		case da == 1:
			out[len(out)-1-i] = db
		default:
			return nil, errors.Errorf("cannot broadcast %v with %v: %d vs %d at dimension %d",
				a, b, da, db, len(out)-1-i)
		}
	}
	return out, nil
}

func dimFromRight(s Shape, i int) int {
	if i < len(s) {
		return s[len(s)-1-i]
	}
	return 1
}

// BroadcastStrides returns the strides that walk a tensor of shape in while
// iterating over the broadcast shape out. Stretched dimensions get stride 0.
func BroadcastStrides(in, out Shape) []int {
	strides := make([]int, len(out))
	offset := len(out) - len(in)
	for i, st := range in.ComputeStrides() {
		if in[i] != 1 {
			strides[offset+i] = st
		}
	}
	return strides
}

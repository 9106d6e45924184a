package nn

import (
	"slices"

	. "github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

// shapeOp is embedded by the parameterless shape-manipulation layers.
type shapeOp[B tensor.Backend] struct {
	mode
}

// Parameters returns nil.
func (shapeOp[B]) Parameters() []*Parameter[B] { return nil }

// Flatten merges dimensions StartDim..EndDim (inclusive, negative values
// count from the end) into one.
type Flatten[B tensor.Backend] struct {
	shapeOp[B]
	startDim, endDim int
}

// NewFlatten creates a Flatten layer. The usual choice is (1, -1), which
// keeps the batch dimension.
func NewFlatten[B tensor.Backend](startDim, endDim int) *Flatten[B] {
	return &Flatten[B]{startDim: startDim, endDim: endDim}
}

// Forward flattens the configured dimension range.
func (f *Flatten[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	start, err1 := shape.NormalizeDim(f.startDim)
	end, err2 := shape.NormalizeDim(f.endDim)
	if err1 != nil || err2 != nil || start > end {
		Panicf("Flatten.Forward: cannot flatten dims %d..%d of shape %v", f.startDim, f.endDim, shape)
	}
	merged := 1
	for _, d := range shape[start : end+1] {
		merged *= d
	}
	out := slices.Concat([]int(shape[:start]), []int{merged}, []int(shape[end+1:]))
	return input.Reshape(out...)
}

// Transpose swaps two dimensions.
type Transpose[B tensor.Backend] struct {
	shapeOp[B]
	dim0, dim1 int
}

// NewTranspose creates a Transpose layer swapping dim0 and dim1.
func NewTranspose[B tensor.Backend](dim0, dim1 int) *Transpose[B] {
	return &Transpose[B]{dim0: dim0, dim1: dim1}
}

// Forward swaps the two dimensions.
func (t *Transpose[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	d0, err1 := shape.NormalizeDim(t.dim0)
	d1, err2 := shape.NormalizeDim(t.dim1)
	if err1 != nil || err2 != nil {
		Panicf("Transpose.Forward: dims (%d, %d) out of range for shape %v", t.dim0, t.dim1, shape)
	}
	perm := make([]int, len(shape))
	for i := range perm {
		perm[i] = i
	}
	perm[d0], perm[d1] = d1, d0
	return input.Transpose(perm...)
}

// Permute reorders all dimensions.
type Permute[B tensor.Backend] struct {
	shapeOp[B]
	dims []int
}

// NewPermute creates a Permute layer. dims must be a permutation of
// 0..len(dims)-1.
func NewPermute[B tensor.Backend](dims []int) (*Permute[B], error) {
	seen := make([]bool, len(dims))
	for _, d := range dims {
		if d < 0 || d >= len(dims) || seen[d] {
			return nil, errors.Wrapf(ErrInvalidConfig, "permute: %v is not a permutation", dims)
		}
		seen[d] = true
	}
	return &Permute[B]{dims: slices.Clone(dims)}, nil
}

// Forward permutes the input.
func (p *Permute[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if len(input.Shape()) != len(p.dims) {
		Panicf("Permute.Forward: permutation %v for shape %v", p.dims, input.Shape())
	}
	return input.Transpose(p.dims...)
}

// Reshape reshapes the input to a fixed shape. With includeBatch unset the
// shape applies after the batch dimension, which is kept. One entry may be
// -1.
type Reshape[B tensor.Backend] struct {
	shapeOp[B]
	shape        []int
	includeBatch bool
}

// NewReshape creates a Reshape layer.
func NewReshape[B tensor.Backend](shape []int, includeBatch bool) (*Reshape[B], error) {
	inferred := 0
	for _, d := range shape {
		switch {
		case d == -1:
			inferred++
		case d < 1:
			return nil, errors.Wrapf(ErrInvalidConfig, "reshape: invalid shape %v", shape)
		}
	}
	if inferred > 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "reshape: more than one -1 in %v", shape)
	}
	return &Reshape[B]{shape: slices.Clone(shape), includeBatch: includeBatch}, nil
}

// Forward reshapes the input.
func (r *Reshape[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if r.includeBatch {
		return input.Reshape(r.shape...)
	}
	return input.Reshape(slices.Concat([]int{input.Shape()[0]}, r.shape)...)
}

// Unsqueeze inserts a dimension of size 1.
type Unsqueeze[B tensor.Backend] struct {
	shapeOp[B]
	dim int
}

// NewUnsqueeze creates an Unsqueeze layer.
func NewUnsqueeze[B tensor.Backend](dim int) *Unsqueeze[B] {
	return &Unsqueeze[B]{dim: dim}
}

// Forward inserts the dimension.
func (u *Unsqueeze[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.Unsqueeze(u.dim)
}

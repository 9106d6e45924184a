package tensor

import "github.com/gomlx/exceptions"

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	a := tensor.Ones[float32](Shape{3, 1}, backend)
//	b := tensor.Ones[float32](Shape{3, 5}, backend)
//	c := a.Add(b) // Shape: [3, 5] (broadcasted)
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[T, B]) Div(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Div(t.raw, other.raw), t.backend)
}

// MulScalar multiplies every element by scalar.
func (t *Tensor[T, B]) MulScalar(scalar float64) *Tensor[T, B] {
	return New[T, B](t.backend.MulScalar(t.raw, scalar), t.backend)
}

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) → (M, N).
func (t *Tensor[T, B]) MatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.MatMul(t.raw, other.raw), t.backend)
}

// BatchMatMul performs batched matrix multiplication.
// With transposeB the right operand is read as [B, N, K].
func (t *Tensor[T, B]) BatchMatMul(other *Tensor[T, B], transposeB bool) *Tensor[T, B] {
	return New[T, B](t.backend.BatchMatMul(t.raw, other.raw, transposeB), t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// A single -1 entry is inferred from the remaining dimensions.
//
// Example:
//
//	t := tensor.Zeros[float32](Shape{12}, backend)
//	reshaped := t.Reshape(3, -1) // Shape: [3, 4]
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Reshape(t.raw, InferShape(t.NumElements(), newShape)), t.backend)
}

// Transpose permutes the tensor's dimensions.
//
// If axes is empty, reverses all dimensions (for 2D, this is standard transpose).
func (t *Tensor[T, B]) Transpose(axes ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Transpose(t.raw, axes...), t.backend)
}

// Unsqueeze inserts a dimension of size 1 at dim. Negative dims count
// from the end of the output shape.
func (t *Tensor[T, B]) Unsqueeze(dim int) *Tensor[T, B] {
	shape := t.Shape()
	rank := len(shape) + 1
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		exceptions.Panicf("unsqueeze: dim %d out of range for shape %v", dim, shape)
	}
	out := make(Shape, 0, rank)
	out = append(out, shape[:dim]...)
	out = append(out, 1)
	out = append(out, shape[dim:]...)
	return t.Reshape(out...)
}

// Squeeze removes dimension dim, which must have size 1.
func (t *Tensor[T, B]) Squeeze(dim int) *Tensor[T, B] {
	shape := t.Shape()
	dim, err := shape.NormalizeDim(dim)
	if err != nil {
		exceptions.Panicf("squeeze: %v", err)
	}
	if shape[dim] != 1 {
		exceptions.Panicf("squeeze: dimension %d of shape %v is not 1", dim, shape)
	}
	out := make(Shape, 0, len(shape)-1)
	out = append(out, shape[:dim]...)
	out = append(out, shape[dim+1:]...)
	return t.Reshape(out...)
}

// Pad adds constant padding to the last len(pads) dimensions.
func (t *Tensor[T, B]) Pad(pads [][2]int, value float64) *Tensor[T, B] {
	return New[T, B](t.backend.Pad(t.raw, pads, value), t.backend)
}

// SumDims sums over dims.
func (t *Tensor[T, B]) SumDims(dims []int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.SumDims(t.raw, dims, keepDim), t.backend)
}

// MeanDims averages over dims.
func (t *Tensor[T, B]) MeanDims(dims []int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.MeanDims(t.raw, dims, keepDim), t.backend)
}

// MaxDims takes the maximum over dims.
func (t *Tensor[T, B]) MaxDims(dims []int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.MaxDims(t.raw, dims, keepDim), t.backend)
}

// CountNonzero counts non-zero elements over dims.
func (t *Tensor[T, B]) CountNonzero(dims []int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.CountNonzero(t.raw, dims, keepDim), t.backend)
}

// Stack stacks same-shaped tensors along a new leading dimension.
func Stack[T DType, B Backend](tensors []*Tensor[T, B]) *Tensor[T, B] {
	if len(tensors) == 0 {
		exceptions.Panicf("stack: no tensors")
	}
	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.raw
	}
	b := tensors[0].backend
	return New[T, B](b.Stack(raws), b)
}

// InferShape resolves a single -1 entry of shape so that the result holds
// numElements elements. Panics if the shape cannot be resolved.
func InferShape(numElements int, shape []int) Shape {
	out := Shape(shape).Clone()
	inferred := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if inferred >= 0 {
				exceptions.Panicf("reshape: more than one -1 in %v", shape)
			}
			inferred = i
			continue
		}
		known *= d
	}
	if inferred >= 0 {
		if known <= 0 || numElements%known != 0 {
			exceptions.Panicf("reshape: cannot infer dimension of %v for %d elements", shape, numElements)
		}
		out[inferred] = numElements / known
	}
	return out
}

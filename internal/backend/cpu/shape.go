package cpu

import (
	. "github.com/gomlx/exceptions"

	"github.com/born-ml/synapse/internal/tensor"
)

// Reshape returns a copy of t with a new shape of the same size.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result, err := t.Reshaped(newShape)
	if err != nil {
		Panicf("reshape: %v", err)
	}
	return result
}

// Transpose permutes the tensor's dimensions.
// With no axes all dimensions are reversed.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		Panicf("transpose: axes length %d != ndim %d", len(axes), ndim)
	}
	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim {
			Panicf("transpose: invalid axis %d for %dD tensor", ax, ndim)
		}
		if seen[ax] {
			Panicf("transpose: duplicate axis %d", ax)
		}
		seen[ax] = true
	}

	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}
	result := cpu.newOutput("transpose", newShape, t.DType())

	// Walk the output row-major, reading the source through permuted strides.
	elem := t.DType().Size()
	srcStrides := t.Strides()
	strides := make([]int, ndim)
	for i, ax := range axes {
		strides[i] = srcStrides[ax]
	}
	src, dst := t.Data(), result.Data()
	idx := make([]int, ndim)
	for o := 0; o < result.NumElements(); o++ {
		unravel(o, newShape, idx)
		off := 0
		for d, v := range idx {
			off += v * strides[d]
		}
		copy(dst[o*elem:(o+1)*elem], src[off*elem:(off+1)*elem])
	}
	return result
}

// Stack stacks same-shaped tensors along a new leading dimension.
func (cpu *CPUBackend) Stack(tensors []*tensor.RawTensor) *tensor.RawTensor {
	if len(tensors) == 0 {
		Panicf("stack: no tensors")
	}
	first := tensors[0]
	for i, t := range tensors[1:] {
		if !t.SameLayout(first) {
			Panicf("stack: tensor %d has shape %v dtype %s, expected %v %s",
				i+1, t.Shape(), t.DType(), first.Shape(), first.DType())
		}
	}
	outShape := append(tensor.Shape{len(tensors)}, first.Shape()...)
	result := cpu.newOutput("stack", outShape, first.DType())
	dst := result.Data()
	size := first.ByteSize()
	for i, t := range tensors {
		copy(dst[i*size:(i+1)*size], t.Data())
	}
	return result
}

// Pad adds constant padding to the last len(pads) dimensions.
func (cpu *CPUBackend) Pad(x *tensor.RawTensor, pads [][2]int, value float64) *tensor.RawTensor {
	dtype := checkFloat("pad", x)
	shape := x.Shape()
	if len(pads) > len(shape) {
		Panicf("pad: %d padded dimensions for shape %v", len(pads), shape)
	}
	offset := len(shape) - len(pads)
	outShape := shape.Clone()
	for i, p := range pads {
		if p[0] < 0 || p[1] < 0 {
			Panicf("pad: negative padding %v", p)
		}
		outShape[offset+i] += p[0] + p[1]
	}
	result := cpu.newOutput("pad", outShape, dtype)

	switch dtype {
	case tensor.Float32:
		padKernel(view[float32](result), view[float32](x), shape, outShape, pads, offset, float32(value))
	case tensor.Float64:
		padKernel(view[float64](result), view[float64](x), shape, outShape, pads, offset, value)
	}
	return result
}

func padKernel[T float32 | float64](out, in []T, shape, outShape tensor.Shape, pads [][2]int, offset int, value T) {
	if value != 0 {
		for i := range out {
			out[i] = value
		}
	}
	outStrides := outShape.ComputeStrides()
	idx := make([]int, len(shape))
	for i, v := range in {
		unravel(i, shape, idx)
		o := 0
		for d, p := range idx {
			if d >= offset {
				p += pads[d-offset][0]
			}
			o += p * outStrides[d]
		}
		out[o] = v
	}
}

// UpsampleNearest repeats every spatial element scale[d] times.
//
// Input: [N, C, S1..Sn], output: [N, C, S1*scale1..Sn*scalen].
func (cpu *CPUBackend) UpsampleNearest(input *tensor.RawTensor, scale []int) *tensor.RawTensor {
	shape := input.Shape()
	rank := len(shape) - 2
	if rank < 1 {
		Panicf("upsample: expected [N, C, spatial...] input, got %v", shape)
	}
	scale = perDim("upsample", "scale", scale, rank, 1)
	outShape := shape.Clone()
	for d, s := range scale {
		if s < 1 {
			Panicf("upsample: invalid scale factor %d", s)
		}
		outShape[d+2] *= s
	}
	result := cpu.newOutput("upsample", outShape, input.DType())

	elem := input.DType().Size()
	inStrides := input.Strides()
	src, dst := input.Data(), result.Data()
	idx := make([]int, len(outShape))
	for o := 0; o < result.NumElements(); o++ {
		unravel(o, outShape, idx)
		off := idx[0]*inStrides[0] + idx[1]*inStrides[1]
		for d, s := range scale {
			off += (idx[d+2] / s) * inStrides[d+2]
		}
		copy(dst[o*elem:(o+1)*elem], src[off*elem:(off+1)*elem])
	}
	return result
}

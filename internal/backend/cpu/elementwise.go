package cpu

import (
	. "github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"

	"github.com/born-ml/synapse/internal/tensor"
)

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, binaryAdd)
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, binarySub)
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, binaryMul)
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, binaryDiv)
}

// MulScalar multiplies every element of x by scalar, rounded to x's dtype.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	dtype := checkFloat("mul_scalar", x)
	result := cpu.newOutput("mul_scalar", x.Shape(), dtype)
	switch dtype {
	case tensor.Float32:
		mulScalar(view[float32](result), view[float32](x), float32(scalar))
	case tensor.Float64:
		mulScalar(view[float64](result), view[float64](x), scalar)
	}
	return result
}

type binaryOp int

const (
	binaryAdd binaryOp = iota
	binarySub
	binaryMul
	binaryDiv
)

func (cpu *CPUBackend) binary(name string, a, b *tensor.RawTensor, op binaryOp) *tensor.RawTensor {
	dtype := checkFloat(name, a, b)
	outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		Panicf("%s: %v", name, err)
	}
	result := cpu.newOutput(name, outShape, dtype)
	aStrides := tensor.BroadcastStrides(a.Shape(), outShape)
	bStrides := tensor.BroadcastStrides(b.Shape(), outShape)

	switch dtype {
	case tensor.Float32:
		broadcastBinary(view[float32](result), view[float32](a), view[float32](b), outShape, aStrides, bStrides, op)
	case tensor.Float64:
		broadcastBinary(view[float64](result), view[float64](a), view[float64](b), outShape, aStrides, bStrides, op)
	}
	return result
}

// broadcastBinary walks the output in row-major order while tracking the
// matching offsets of both operands.
func broadcastBinary[T constraints.Float](out, a, b []T, outShape tensor.Shape, aStrides, bStrides []int, op binaryOp) {
	idx := make([]int, len(outShape))
	ai, bi := 0, 0
	for o := range out {
		x, y := a[ai], b[bi]
		switch op {
		case binaryAdd:
			out[o] = x + y
		case binarySub:
			out[o] = x - y
		case binaryMul:
			out[o] = x * y
		case binaryDiv:
			out[o] = x / y
		}

		for d := len(outShape) - 1; d >= 0; d-- {
			idx[d]++
			ai += aStrides[d]
			bi += bStrides[d]
			if idx[d] < outShape[d] {
				break
			}
			ai -= aStrides[d] * outShape[d]
			bi -= bStrides[d] * outShape[d]
			idx[d] = 0
		}
	}
}

func mulScalar[T constraints.Float](out, x []T, scalar T) {
	for i, v := range x {
		out[i] = v * scalar
	}
}

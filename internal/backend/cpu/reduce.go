package cpu

import (
	"math"

	. "github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"

	"github.com/born-ml/synapse/internal/tensor"
)

type reduceOp int

const (
	reduceSum reduceOp = iota
	reduceMean
	reduceMax
	reduceCountNonzero
)

// SumDims sums x over dims.
func (cpu *CPUBackend) SumDims(x *tensor.RawTensor, dims []int, keepDim bool) *tensor.RawTensor {
	return cpu.reduce("sum", x, dims, keepDim, reduceSum)
}

// MeanDims averages x over dims.
func (cpu *CPUBackend) MeanDims(x *tensor.RawTensor, dims []int, keepDim bool) *tensor.RawTensor {
	return cpu.reduce("mean", x, dims, keepDim, reduceMean)
}

// MaxDims takes the maximum of x over dims.
func (cpu *CPUBackend) MaxDims(x *tensor.RawTensor, dims []int, keepDim bool) *tensor.RawTensor {
	return cpu.reduce("max", x, dims, keepDim, reduceMax)
}

// CountNonzero counts the non-zero elements of x over dims.
func (cpu *CPUBackend) CountNonzero(x *tensor.RawTensor, dims []int, keepDim bool) *tensor.RawTensor {
	return cpu.reduce("count_nonzero", x, dims, keepDim, reduceCountNonzero)
}

func (cpu *CPUBackend) reduce(name string, x *tensor.RawTensor, dims []int, keepDim bool, op reduceOp) *tensor.RawTensor {
	dtype := checkFloat(name, x)
	shape := x.Shape()
	reduced := make([]bool, len(shape))
	for _, d := range dims {
		nd, err := shape.NormalizeDim(d)
		if err != nil {
			Panicf("%s: %v", name, err)
		}
		if reduced[nd] {
			Panicf("%s: duplicate dimension %d", name, d)
		}
		reduced[nd] = true
	}

	// keptShape keeps reduced dims as 1; outShape drops them unless keepDim.
	keptShape := shape.Clone()
	outShape := tensor.Shape{}
	count := 1
	for d, r := range reduced {
		if r {
			keptShape[d] = 1
			count *= shape[d]
			if keepDim {
				outShape = append(outShape, 1)
			}
			continue
		}
		outShape = append(outShape, shape[d])
	}
	result := cpu.newOutput(name, outShape, dtype)
	strides := tensor.BroadcastStrides(keptShape, shape)

	switch dtype {
	case tensor.Float32:
		reduceKernel(view[float32](result), view[float32](x), shape, strides, count, op)
	case tensor.Float64:
		reduceKernel(view[float64](result), view[float64](x), shape, strides, count, op)
	}
	return result
}

func reduceKernel[T constraints.Float](out, in []T, shape tensor.Shape, strides []int, count int, op reduceOp) {
	if op == reduceMax {
		for i := range out {
			out[i] = T(math.Inf(-1))
		}
	}
	idx := make([]int, len(shape))
	for i, v := range in {
		unravel(i, shape, idx)
		o := 0
		for d, p := range idx {
			o += p * strides[d]
		}
		switch op {
		case reduceSum, reduceMean:
			out[o] += v
		case reduceMax:
			out[o] = max(out[o], v)
		case reduceCountNonzero:
			if v != 0 {
				out[o]++
			}
		}
	}
	if op == reduceMean {
		for i := range out {
			out[i] /= T(count)
		}
	}
}

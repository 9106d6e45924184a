package cpu

import (
	"math"

	. "github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"

	"github.com/born-ml/synapse/internal/parallel"
	"github.com/born-ml/synapse/internal/tensor"
)

// MaxPool performs N-D max pooling.
//
// Input: [N, C, S1..Sn]. Stride defaults to the kernel size. Padded
// positions never win the maximum.
func (cpu *CPUBackend) MaxPool(input *tensor.RawTensor, params tensor.PoolParams) *tensor.RawTensor {
	dtype := checkFloat("max_pool", input)
	shape := input.Shape()
	rank := len(shape) - 2
	if rank < 1 {
		Panicf("max_pool: expected [N, C, spatial...] input, got %v", shape)
	}

	g := convGeometry{
		batch:       shape[0],
		inChannels:  shape[1],
		outChannels: shape[1],
		groups:      shape[1],
		inSpatial:   shape[2:],
		kernel:      perDim("max_pool", "kernel_size", params.KernelSize, rank, 1),
		padding:     perDim("max_pool", "padding", params.Padding, rank, 0),
		dilation:    perDim("max_pool", "dilation", params.Dilation, rank, 1),
	}
	g.stride = perDim("max_pool", "stride", params.Stride, rank, 0)
	g.outSpatial = make([]int, rank)
	for d := range g.stride {
		if g.stride[d] == 0 {
			g.stride[d] = g.kernel[d]
		}
		if 2*g.padding[d] > g.kernel[d] {
			Panicf("max_pool: padding %d should be at most half of kernel size %d", g.padding[d], g.kernel[d])
		}
		g.outSpatial[d] = (g.inSpatial[d]+2*g.padding[d]-g.dilation[d]*(g.kernel[d]-1)-1)/g.stride[d] + 1
		if g.outSpatial[d] <= 0 {
			Panicf("max_pool: non-positive output size along spatial dim %d", d)
		}
	}

	outShape := append(tensor.Shape{g.batch, g.outChannels}, g.outSpatial...)
	result := cpu.newOutput("max_pool", outShape, dtype)
	switch dtype {
	case tensor.Float32:
		maxPoolKernel(view[float32](result), view[float32](input), &g, cpu.par)
	case tensor.Float64:
		maxPoolKernel(view[float64](result), view[float64](input), &g, cpu.par)
	}
	return result
}

func maxPoolKernel[T constraints.Float](out, in []T, g *convGeometry, par parallel.Config) {
	inSize := tensor.Shape(g.inSpatial).NumElements()
	outSize := tensor.Shape(g.outSpatial).NumElements()
	outPos := positions(g.outSpatial)
	kernelPos := positions(g.kernel)
	parallel.For(g.batch*g.inChannels, par, func(start, end int) {
		inPos := make([]int, len(g.inSpatial))
		for nc := start; nc < end; nc++ {
			for o, op := range outPos {
				best := T(math.Inf(-1))
				for _, kp := range kernelPos {
					for d := range inPos {
						inPos[d] = op[d]*g.stride[d] - g.padding[d] + kp[d]*g.dilation[d]
					}
					if off := spatialOffset(inPos, g.inSpatial); off >= 0 {
						best = max(best, in[nc*inSize+off])
					}
				}
				out[nc*outSize+o] = best
			}
		}
	})
}

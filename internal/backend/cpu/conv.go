package cpu

import (
	. "github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"

	"github.com/born-ml/synapse/internal/parallel"
	"github.com/born-ml/synapse/internal/tensor"
)

// convGeometry holds the validated sizes of an N-D (transposed) convolution.
type convGeometry struct {
	batch       int
	inChannels  int
	outChannels int
	groups      int
	inSpatial   []int
	outSpatial  []int
	kernel      []int
	stride      []int
	padding     []int
	dilation    []int
}

// Conv performs an N-D convolution by direct gathering.
//
// Input shape:  [N, C_in, S1..Sn]
// Weight shape: [C_out, C_in/groups, K1..Kn]
// Bias shape:   [C_out] (optional)
// Output shape: [N, C_out, O1..On]
//
// Where:
//
//	O = (S + 2*padding - dilation*(K-1) - 1) / stride + 1
func (cpu *CPUBackend) Conv(input, weight, bias *tensor.RawTensor, params tensor.ConvParams) *tensor.RawTensor {
	dtype := checkFloat("conv", input, weight, bias)
	inShape, wShape := input.Shape(), weight.Shape()
	rank := len(inShape) - 2
	if rank < 1 || len(wShape) != rank+2 {
		Panicf("conv: expected input [N,C,spatial...] and weight [C_out,C_in/g,kernel...] of equal rank, got %v and %v",
			inShape, wShape)
	}

	g := convGeometry{
		batch:       inShape[0],
		inChannels:  inShape[1],
		outChannels: wShape[0],
		groups:      max(params.Groups, 1),
		inSpatial:   inShape[2:],
		kernel:      wShape[2:],
		stride:      perDim("conv", "stride", params.Stride, rank, 1),
		padding:     perDim("conv", "padding", params.Padding, rank, 0),
		dilation:    perDim("conv", "dilation", params.Dilation, rank, 1),
	}
	if g.inChannels%g.groups != 0 || g.outChannels%g.groups != 0 {
		Panicf("conv: channels in=%d out=%d not divisible by groups=%d", g.inChannels, g.outChannels, g.groups)
	}
	if wShape[1] != g.inChannels/g.groups {
		Panicf("conv: weight expects %d input channels per group, input has %d channels in %d groups",
			wShape[1], g.inChannels, g.groups)
	}
	if bias != nil && !bias.Shape().Equal(tensor.Shape{g.outChannels}) {
		Panicf("conv: bias shape %v, expected [%d]", bias.Shape(), g.outChannels)
	}

	g.outSpatial = make([]int, rank)
	for d := range g.outSpatial {
		g.outSpatial[d] = (g.inSpatial[d]+2*g.padding[d]-g.dilation[d]*(g.kernel[d]-1)-1)/g.stride[d] + 1
		if g.outSpatial[d] <= 0 {
			Panicf("conv: non-positive output size along spatial dim %d (input %v, kernel %v, dilation %v, padding %v)",
				d, g.inSpatial, g.kernel, g.dilation, g.padding)
		}
	}

	outShape := append(tensor.Shape{g.batch, g.outChannels}, g.outSpatial...)
	result := cpu.newOutput("conv", outShape, dtype)
	switch dtype {
	case tensor.Float32:
		convForward(view[float32](result), view[float32](input), view[float32](weight), view[float32](bias), &g, cpu.par)
	case tensor.Float64:
		convForward(view[float64](result), view[float64](input), view[float64](weight), view[float64](bias), &g, cpu.par)
	}
	return result
}

func convForward[T constraints.Float](out, in, w, bias []T, g *convGeometry, par parallel.Config) {
	inSize := tensor.Shape(g.inSpatial).NumElements()
	outSize := tensor.Shape(g.outSpatial).NumElements()
	kSize := tensor.Shape(g.kernel).NumElements()
	cinPerGroup := g.inChannels / g.groups
	coutPerGroup := g.outChannels / g.groups

	outPos := positions(g.outSpatial)
	kernelPos := positions(g.kernel)

	parallel.For(g.batch*g.outChannels, par, func(start, end int) {
		inPos := make([]int, len(g.inSpatial))
		for nc := start; nc < end; nc++ {
			n, co := nc/g.outChannels, nc%g.outChannels
			group := co / coutPerGroup
			for o, op := range outPos {
				var acc T
				for ci := 0; ci < cinPerGroup; ci++ {
					c := group*cinPerGroup + ci
					inBase := (n*g.inChannels + c) * inSize
					wBase := (co*cinPerGroup + ci) * kSize
					for k, kp := range kernelPos {
						for d := range inPos {
							inPos[d] = op[d]*g.stride[d] - g.padding[d] + kp[d]*g.dilation[d]
						}
						off := spatialOffset(inPos, g.inSpatial)
						if off < 0 {
							continue
						}
						acc += in[inBase+off] * w[wBase+k]
					}
				}
				if bias != nil {
					acc += bias[co]
				}
				out[nc*outSize+o] = acc
			}
		}
	})
}

// ConvTranspose performs an N-D transposed convolution by scattering every
// input element through the kernel.
//
// Input shape:  [N, C_in, S1..Sn]
// Weight shape: [C_in, C_out/groups, K1..Kn]
// Bias shape:   [C_out] (optional)
// Output shape: [N, C_out, O1..On]
//
// Where:
//
//	O = (S - 1)*stride - 2*padding + dilation*(K-1) + output_padding + 1
func (cpu *CPUBackend) ConvTranspose(input, weight, bias *tensor.RawTensor, params tensor.ConvTransposeParams) *tensor.RawTensor {
	dtype := checkFloat("conv_transpose", input, weight, bias)
	inShape, wShape := input.Shape(), weight.Shape()
	rank := len(inShape) - 2
	if rank < 1 || len(wShape) != rank+2 {
		Panicf("conv_transpose: expected input [N,C,spatial...] and weight [C_in,C_out/g,kernel...] of equal rank, got %v and %v",
			inShape, wShape)
	}

	groups := max(params.Groups, 1)
	g := convGeometry{
		batch:       inShape[0],
		inChannels:  inShape[1],
		outChannels: wShape[1] * groups,
		groups:      groups,
		inSpatial:   inShape[2:],
		kernel:      wShape[2:],
		stride:      perDim("conv_transpose", "stride", params.Stride, rank, 1),
		padding:     perDim("conv_transpose", "padding", params.Padding, rank, 0),
		dilation:    perDim("conv_transpose", "dilation", params.Dilation, rank, 1),
	}
	outputPadding := perDim("conv_transpose", "output_padding", params.OutputPadding, rank, 0)
	if wShape[0] != g.inChannels || g.inChannels%groups != 0 {
		Panicf("conv_transpose: weight has %d input channels, input has %d (groups=%d)", wShape[0], g.inChannels, groups)
	}
	if bias != nil && !bias.Shape().Equal(tensor.Shape{g.outChannels}) {
		Panicf("conv_transpose: bias shape %v, expected [%d]", bias.Shape(), g.outChannels)
	}

	g.outSpatial = make([]int, rank)
	for d := range g.outSpatial {
		if outputPadding[d] >= g.stride[d] && outputPadding[d] >= g.dilation[d] {
			Panicf("conv_transpose: output padding %d must be smaller than stride %d or dilation %d",
				outputPadding[d], g.stride[d], g.dilation[d])
		}
		g.outSpatial[d] = (g.inSpatial[d]-1)*g.stride[d] - 2*g.padding[d] +
			g.dilation[d]*(g.kernel[d]-1) + outputPadding[d] + 1
		if g.outSpatial[d] <= 0 {
			Panicf("conv_transpose: non-positive output size along spatial dim %d (input %v, kernel %v, padding %v)",
				d, g.inSpatial, g.kernel, g.padding)
		}
	}

	outShape := append(tensor.Shape{g.batch, g.outChannels}, g.outSpatial...)
	result := cpu.newOutput("conv_transpose", outShape, dtype)
	switch dtype {
	case tensor.Float32:
		convTransposeForward(view[float32](result), view[float32](input), view[float32](weight), view[float32](bias), &g, cpu.par)
	case tensor.Float64:
		convTransposeForward(view[float64](result), view[float64](input), view[float64](weight), view[float64](bias), &g, cpu.par)
	}
	return result
}

func convTransposeForward[T constraints.Float](out, in, w, bias []T, g *convGeometry, par parallel.Config) {
	inSize := tensor.Shape(g.inSpatial).NumElements()
	outSize := tensor.Shape(g.outSpatial).NumElements()
	kSize := tensor.Shape(g.kernel).NumElements()
	cinPerGroup := g.inChannels / g.groups
	coutPerGroup := g.outChannels / g.groups

	inPos := positions(g.inSpatial)
	kernelPos := positions(g.kernel)

	// Input channels of one group scatter into the same outputs, so work is
	// split over (sample, group) pairs.
	parallel.ForPairs(g.batch, g.groups, par, func(n, group int) {
		outPos := make([]int, len(g.outSpatial))
		for ci := group * cinPerGroup; ci < (group+1)*cinPerGroup; ci++ {
			inBase := (n*g.inChannels + ci) * inSize
			for cl := 0; cl < coutPerGroup; cl++ {
				co := group*coutPerGroup + cl
				outBase := (n*g.outChannels + co) * outSize
				wBase := (ci*coutPerGroup + cl) * kSize
				for i, ip := range inPos {
					x := in[inBase+i]
					for k, kp := range kernelPos {
						for d := range outPos {
							outPos[d] = ip[d]*g.stride[d] - g.padding[d] + kp[d]*g.dilation[d]
						}
						off := spatialOffset(outPos, g.outSpatial)
						if off < 0 {
							continue
						}
						out[outBase+off] += x * w[wBase+k]
					}
				}
			}
		}
	})

	if bias == nil {
		return
	}
	for n := 0; n < g.batch; n++ {
		for co := 0; co < g.outChannels; co++ {
			base := (n*g.outChannels + co) * outSize
			for o := 0; o < outSize; o++ {
				out[base+o] += bias[co]
			}
		}
	}
}

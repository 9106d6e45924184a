package cpu

import (
	"math"

	. "github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"

	"github.com/born-ml/synapse/internal/tensor"
)

// LSTM evaluates a stacked, optionally bidirectional LSTM.
//
// Input:  [T, B, D] ([B, T, D] with BatchFirst)
// h0, c0: [layers*dirs, B, H] (nil for zeros)
// weights, per (layer, direction) in that order:
//
//	weight_ih [4H, D_l], weight_hh [4H, H], and with Bias: bias_ih [4H], bias_hh [4H]
//
// where D_l is D for the first layer and H*dirs afterwards. Gates are laid
// out as input, forget, cell, output.
//
// Output: [T, B, H*dirs] ([B, T, H*dirs] with BatchFirst), hn and cn
// [layers*dirs, B, H].
func (cpu *CPUBackend) LSTM(input, h0, c0 *tensor.RawTensor, weights []*tensor.RawTensor,
	params tensor.LSTMParams) (output, hn, cn *tensor.RawTensor) {
	dtype := checkFloat("lstm", input, h0, c0)
	inShape := input.Shape()
	if len(inShape) != 3 {
		Panicf("lstm: expected 3D input, got %v", inShape)
	}
	dirs := params.NumDirections()
	perGroup := 2
	if params.Bias {
		perGroup = 4
	}
	if params.NumLayers < 1 || params.HiddenSize < 1 {
		Panicf("lstm: invalid layers=%d hidden=%d", params.NumLayers, params.HiddenSize)
	}
	if len(weights) != params.NumLayers*dirs*perGroup {
		Panicf("lstm: expected %d flat weights, got %d", params.NumLayers*dirs*perGroup, len(weights))
	}

	g := lstmGeometry{
		steps:    inShape[0],
		batch:    inShape[1],
		features: inShape[2],
		hidden:   params.HiddenSize,
		layers:   params.NumLayers,
		dirs:     dirs,
		perGroup: perGroup,
	}
	if params.BatchFirst {
		g.steps, g.batch = inShape[1], inShape[0]
	}
	stateShape := tensor.Shape{g.layers * dirs, g.batch, g.hidden}
	for _, s := range []*tensor.RawTensor{h0, c0} {
		if s != nil && !s.Shape().Equal(stateShape) {
			Panicf("lstm: initial state shape %v, expected %v", s.Shape(), stateShape)
		}
	}
	for l := 0; l < g.layers; l++ {
		inFeatures := g.features
		if l > 0 {
			inFeatures = g.hidden * dirs
		}
		for dir := 0; dir < dirs; dir++ {
			base := (l*dirs + dir) * perGroup
			expected := []tensor.Shape{{4 * g.hidden, inFeatures}, {4 * g.hidden, g.hidden}, {4 * g.hidden}, {4 * g.hidden}}
			for i := 0; i < perGroup; i++ {
				checkFloat("lstm", input, weights[base+i])
				if !weights[base+i].Shape().Equal(expected[i]) {
					Panicf("lstm: weight %d of layer %d direction %d has shape %v, expected %v",
						i, l, dir, weights[base+i].Shape(), expected[i])
				}
			}
		}
	}

	outShape := tensor.Shape{g.steps, g.batch, g.hidden * dirs}
	if params.BatchFirst {
		outShape = tensor.Shape{g.batch, g.steps, g.hidden * dirs}
	}
	output = cpu.newOutput("lstm", outShape, dtype)
	hn = cpu.newOutput("lstm", stateShape, dtype)
	cn = cpu.newOutput("lstm", stateShape, dtype)

	switch dtype {
	case tensor.Float32:
		lstmForward(&g, params.BatchFirst, view[float32](input), view[float32](h0), view[float32](c0),
			flatViews[float32](weights), view[float32](output), view[float32](hn), view[float32](cn))
	case tensor.Float64:
		lstmForward(&g, params.BatchFirst, view[float64](input), view[float64](h0), view[float64](c0),
			flatViews[float64](weights), view[float64](output), view[float64](hn), view[float64](cn))
	}
	return output, hn, cn
}

type lstmGeometry struct {
	steps, batch, features, hidden int
	layers, dirs, perGroup         int
}

func flatViews[T constraints.Float](weights []*tensor.RawTensor) [][]T {
	out := make([][]T, len(weights))
	for i, w := range weights {
		out[i] = view[T](w)
	}
	return out
}

func lstmForward[T constraints.Float](g *lstmGeometry, batchFirst bool, input, h0, c0 []T, weights [][]T, output, hn, cn []T) {
	H := g.hidden

	// Layer input laid out as [T, B, D].
	layerIn := make([]T, len(input))
	inFeatures := g.features
	for t := 0; t < g.steps; t++ {
		for b := 0; b < g.batch; b++ {
			src := (t*g.batch + b) * inFeatures
			if batchFirst {
				src = (b*g.steps + t) * inFeatures
			}
			copy(layerIn[(t*g.batch+b)*inFeatures:], input[src:src+inFeatures])
		}
	}

	G := 4 * H
	// Input projections of the whole sequence, [T*B, 4H], and recurrent
	// projections of one step, [B, 4H].
	xProj := make([]T, g.steps*g.batch*G)
	hProj := make([]T, g.batch*G)
	for l := 0; l < g.layers; l++ {
		outFeatures := H * g.dirs
		layerOut := make([]T, g.steps*g.batch*outFeatures)
		for dir := 0; dir < g.dirs; dir++ {
			state := l*g.dirs + dir
			base := state * g.perGroup
			wih, whh := weights[base], weights[base+1]
			var bih, bhh []T
			if g.perGroup == 4 {
				bih, bhh = weights[base+2], weights[base+3]
			}

			h := make([]T, g.batch*H)
			c := make([]T, g.batch*H)
			if h0 != nil {
				copy(h, h0[state*g.batch*H:(state+1)*g.batch*H])
			}
			if c0 != nil {
				copy(c, c0[state*g.batch*H:(state+1)*g.batch*H])
			}

			gemm(true, g.steps*g.batch, G, inFeatures, layerIn, wih, xProj)
			for step := 0; step < g.steps; step++ {
				t := step
				if dir == 1 {
					t = g.steps - 1 - step
				}
				gemm(true, g.batch, G, H, h, whh, hProj)
				for b := 0; b < g.batch; b++ {
					xg := xProj[(t*g.batch+b)*G : (t*g.batch+b+1)*G]
					gates := hProj[b*G : (b+1)*G]
					for j := range gates {
						gates[j] += xg[j]
						if bih != nil {
							gates[j] += bih[j] + bhh[j]
						}
					}
					hb := h[b*H : (b+1)*H]
					cb := c[b*H : (b+1)*H]
					for j := 0; j < H; j++ {
						i := sigmoid(gates[j])
						f := sigmoid(gates[H+j])
						cc := T(math.Tanh(float64(gates[2*H+j])))
						o := sigmoid(gates[3*H+j])
						cb[j] = f*cb[j] + i*cc
						hb[j] = o * T(math.Tanh(float64(cb[j])))
					}
					copy(layerOut[(t*g.batch+b)*outFeatures+dir*H:], hb)
				}
			}
			copy(hn[state*g.batch*H:], h)
			copy(cn[state*g.batch*H:], c)
		}
		layerIn = layerOut
		inFeatures = outFeatures
	}

	for t := 0; t < g.steps; t++ {
		for b := 0; b < g.batch; b++ {
			dst := (t*g.batch + b) * inFeatures
			if batchFirst {
				dst = (b*g.steps + t) * inFeatures
			}
			copy(output[dst:dst+inFeatures], layerIn[(t*g.batch+b)*inFeatures:])
		}
	}
}

func sigmoid[T constraints.Float](x T) T {
	return T(1 / (1 + math.Exp(-float64(x))))
}

package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

// ConvTransposeConfig configures ConvTranspose1D/2D/3D.
type ConvTransposeConfig struct {
	ConvConfig

	// OutputPadding adds extra length at the end of each spatial dimension
	// (one value or one per dimension, default 0). The 3D layer clamps it
	// to stride-1; the others reject values not smaller than the stride or
	// the dilation.
	OutputPadding []int
}

// ConvTranspose is an N-D transposed convolution (N = 1, 2, 3) with a
// padding policy.
//
// Its native padding is pinned to dilation*(kernel-1) per dimension and the
// input is padded explicitly beforehand: same and causal pad like the
// forward convolution so the output keeps the input length for stride 1,
// valid pads dilation*(kernel-1) on both sides. For valid with stride > 1
// both paddings are zero, which yields the unpadded transposed convolution.
// Weight [C_in, C_out/groups, K1..Kn], bias [C_out].
type ConvTranspose[B tensor.Backend] struct {
	mode
	kind          string
	cfg           ConvConfig
	outputPadding []int
	native        []int
	layout        channelLayout
	pads          [][2]int
	weight        *Parameter[B]
	bias          *Parameter[B]
	backend       B
}

var _ Module[tensor.Backend] = (*ConvTranspose[tensor.Backend])(nil)

// NewConvTranspose1D creates a 1-D transposed convolution.
func NewConvTranspose1D[B tensor.Backend](cfg ConvTransposeConfig, backend B) (*ConvTranspose[B], error) {
	return newConvTranspose("ConvTranspose1d", 1, cfg, backend)
}

// NewConvTranspose2D creates a 2-D transposed convolution.
func NewConvTranspose2D[B tensor.Backend](cfg ConvTransposeConfig, backend B) (*ConvTranspose[B], error) {
	return newConvTranspose("ConvTranspose2d", 2, cfg, backend)
}

// NewConvTranspose3D creates a 3-D transposed convolution.
func NewConvTranspose3D[B tensor.Backend](cfg ConvTransposeConfig, backend B) (*ConvTranspose[B], error) {
	return newConvTranspose("ConvTranspose3d", 3, cfg, backend)
}

func newConvTranspose[B tensor.Backend](kind string, rank int, tcfg ConvTransposeConfig, backend B) (*ConvTranspose[B], error) {
	cfg, err := tcfg.ConvConfig.normalized(kind, rank)
	if err != nil {
		return nil, err
	}
	pads, err := TransposePadding(cfg.Padding, cfg.KernelSize, cfg.Dilation, cfg.Stride)
	if err != nil {
		return nil, errors.WithMessage(err, kind)
	}
	outputPadding, err := transposeOutputPadding(kind, rank, tcfg.OutputPadding, cfg)
	if err != nil {
		return nil, err
	}

	shape := append(tensor.Shape{cfg.InChannels, cfg.OutChannels / cfg.Groups}, cfg.KernelSize...)
	fanIn, fanOut := fans(shape)
	c := &ConvTranspose[B]{
		kind:          kind,
		cfg:           cfg,
		outputPadding: outputPadding,
		native:        TransposeNativePadding(cfg.Padding, cfg.KernelSize, cfg.Dilation, cfg.Stride),
		layout:        channelLayout{rank: rank, last: cfg.ChannelsLast},
		pads:          pads,
		weight:        NewParameter("weight", Xavier(fanIn, fanOut, shape, backend)),
		backend:       backend,
	}
	if !cfg.NoBias {
		c.bias = NewParameter("bias", Zeros(tensor.Shape{cfg.OutChannels}, backend))
	}
	return c, nil
}

func transposeOutputPadding(kind string, rank int, values []int, cfg ConvConfig) ([]int, error) {
	var out []int
	switch len(values) {
	case 0:
		return make([]int, rank), nil
	case 1:
		out = make([]int, rank)
		for d := range out {
			out[d] = values[0]
		}
	case rank:
		out = append([]int(nil), values...)
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "%s: output_padding %v needs 1 or %d values", kind, values, rank)
	}
	for d, op := range out {
		if op < 0 {
			return nil, errors.Wrapf(ErrInvalidConfig, "%s: negative output_padding %v", kind, values)
		}
		if rank == 3 {
			out[d] = min(op, cfg.Stride[d]-1)
			continue
		}
		if op >= cfg.Stride[d] && op >= cfg.Dilation[d] {
			return nil, errors.Wrapf(ErrInvalidConfig, "%s: output_padding %d must be smaller than stride %d or dilation %d",
				kind, op, cfg.Stride[d], cfg.Dilation[d])
		}
	}
	return out, nil
}

// Forward pads the input and applies the transposed convolution.
func (c *ConvTranspose[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	checkRank(c.kind, input, c.layout.rank)
	x := input
	if c.layout.last {
		x = x.Transpose(c.layout.inPerm()...)
	}
	x = x.Pad(c.pads, 0)

	var bias *tensor.RawTensor
	if c.bias != nil {
		bias = c.bias.Tensor().Raw()
	}
	out := c.backend.ConvTranspose(x.Raw(), c.weight.Tensor().Raw(), bias, tensor.ConvTransposeParams{
		Stride:        c.cfg.Stride,
		Padding:       c.native,
		OutputPadding: c.outputPadding,
		Dilation:      c.cfg.Dilation,
		Groups:        c.cfg.Groups,
	})
	y := tensor.New[float32, B](out, c.backend)
	if c.layout.last {
		y = y.Transpose(c.layout.outPerm()...)
	}
	return y
}

// Parameters returns [weight, bias] if bias is present, otherwise [weight].
func (c *ConvTranspose[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Weight returns the weight parameter.
func (c *ConvTranspose[B]) Weight() *Parameter[B] { return c.weight }

// Bias returns the bias parameter, nil without bias.
func (c *ConvTranspose[B]) Bias() *Parameter[B] { return c.bias }

// Padding returns the explicit (left, right) padding per spatial dimension.
func (c *ConvTranspose[B]) Padding() [][2]int { return c.pads }

// PaddingMode returns the padding policy.
func (c *ConvTranspose[B]) PaddingMode() PaddingMode { return c.cfg.Padding }

// OutputPadding returns the effective output padding per spatial dimension.
func (c *ConvTranspose[B]) OutputPadding() []int { return c.outputPadding }

// OutputShape returns the output spatial lengths for the given input
// spatial lengths (channels-first order).
func (c *ConvTranspose[B]) OutputShape(spatial []int) []int {
	out := make([]int, len(spatial))
	for d, n := range spatial {
		out[d] = ConvTransposeOutputLength(n, c.cfg.KernelSize[d], c.cfg.Dilation[d], c.cfg.Stride[d],
			c.native[d], c.outputPadding[d], c.pads[d])
	}
	return out
}

package nn

import (
	"slices"

	. "github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

// ConvConfig configures Conv1D/2D/3D and, through ConvTransposeConfig, the
// transposed variants.
//
// Per-dimension lists (KernelSize, Stride, Dilation) take either one value
// per spatial dimension or a single value used for all of them. Stride and
// Dilation default to 1, Groups to 1.
type ConvConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  []int
	Stride      []int
	Dilation    []int
	Groups      int
	NoBias      bool

	// Padding defaults to PaddingSame.
	Padding PaddingMode

	// ChannelsLast selects [N, spatial..., C] inputs and outputs instead
	// of [N, C, spatial...].
	ChannelsLast bool
}

// normalized checks cfg for a layer of the given spatial rank and expands
// the per-dimension lists.
func (cfg ConvConfig) normalized(kind string, rank int) (ConvConfig, error) {
	out := cfg
	var err error
	if out.KernelSize, err = perDim(kind, "kernel_size", cfg.KernelSize, rank, 0); err != nil {
		return out, err
	}
	if out.Stride, err = perDim(kind, "stride", cfg.Stride, rank, 1); err != nil {
		return out, err
	}
	if out.Dilation, err = perDim(kind, "dilation", cfg.Dilation, rank, 1); err != nil {
		return out, err
	}
	if out.Groups == 0 {
		out.Groups = 1
	}
	switch {
	case cfg.InChannels < 1 || cfg.OutChannels < 1:
		return out, errors.Wrapf(ErrInvalidConfig, "%s: in_channels=%d out_channels=%d", kind, cfg.InChannels, cfg.OutChannels)
	case out.Groups < 1 || cfg.InChannels%out.Groups != 0 || cfg.OutChannels%out.Groups != 0:
		return out, errors.Wrapf(ErrInvalidConfig, "%s: channels %d->%d not divisible by groups=%d",
			kind, cfg.InChannels, cfg.OutChannels, out.Groups)
	}
	return out, nil
}

// perDim expands values to one entry per spatial dimension. An empty list
// gives def (def 0 means the list is required); every entry must be positive.
func perDim(kind, name string, values []int, rank, def int) ([]int, error) {
	var out []int
	switch len(values) {
	case 0:
		if def == 0 {
			return nil, errors.Wrapf(ErrInvalidConfig, "%s: %s is required", kind, name)
		}
		out = slices.Repeat([]int{def}, rank)
	case 1:
		out = slices.Repeat(values, rank)
	case rank:
		out = slices.Clone(values)
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "%s: %s %v needs 1 or %d values", kind, name, values, rank)
	}
	for _, v := range out {
		if v < 1 {
			return nil, errors.Wrapf(ErrInvalidConfig, "%s: %s %v must be positive", kind, name, values)
		}
	}
	return out, nil
}

// channelLayout moves the channel dimension of [N, C, spatial...] tensors
// to the end and back.
type channelLayout struct {
	rank int
	last bool
}

// inPerm maps [N, spatial..., C] to [N, C, spatial...].
func (c channelLayout) inPerm() []int {
	perm := []int{0, c.rank + 1}
	for d := 1; d <= c.rank; d++ {
		perm = append(perm, d)
	}
	return perm
}

// outPerm maps [N, C, spatial...] to [N, spatial..., C].
func (c channelLayout) outPerm() []int {
	perm := []int{0}
	for d := 2; d <= c.rank+1; d++ {
		perm = append(perm, d)
	}
	return append(perm, 1)
}

func checkRank[B tensor.Backend](kind string, x *tensor.Tensor[float32, B], rank int) {
	if len(x.Shape()) != rank+2 {
		Panicf("%s.Forward: expected %dD input [N, C, spatial...], got shape %v", kind, rank+2, x.Shape())
	}
}

// Conv is an N-D convolution (N = 1, 2, 3) with a padding policy.
//
// Input [N, C_in, S1..Sn] (channels-last: [N, S1..Sn, C_in]) is padded
// according to the padding mode and convolved with zero native padding.
// Weight [C_out, C_in/groups, K1..Kn], bias [C_out].
type Conv[B tensor.Backend] struct {
	mode
	kind    string
	cfg     ConvConfig
	layout  channelLayout
	pads    [][2]int
	weight  *Parameter[B]
	bias    *Parameter[B]
	backend B
}

var _ Module[tensor.Backend] = (*Conv[tensor.Backend])(nil)

// NewConv1D creates a 1-D convolution over [N, C, L] inputs.
func NewConv1D[B tensor.Backend](cfg ConvConfig, backend B) (*Conv[B], error) {
	return newConv("Conv1d", 1, cfg, backend)
}

// NewConv2D creates a 2-D convolution over [N, C, H, W] inputs.
func NewConv2D[B tensor.Backend](cfg ConvConfig, backend B) (*Conv[B], error) {
	return newConv("Conv2d", 2, cfg, backend)
}

// NewConv3D creates a 3-D convolution over [N, C, D, H, W] inputs.
func NewConv3D[B tensor.Backend](cfg ConvConfig, backend B) (*Conv[B], error) {
	return newConv("Conv3d", 3, cfg, backend)
}

func newConv[B tensor.Backend](kind string, rank int, cfg ConvConfig, backend B) (*Conv[B], error) {
	cfg, err := cfg.normalized(kind, rank)
	if err != nil {
		return nil, err
	}
	pads, err := ConvPadding(cfg.Padding, cfg.KernelSize, cfg.Dilation)
	if err != nil {
		return nil, errors.WithMessage(err, kind)
	}

	shape := append(tensor.Shape{cfg.OutChannels, cfg.InChannels / cfg.Groups}, cfg.KernelSize...)
	fanIn, fanOut := fans(shape)
	c := &Conv[B]{
		kind:    kind,
		cfg:     cfg,
		layout:  channelLayout{rank: rank, last: cfg.ChannelsLast},
		pads:    pads,
		weight:  NewParameter("weight", Xavier(fanIn, fanOut, shape, backend)),
		backend: backend,
	}
	if !cfg.NoBias {
		c.bias = NewParameter("bias", Zeros(tensor.Shape{cfg.OutChannels}, backend))
	}
	return c, nil
}

// Forward pads the input and applies the convolution.
func (c *Conv[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
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
	out := c.backend.Conv(x.Raw(), c.weight.Tensor().Raw(), bias, tensor.ConvParams{
		Stride:   c.cfg.Stride,
		Dilation: c.cfg.Dilation,
		Groups:   c.cfg.Groups,
	})
	y := tensor.New[float32, B](out, c.backend)
	if c.layout.last {
		y = y.Transpose(c.layout.outPerm()...)
	}
	return y
}

// Parameters returns [weight, bias] if bias is present, otherwise [weight].
func (c *Conv[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Weight returns the weight parameter.
func (c *Conv[B]) Weight() *Parameter[B] { return c.weight }

// Bias returns the bias parameter, nil without bias.
func (c *Conv[B]) Bias() *Parameter[B] { return c.bias }

// Padding returns the explicit (left, right) padding per spatial dimension.
func (c *Conv[B]) Padding() [][2]int { return c.pads }

// PaddingMode returns the padding policy.
func (c *Conv[B]) PaddingMode() PaddingMode { return c.cfg.Padding }

// OutputShape returns the output spatial lengths for the given input
// spatial lengths (channels-first order).
func (c *Conv[B]) OutputShape(spatial []int) []int {
	out := make([]int, len(spatial))
	for d, n := range spatial {
		out[d] = ConvOutputLength(n, c.cfg.KernelSize[d], c.cfg.Dilation[d], c.cfg.Stride[d], c.pads[d])
	}
	return out
}

package nn

import (
	"slices"

	. "github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

// GlobalAvgPool averages over a fixed set of dimensions. ForwardMasked
// averages only over positions where a mask is non-zero.
type GlobalAvgPool[B tensor.Backend] struct {
	shapeOp[B]
	dims    []int
	keepDim bool
}

// NewGlobalAvgPool averages over dims.
func NewGlobalAvgPool[B tensor.Backend](dims []int, keepDim bool) *GlobalAvgPool[B] {
	return &GlobalAvgPool[B]{dims: slices.Clone(dims), keepDim: keepDim}
}

// NewGlobalAvgPool1D averages over the sequence dimension 1 of [N, T, C]
// inputs.
func NewGlobalAvgPool1D[B tensor.Backend](keepDim bool) *GlobalAvgPool[B] {
	return NewGlobalAvgPool[B]([]int{1}, keepDim)
}

// NewGlobalAvgPool2D averages over dimensions 2 and 3 of [N, C, H, W].
func NewGlobalAvgPool2D[B tensor.Backend](keepDim bool) *GlobalAvgPool[B] {
	return NewGlobalAvgPool[B]([]int{2, 3}, keepDim)
}

// NewGlobalAvgPool3D averages over dimensions 2, 3 and 4 of [N, C, D, H, W].
func NewGlobalAvgPool3D[B tensor.Backend](keepDim bool) *GlobalAvgPool[B] {
	return NewGlobalAvgPool[B]([]int{2, 3, 4}, keepDim)
}

// Forward returns the plain mean over the pooled dimensions.
func (p *GlobalAvgPool[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.MeanDims(p.dims, p.keepDim)
}

// ForwardMasked returns sum(x*mask) / count_nonzero(mask) over the pooled
// dimensions, so masked-out positions do not bias the average. mask must
// have the rank of x and broadcast against it; a nil mask falls back to
// Forward. Rows whose mask is all zero divide by zero.
func (p *GlobalAvgPool[B]) ForwardMasked(input, mask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if mask == nil {
		return p.Forward(input)
	}
	if len(mask.Shape()) != len(input.Shape()) {
		Panicf("GlobalAvgPool.ForwardMasked: mask shape %v does not match input rank %v", mask.Shape(), input.Shape())
	}
	sum := input.Mul(mask).SumDims(p.dims, p.keepDim)
	return sum.Div(mask.CountNonzero(p.dims, p.keepDim))
}

// GlobalMaxPool takes the maximum over a fixed set of dimensions.
type GlobalMaxPool[B tensor.Backend] struct {
	shapeOp[B]
	dims    []int
	keepDim bool
}

// NewGlobalMaxPool2D takes the maximum over dimensions 2 and 3 of
// [N, C, H, W].
func NewGlobalMaxPool2D[B tensor.Backend](keepDim bool) *GlobalMaxPool[B] {
	return &GlobalMaxPool[B]{dims: []int{2, 3}, keepDim: keepDim}
}

// Forward returns the maximum over the pooled dimensions.
func (p *GlobalMaxPool[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.MaxDims(p.dims, p.keepDim)
}

// PoolConfig configures MaxPool1D/2D/3D. Per-dimension lists take one
// value or one per spatial dimension. Stride defaults to the kernel size,
// Padding to 0 and Dilation to 1.
type PoolConfig struct {
	KernelSize []int
	Stride     []int
	Padding    []int
	Dilation   []int
}

// MaxPool is N-D max pooling over [N, C, spatial...] inputs.
type MaxPool[B tensor.Backend] struct {
	shapeOp[B]
	kind    string
	rank    int
	params  tensor.PoolParams
	backend B
}

// NewMaxPool1D creates 1-D max pooling.
func NewMaxPool1D[B tensor.Backend](cfg PoolConfig, backend B) (*MaxPool[B], error) {
	return newMaxPool("MaxPool1d", 1, cfg, backend)
}

// NewMaxPool2D creates 2-D max pooling.
func NewMaxPool2D[B tensor.Backend](cfg PoolConfig, backend B) (*MaxPool[B], error) {
	return newMaxPool("MaxPool2d", 2, cfg, backend)
}

// NewMaxPool3D creates 3-D max pooling.
func NewMaxPool3D[B tensor.Backend](cfg PoolConfig, backend B) (*MaxPool[B], error) {
	return newMaxPool("MaxPool3d", 3, cfg, backend)
}

func newMaxPool[B tensor.Backend](kind string, rank int, cfg PoolConfig, backend B) (*MaxPool[B], error) {
	kernel, err := perDim(kind, "kernel_size", cfg.KernelSize, rank, 0)
	if err != nil {
		return nil, err
	}
	stride := kernel
	if len(cfg.Stride) > 0 {
		if stride, err = perDim(kind, "stride", cfg.Stride, rank, 1); err != nil {
			return nil, err
		}
	}
	dilation, err := perDim(kind, "dilation", cfg.Dilation, rank, 1)
	if err != nil {
		return nil, err
	}
	padding := make([]int, rank)
	switch len(cfg.Padding) {
	case 0:
	case 1, rank:
		for d := range padding {
			padding[d] = cfg.Padding[min(d, len(cfg.Padding)-1)]
			if padding[d] < 0 || 2*padding[d] > kernel[d] {
				return nil, errors.Wrapf(ErrInvalidConfig, "%s: padding %v should be at most half of kernel size %v",
					kind, cfg.Padding, kernel)
			}
		}
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "%s: padding %v needs 1 or %d values", kind, cfg.Padding, rank)
	}
	return &MaxPool[B]{
		kind: kind,
		rank: rank,
		params: tensor.PoolParams{
			KernelSize: kernel,
			Stride:     stride,
			Padding:    padding,
			Dilation:   dilation,
		},
		backend: backend,
	}, nil
}

// Forward applies max pooling.
func (p *MaxPool[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	checkRank(p.kind, input, p.rank)
	return tensor.New[float32, B](p.backend.MaxPool(input.Raw(), p.params), p.backend)
}

package tensor

// Backend defines the runtime primitive ops consumed by the layers.
// Backends handle the actual computation; layers only decide which
// tensors to feed them.
//
// All ops are forward-only and synchronous. Invalid shapes are a caller
// precondition violation and make implementations panic.
//
// Implementations:
//   - CPU: Pure Go reference implementation (internal/backend/cpu)
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MulScalar multiplies every element by scalar.
	MulScalar(x *RawTensor, scalar float64) *RawTensor

	// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) *RawTensor

	// BatchMatMul multiplies [B, M, K] by [B, K, N], or by [B, N, K] when
	// transposeB is set, giving [B, M, N].
	BatchMatMul(a, b *RawTensor, transposeB bool) *RawTensor

	// Linear computes x @ weight.T + bias for x [..., in], weight [out, in]
	// and an optional bias [out] (nil for none).
	Linear(x, weight, bias *RawTensor) *RawTensor

	// Conv performs an N-D convolution over [N, C, spatial...] inputs with
	// weights [C_out, C_in/groups, kernel...]. bias may be nil.
	Conv(input, weight, bias *RawTensor, params ConvParams) *RawTensor

	// ConvTranspose performs an N-D transposed convolution over
	// [N, C_in, spatial...] inputs with weights [C_in, C_out/groups, kernel...].
	ConvTranspose(input, weight, bias *RawTensor, params ConvTransposeParams) *RawTensor

	// LSTM evaluates a (possibly multi-layer, bidirectional) LSTM. weights is
	// the flattened per (layer, direction) list of
	// weight_ih, weight_hh[, bias_ih, bias_hh]. h0 and c0 may be nil.
	LSTM(input, h0, c0 *RawTensor, weights []*RawTensor, params LSTMParams) (output, hn, cn *RawTensor)

	// Embedding looks up rows of weight [V, E] for an integer indices tensor.
	Embedding(weight, indices *RawTensor) *RawTensor

	// MaxPool performs N-D max pooling over [N, C, spatial...] inputs.
	MaxPool(input *RawTensor, params PoolParams) *RawTensor

	// UpsampleNearest repeats every spatial element scale[d] times along
	// spatial dimension d of a [N, C, spatial...] input.
	UpsampleNearest(input *RawTensor, scale []int) *RawTensor

	// Dropout zeroes elements with probability p and scales the survivors
	// by 1/(1-p).
	Dropout(x *RawTensor, p float64) *RawTensor

	// Pad adds constant padding. pads[i] holds the (left, right) amounts for
	// the i-th of the last len(pads) dimensions.
	Pad(x *RawTensor, pads [][2]int, value float64) *RawTensor

	// Shape operations
	Reshape(x *RawTensor, newShape Shape) *RawTensor
	Transpose(x *RawTensor, axes ...int) *RawTensor
	Stack(tensors []*RawTensor) *RawTensor // new leading dimension

	// Reductions over a set of dimensions.
	SumDims(x *RawTensor, dims []int, keepDim bool) *RawTensor
	MeanDims(x *RawTensor, dims []int, keepDim bool) *RawTensor
	MaxDims(x *RawTensor, dims []int, keepDim bool) *RawTensor
	// CountNonzero counts non-zero elements; the result has x's dtype.
	CountNonzero(x *RawTensor, dims []int, keepDim bool) *RawTensor

	// RandNormal samples a standard normal tensor.
	RandNormal(shape Shape, dtype DataType) *RawTensor
	// RandUniform samples a tensor uniformly from [low, high).
	RandUniform(shape Shape, dtype DataType, low, high float64) *RawTensor

	// Metadata
	Name() string
	Device() Device
}

// ConvParams configures Backend.Conv. Slices hold one entry per spatial
// dimension.
type ConvParams struct {
	Stride   []int
	Padding  []int // symmetric zero padding per spatial dimension
	Dilation []int
	Groups   int
}

// ConvTransposeParams configures Backend.ConvTranspose.
type ConvTransposeParams struct {
	Stride        []int
	Padding       []int
	OutputPadding []int
	Dilation      []int
	Groups        int
}

// LSTMParams configures Backend.LSTM.
type LSTMParams struct {
	HiddenSize    int
	NumLayers     int
	Bidirectional bool
	BatchFirst    bool
	Bias          bool
}

// NumDirections returns 2 for bidirectional LSTMs, 1 otherwise.
func (p LSTMParams) NumDirections() int {
	if p.Bidirectional {
		return 2
	}
	return 1
}

// PoolParams configures Backend.MaxPool.
type PoolParams struct {
	KernelSize []int
	Stride     []int
	Padding    []int
	Dilation   []int
}

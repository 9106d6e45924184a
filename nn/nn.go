// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/synapse/internal/nn"
	"github.com/born-ml/synapse/tensor"
)

// Module is a layer with a float32 forward pass.
type Module[B tensor.Backend] = nn.Module[B]

// Layer is the part of the layer API every layer shares: parameters and
// the training flag.
type Layer[B tensor.Backend] = nn.Layer[B]

// Parameter represents a named trainable tensor.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// StateDict returns a map of parameter names to raw tensors.
func StateDict[B tensor.Backend](l Layer[B]) map[string]*tensor.RawTensor {
	return nn.StateDict(l)
}

// LoadStateDict copies parameter values from stateDict into l.
func LoadStateDict[B tensor.Backend](l Layer[B], stateDict map[string]*tensor.RawTensor) error {
	return nn.LoadStateDict(l, stateDict)
}

// NumParameters returns the number of scalar parameters of l.
func NumParameters[B tensor.Backend](l Layer[B]) int {
	return nn.NumParameters(l)
}

// Errors. Compare with errors.Is.
var (
	ErrInvalidPadding     = nn.ErrInvalidPadding
	ErrInvalidConfig      = nn.ErrInvalidConfig
	ErrExpertIndex        = nn.ErrExpertIndex
	ErrNoiseNotConfigured = nn.ErrNoiseNotConfigured
	ErrUnknownLayer       = nn.ErrUnknownLayer
)

// Padding

// PaddingMode selects how convolution inputs are padded.
type PaddingMode = nn.PaddingMode

// Padding modes.
const (
	PaddingSame   = nn.PaddingSame
	PaddingValid  = nn.PaddingValid
	PaddingCausal = nn.PaddingCausal
)

// ParsePaddingMode parses "valid", "same" or "causal" (case-insensitive).
func ParsePaddingMode(s string) (PaddingMode, error) {
	return nn.ParsePaddingMode(s)
}

// Dense layers

// LinearConfig configures a Linear layer.
type LinearConfig = nn.LinearConfig

// Linear is a fully connected layer with variational weight noise.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a new linear layer with Xavier initialization.
//
// Example:
//
//	backend := cpu.New()
//	layer, err := nn.NewLinear(nn.LinearConfig{InFeatures: 784, OutFeatures: 128}, backend)
func NewLinear[B tensor.Backend](cfg LinearConfig, backend B) (*Linear[B], error) {
	return nn.NewLinear(cfg, backend)
}

// SwitchLinearConfig configures a SwitchLinear layer.
type SwitchLinearConfig = nn.SwitchLinearConfig

// SwitchLinear applies one Linear expert per example, chosen by index.
type SwitchLinear[B tensor.Backend] = nn.SwitchLinear[B]

// NewSwitchLinear creates a new SwitchLinear layer.
//
// Example:
//
//	experts, _ := nn.NewSwitchLinear(nn.SwitchLinearConfig{NumExperts: 4, InFeatures: 16, OutFeatures: 8}, backend)
//	y, err := experts.Forward(x, []int{0, 3, 3, 1}) // x: [4, 16]
func NewSwitchLinear[B tensor.Backend](cfg SwitchLinearConfig, backend B) (*SwitchLinear[B], error) {
	return nn.NewSwitchLinear(cfg, backend)
}

// Convolutions

// ConvConfig configures Conv1D/2D/3D.
type ConvConfig = nn.ConvConfig

// Conv is an N-D convolution with a padding policy.
type Conv[B tensor.Backend] = nn.Conv[B]

// NewConv1D creates a 1-D convolution over [N, C, L] inputs.
func NewConv1D[B tensor.Backend](cfg ConvConfig, backend B) (*Conv[B], error) {
	return nn.NewConv1D(cfg, backend)
}

// NewConv2D creates a 2-D convolution over [N, C, H, W] inputs.
func NewConv2D[B tensor.Backend](cfg ConvConfig, backend B) (*Conv[B], error) {
	return nn.NewConv2D(cfg, backend)
}

// NewConv3D creates a 3-D convolution over [N, C, D, H, W] inputs.
func NewConv3D[B tensor.Backend](cfg ConvConfig, backend B) (*Conv[B], error) {
	return nn.NewConv3D(cfg, backend)
}

// ConvTransposeConfig configures ConvTranspose1D/2D/3D.
type ConvTransposeConfig = nn.ConvTransposeConfig

// ConvTranspose is an N-D transposed convolution with a padding policy.
type ConvTranspose[B tensor.Backend] = nn.ConvTranspose[B]

// NewConvTranspose1D creates a 1-D transposed convolution.
func NewConvTranspose1D[B tensor.Backend](cfg ConvTransposeConfig, backend B) (*ConvTranspose[B], error) {
	return nn.NewConvTranspose1D(cfg, backend)
}

// NewConvTranspose2D creates a 2-D transposed convolution.
func NewConvTranspose2D[B tensor.Backend](cfg ConvTransposeConfig, backend B) (*ConvTranspose[B], error) {
	return nn.NewConvTranspose2D(cfg, backend)
}

// NewConvTranspose3D creates a 3-D transposed convolution. Output padding
// is clamped to stride-1 per dimension.
func NewConvTranspose3D[B tensor.Backend](cfg ConvTransposeConfig, backend B) (*ConvTranspose[B], error) {
	return nn.NewConvTranspose3D(cfg, backend)
}

// Sequence layers

// LSTMConfig configures an LSTM layer.
type LSTMConfig = nn.LSTMConfig

// LSTMState is the hidden and cell state of an LSTM.
type LSTMState[B tensor.Backend] = nn.LSTMState[B]

// LSTM is a stacked, optionally bidirectional LSTM with variational
// weight noise.
type LSTM[B tensor.Backend] = nn.LSTM[B]

// NewLSTM creates a new LSTM layer.
func NewLSTM[B tensor.Backend](cfg LSTMConfig, backend B) (*LSTM[B], error) {
	return nn.NewLSTM(cfg, backend)
}

// EmbeddingConfig configures an Embedding layer.
type EmbeddingConfig = nn.EmbeddingConfig

// Embedding is a lookup table with variational noise.
type Embedding[B tensor.Backend] = nn.Embedding[B]

// NewEmbedding creates a new Embedding layer.
//
// Example:
//
//	embed, _ := nn.NewEmbedding(nn.EmbeddingConfig{NumEmbeddings: 10000, EmbeddingDim: 256}, backend)
//	indices, _ := tensor.FromSlice([]int32{1, 2, 3}, tensor.Shape{1, 3}, backend)
//	embeddings := embed.Forward(indices) // [1, 3, 256]
func NewEmbedding[B tensor.Backend](cfg EmbeddingConfig, backend B) (*Embedding[B], error) {
	return nn.NewEmbedding(cfg, backend)
}

// Utility layers

// Dropout zeroes elements with probability p in training mode.
type Dropout[B tensor.Backend] = nn.Dropout[B]

// NewDropout creates a Dropout layer. p must lie in [0, 1).
func NewDropout[B tensor.Backend](p float64, backend B) (*Dropout[B], error) {
	return nn.NewDropout(p, backend)
}

// Flatten merges a range of dimensions.
type Flatten[B tensor.Backend] = nn.Flatten[B]

// NewFlatten creates a Flatten layer.
func NewFlatten[B tensor.Backend](startDim, endDim int) *Flatten[B] {
	return nn.NewFlatten[B](startDim, endDim)
}

// Transpose swaps two dimensions.
type Transpose[B tensor.Backend] = nn.Transpose[B]

// NewTranspose creates a Transpose layer.
func NewTranspose[B tensor.Backend](dim0, dim1 int) *Transpose[B] {
	return nn.NewTranspose[B](dim0, dim1)
}

// Permute reorders all dimensions.
type Permute[B tensor.Backend] = nn.Permute[B]

// NewPermute creates a Permute layer.
func NewPermute[B tensor.Backend](dims []int) (*Permute[B], error) {
	return nn.NewPermute[B](dims)
}

// Reshape reshapes to a fixed shape.
type Reshape[B tensor.Backend] = nn.Reshape[B]

// NewReshape creates a Reshape layer.
func NewReshape[B tensor.Backend](shape []int, includeBatch bool) (*Reshape[B], error) {
	return nn.NewReshape[B](shape, includeBatch)
}

// Unsqueeze inserts a dimension of size 1.
type Unsqueeze[B tensor.Backend] = nn.Unsqueeze[B]

// NewUnsqueeze creates an Unsqueeze layer.
func NewUnsqueeze[B tensor.Backend](dim int) *Unsqueeze[B] {
	return nn.NewUnsqueeze[B](dim)
}

// Pooling

// GlobalAvgPool averages over fixed dimensions, optionally masked.
type GlobalAvgPool[B tensor.Backend] = nn.GlobalAvgPool[B]

// NewGlobalAvgPool averages over dims.
func NewGlobalAvgPool[B tensor.Backend](dims []int, keepDim bool) *GlobalAvgPool[B] {
	return nn.NewGlobalAvgPool[B](dims, keepDim)
}

// NewGlobalAvgPool1D averages over dimension 1 of [N, T, C].
func NewGlobalAvgPool1D[B tensor.Backend](keepDim bool) *GlobalAvgPool[B] {
	return nn.NewGlobalAvgPool1D[B](keepDim)
}

// NewGlobalAvgPool2D averages over the spatial dimensions of [N, C, H, W].
func NewGlobalAvgPool2D[B tensor.Backend](keepDim bool) *GlobalAvgPool[B] {
	return nn.NewGlobalAvgPool2D[B](keepDim)
}

// NewGlobalAvgPool3D averages over the spatial dimensions of [N, C, D, H, W].
func NewGlobalAvgPool3D[B tensor.Backend](keepDim bool) *GlobalAvgPool[B] {
	return nn.NewGlobalAvgPool3D[B](keepDim)
}

// GlobalMaxPool takes the maximum over fixed dimensions.
type GlobalMaxPool[B tensor.Backend] = nn.GlobalMaxPool[B]

// NewGlobalMaxPool2D takes the maximum over the spatial dimensions of
// [N, C, H, W].
func NewGlobalMaxPool2D[B tensor.Backend](keepDim bool) *GlobalMaxPool[B] {
	return nn.NewGlobalMaxPool2D[B](keepDim)
}

// PoolConfig configures MaxPool1D/2D/3D.
type PoolConfig = nn.PoolConfig

// MaxPool is N-D max pooling.
type MaxPool[B tensor.Backend] = nn.MaxPool[B]

// NewMaxPool1D creates 1-D max pooling.
func NewMaxPool1D[B tensor.Backend](cfg PoolConfig, backend B) (*MaxPool[B], error) {
	return nn.NewMaxPool1D(cfg, backend)
}

// NewMaxPool2D creates 2-D max pooling.
//
// Example:
//
//	pool, _ := nn.NewMaxPool2D(nn.PoolConfig{KernelSize: []int{2}}, backend) // kernel=2, stride=2
func NewMaxPool2D[B tensor.Backend](cfg PoolConfig, backend B) (*MaxPool[B], error) {
	return nn.NewMaxPool2D(cfg, backend)
}

// NewMaxPool3D creates 3-D max pooling.
func NewMaxPool3D[B tensor.Backend](cfg PoolConfig, backend B) (*MaxPool[B], error) {
	return nn.NewMaxPool3D(cfg, backend)
}

// Upsample3D is nearest-neighbour upsampling of [N, C, D, H, W] inputs.
type Upsample3D[B tensor.Backend] = nn.Upsample3D[B]

// NewUpsample3D creates an Upsample3D layer.
func NewUpsample3D[B tensor.Backend](scale []int, backend B) (*Upsample3D[B], error) {
	return nn.NewUpsample3D(scale, backend)
}

// Registry

// Config holds the parameters of a layer built by name.
type Config = nn.Config

// Builder constructs a layer from its Config.
type Builder[B tensor.Backend] = nn.Builder[B]

// LayerNames returns the registered layer names, sorted.
func LayerNames() []string {
	return nn.LayerNames()
}

// Build constructs the layer registered under name.
//
// Example:
//
//	layer, err := nn.Build("Conv1d", nn.Config{
//	    "in_channels": 4, "out_channels": 8, "kernel_size": 3, "padding": "causal",
//	}, backend)
func Build[B tensor.Backend](name string, cfg Config, backend B) (Layer[B], error) {
	return nn.Build(name, cfg, backend)
}

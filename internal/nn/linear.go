package nn

import (
	"context"

	. "github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

// LinearConfig configures a Linear layer.
type LinearConfig struct {
	InFeatures  int
	OutFeatures int
	NoBias      bool
}

// Linear implements a fully connected (dense) layer with variational
// weight noise.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [..., in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [..., out_features]
//
// In training mode with sampled noise, W is replaced by W + std*ε.
// The bias is never perturbed.
//
// Weights are initialized using Xavier/Glorot initialization.
// Biases are initialized to zeros.
//
// Example:
//
//	backend := cpu.New()
//	layer, err := nn.NewLinear(nn.LinearConfig{InFeatures: 784, OutFeatures: 128}, backend)
//
//	input := tensor.Randn[float32](tensor.Shape{32, 784}, backend)
//	output := layer.Forward(input) // shape: [32, 128]
type Linear[B tensor.Backend] struct {
	mode
	inFeatures  int
	outFeatures int
	weight      *Parameter[B] // [out_features, in_features]
	bias        *Parameter[B] // [out_features], nil without bias
	noise       NoiseState[B]
	backend     B
}

var _ NoisyLayer[tensor.Backend] = (*Linear[tensor.Backend])(nil)

// NewLinear creates a new Linear layer.
func NewLinear[B tensor.Backend](cfg LinearConfig, backend B) (*Linear[B], error) {
	if cfg.InFeatures < 1 || cfg.OutFeatures < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "linear: in_features=%d out_features=%d", cfg.InFeatures, cfg.OutFeatures)
	}

	weight := Xavier(cfg.InFeatures, cfg.OutFeatures, tensor.Shape{cfg.OutFeatures, cfg.InFeatures}, backend)
	l := &Linear[B]{
		inFeatures:  cfg.InFeatures,
		outFeatures: cfg.OutFeatures,
		weight:      NewParameter("weight", weight),
		backend:     backend,
	}
	if !cfg.NoBias {
		l.bias = NewParameter("bias", Zeros(tensor.Shape{cfg.OutFeatures}, backend))
	}
	return l, nil
}

// Forward computes x @ W.T + b over the last dimension of x.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) == 0 || inputShape[len(inputShape)-1] != l.inFeatures {
		Panicf("Linear.Forward: expected input [..., %d], got shape %v", l.inFeatures, inputShape)
	}
	w := l.ResolvedWeight()
	var bias *tensor.RawTensor
	if l.bias != nil {
		bias = l.bias.Tensor().Raw()
	}
	return tensor.New[float32, B](l.backend.Linear(input.Raw(), w.Raw(), bias), l.backend)
}

// ResolvedWeight returns the weight the next forward pass uses: perturbed
// by the current noise sample in training mode, the raw weight otherwise.
func (l *Linear[B]) ResolvedWeight() *tensor.Tensor[float32, B] {
	return l.noise.resolve(0, l.weight, l.Training())
}

// Parameters returns [weight, bias] if bias is present, otherwise [weight].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	if l.bias != nil {
		return []*Parameter[B]{l.weight, l.bias}
	}
	return []*Parameter[B]{l.weight}
}

// EligibleWeights returns [weight].
func (l *Linear[B]) EligibleWeights() []*Parameter[B] {
	return []*Parameter[B]{l.weight}
}

// ConfigureNoise sets the noise standard deviation.
func (l *Linear[B]) ConfigureNoise(std float64, opts ...NoiseOption) error {
	return l.noise.Configure(std, opts...)
}

// SampleNoise draws a new noise sample for the weight.
func (l *Linear[B]) SampleNoise(ctx context.Context, synchronize bool) error {
	return l.noise.Sample(ctx, l.EligibleWeights(), synchronize)
}

// ClearNoise drops the current noise sample.
func (l *Linear[B]) ClearNoise() {
	l.noise.Clear()
}

// NoiseActive reports whether noise samples are applied in training mode.
func (l *Linear[B]) NoiseActive() bool {
	return l.noise.Active()
}

// Noise returns the layer's noise state.
func (l *Linear[B]) Noise() *NoiseState[B] {
	return &l.noise
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter, nil without bias.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}

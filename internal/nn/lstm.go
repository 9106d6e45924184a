package nn

import (
	"context"
	"fmt"
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

// LSTMConfig configures an LSTM layer.
type LSTMConfig struct {
	InputSize     int
	HiddenSize    int
	NumLayers     int // defaults to 1
	BatchFirst    bool
	Bidirectional bool
	NoBias        bool
}

// LSTMState is the hidden and cell state, each [layers*directions, B, H].
type LSTMState[B tensor.Backend] struct {
	H *tensor.Tensor[float32, B]
	C *tensor.Tensor[float32, B]
}

// LSTM is a stacked, optionally bidirectional LSTM with variational weight
// noise.
//
// Its parameters form the flattened list the runtime expects: for each
// (layer, direction), weight_ih [4H, D], weight_hh [4H, H] and, with bias,
// bias_ih [4H], bias_hh [4H]. Noise is sampled for weight_ih and weight_hh
// of every (layer, direction); biases keep their place in the list and are
// never perturbed.
//
// All parameters start from U(-1/sqrt(H), 1/sqrt(H)).
type LSTM[B tensor.Backend] struct {
	mode
	cfg     LSTMConfig
	params  tensor.LSTMParams
	weights []*Parameter[B]
	noise   NoiseState[B]
	backend B
}

var _ NoisyLayer[tensor.Backend] = (*LSTM[tensor.Backend])(nil)
var _ Module[tensor.Backend] = (*LSTM[tensor.Backend])(nil)

// NewLSTM creates a new LSTM layer.
func NewLSTM[B tensor.Backend](cfg LSTMConfig, backend B) (*LSTM[B], error) {
	if cfg.NumLayers == 0 {
		cfg.NumLayers = 1
	}
	if cfg.InputSize < 1 || cfg.HiddenSize < 1 || cfg.NumLayers < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "LSTM: input_size=%d hidden_size=%d num_layers=%d",
			cfg.InputSize, cfg.HiddenSize, cfg.NumLayers)
	}

	l := &LSTM[B]{
		cfg: cfg,
		params: tensor.LSTMParams{
			HiddenSize:    cfg.HiddenSize,
			NumLayers:     cfg.NumLayers,
			Bidirectional: cfg.Bidirectional,
			BatchFirst:    cfg.BatchFirst,
			Bias:          !cfg.NoBias,
		},
		backend: backend,
	}

	h := cfg.HiddenSize
	bound := 1 / math.Sqrt(float64(h))
	dirs := l.params.NumDirections()
	for layer := 0; layer < cfg.NumLayers; layer++ {
		in := cfg.InputSize
		if layer > 0 {
			in = h * dirs
		}
		for dir := 0; dir < dirs; dir++ {
			suffix := fmt.Sprintf("_l%d", layer)
			if dir == 1 {
				suffix += "_reverse"
			}
			l.weights = append(l.weights,
				NewParameter("weight_ih"+suffix, Uniform(bound, tensor.Shape{4 * h, in}, backend)),
				NewParameter("weight_hh"+suffix, Uniform(bound, tensor.Shape{4 * h, h}, backend)))
			if l.params.Bias {
				l.weights = append(l.weights,
					NewParameter("bias_ih"+suffix, Uniform(bound, tensor.Shape{4 * h}, backend)),
					NewParameter("bias_hh"+suffix, Uniform(bound, tensor.Shape{4 * h}, backend)))
			}
		}
	}
	return l, nil
}

// perGroup is the number of flattened parameters per (layer, direction).
func (l *LSTM[B]) perGroup() int {
	if l.params.Bias {
		return 4
	}
	return 2
}

// Forward runs the LSTM from a zero state and returns the output sequence.
func (l *LSTM[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out, _ := l.ForwardState(input, nil)
	return out
}

// ForwardState runs the LSTM from state (nil for zeros) and returns the
// output sequence and the final state.
//
// Input [T, B, D] ([B, T, D] with BatchFirst); output [T, B, H*dirs]
// ([B, T, H*dirs] with BatchFirst).
func (l *LSTM[B]) ForwardState(input *tensor.Tensor[float32, B], state *LSTMState[B]) (*tensor.Tensor[float32, B], *LSTMState[B]) {
	shape := input.Shape()
	if len(shape) != 3 || shape[2] != l.cfg.InputSize {
		Panicf("LSTM.Forward: expected input [T, B, %d] (or [B, T, %d]), got shape %v",
			l.cfg.InputSize, l.cfg.InputSize, shape)
	}
	var h0, c0 *tensor.RawTensor
	if state != nil {
		h0, c0 = state.H.Raw(), state.C.Raw()
	}
	out, hn, cn := l.backend.LSTM(input.Raw(), h0, c0, l.FlatWeights(), l.params)
	return tensor.New[float32, B](out, l.backend), &LSTMState[B]{
		H: tensor.New[float32, B](hn, l.backend),
		C: tensor.New[float32, B](cn, l.backend),
	}
}

// FlatWeights returns the flattened weight list the next forward pass
// hands to the runtime, with noise applied to weight_ih and weight_hh when
// training with samples. Biases are passed through as they are.
func (l *LSTM[B]) FlatWeights() []*tensor.RawTensor {
	per := l.perGroup()
	flat := make([]*tensor.RawTensor, len(l.weights))
	for i, w := range l.weights {
		group, pos := i/per, i%per
		if pos < 2 {
			flat[i] = l.noise.resolve(2*group+pos, w, l.Training()).Raw()
		} else {
			flat[i] = w.Tensor().Raw()
		}
	}
	return flat
}

// Parameters returns the flattened parameter list.
func (l *LSTM[B]) Parameters() []*Parameter[B] {
	return l.weights
}

// EligibleWeights returns weight_ih and weight_hh of every (layer,
// direction), in order.
func (l *LSTM[B]) EligibleWeights() []*Parameter[B] {
	per := l.perGroup()
	eligible := make([]*Parameter[B], 0, 2*len(l.weights)/per)
	for i := 0; i < len(l.weights); i += per {
		eligible = append(eligible, l.weights[i], l.weights[i+1])
	}
	return eligible
}

// ConfigureNoise sets the noise standard deviation.
func (l *LSTM[B]) ConfigureNoise(std float64, opts ...NoiseOption) error {
	return l.noise.Configure(std, opts...)
}

// SampleNoise draws new noise samples for every input and hidden weight.
func (l *LSTM[B]) SampleNoise(ctx context.Context, synchronize bool) error {
	return l.noise.Sample(ctx, l.EligibleWeights(), synchronize)
}

// ClearNoise drops the current noise samples.
func (l *LSTM[B]) ClearNoise() {
	l.noise.Clear()
}

// NoiseActive reports whether noise samples are applied in training mode.
func (l *LSTM[B]) NoiseActive() bool {
	return l.noise.Active()
}

// Noise returns the layer's noise state.
func (l *LSTM[B]) Noise() *NoiseState[B] {
	return &l.noise
}

// HiddenSize returns the hidden state size.
func (l *LSTM[B]) HiddenSize() int {
	return l.cfg.HiddenSize
}

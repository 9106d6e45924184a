// Package nn implements the synapse layer wrappers.
//
// Every layer composes a runtime primitive (affine, N-D convolution and its
// transpose, LSTM, embedding lookup) with up to two extra behaviors:
//   - PaddingMode: valid, same or causal padding applied as an explicit
//     pre-op pad, with the primitive's own padding disabled
//   - NoiseState: variational weight noise, sampled on demand, applied only
//     in training mode and optionally broadcast so every replica holds the
//     same sample
//
// Layers are built directly from their config structs (NewLinear, NewConv2D,
// ...) or by name through the registry (Build).
package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

// Module is a layer mapping one float32 tensor to another.
//
// Layers with extra inputs (Embedding takes indices, SwitchLinear takes
// expert indices) implement Layer but not Module.
type Module[B tensor.Backend] interface {
	Layer[B]

	// Forward computes the output of the module given an input tensor.
	// Shape violations panic.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
}

// Layer is the part shared by every layer: trainable parameters and a
// training mode flag.
type Layer[B tensor.Backend] interface {
	// Parameters returns all trainable parameters of this layer, in a fixed
	// order. Noise samples are never included.
	Parameters() []*Parameter[B]

	// SetTraining switches between training (true) and evaluation mode.
	SetTraining(training bool)

	// Training reports whether the layer is in training mode.
	Training() bool
}

// mode holds the training flag. The zero value is training mode, matching
// a freshly constructed layer.
type mode struct {
	eval bool
}

// SetTraining switches between training and evaluation mode.
func (m *mode) SetTraining(training bool) {
	m.eval = !training
}

// Training reports whether the layer is in training mode.
func (m *mode) Training() bool {
	return !m.eval
}

// StateDict returns a map of parameter names to raw tensors.
func StateDict[B tensor.Backend](l Layer[B]) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, p := range l.Parameters() {
		stateDict[p.Name()] = p.Tensor().Raw()
	}
	return stateDict
}

// LoadStateDict copies parameter values from stateDict into l. Every
// parameter must be present with its exact shape and dtype; extra entries
// are an error as well.
func LoadStateDict[B tensor.Backend](l Layer[B], stateDict map[string]*tensor.RawTensor) error {
	params := l.Parameters()
	if len(stateDict) != len(params) {
		return errors.Errorf("state dict has %d entries, layer has %d parameters", len(stateDict), len(params))
	}
	for _, p := range params {
		raw, ok := stateDict[p.Name()]
		if !ok {
			return errors.Errorf("missing %s in state dict", p.Name())
		}
		if !raw.SameLayout(p.Tensor().Raw()) {
			return errors.Errorf("%s mismatch: expected %s%v, got %s%v", p.Name(),
				p.Tensor().DType(), p.Tensor().Shape(), raw.DType(), raw.Shape())
		}
	}
	for _, p := range params {
		copy(p.Tensor().Raw().Data(), stateDict[p.Name()].Data())
	}
	return nil
}

// NumParameters returns the number of scalar parameters of l.
func NumParameters[B tensor.Backend](l Layer[B]) int {
	n := 0
	for _, p := range l.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}

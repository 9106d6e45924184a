package nn

import (
	"github.com/born-ml/synapse/internal/tensor"
)

// Parameter represents a trainable parameter of a layer.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
type Parameter[B tensor.Backend] struct {
	name   string                     // Parameter name (e.g., "weight", "weight_ih_l0")
	tensor *tensor.Tensor[float32, B] // The parameter tensor
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// prefixed returns p renamed to prefix+"."+name, sharing the same tensor.
func (p *Parameter[B]) prefixed(prefix string) *Parameter[B] {
	return &Parameter[B]{name: prefix + "." + p.name, tensor: p.tensor}
}

package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

// Dropout zeroes each element with probability p in training mode and
// scales the survivors by 1/(1-p). In evaluation mode it is the identity.
type Dropout[B tensor.Backend] struct {
	mode
	p       float64
	backend B
}

// NewDropout creates a Dropout layer. p must lie in [0, 1).
func NewDropout[B tensor.Backend](p float64, backend B) (*Dropout[B], error) {
	if !(p >= 0 && p < 1) {
		return nil, errors.Wrapf(ErrInvalidConfig, "dropout: probability %g outside [0, 1)", p)
	}
	return &Dropout[B]{p: p, backend: backend}, nil
}

// Forward applies dropout in training mode.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.Training() || d.p == 0 {
		return input
	}
	return tensor.New[float32, B](d.backend.Dropout(input.Raw(), d.p), d.backend)
}

// Parameters returns nil.
func (d *Dropout[B]) Parameters() []*Parameter[B] { return nil }

// P returns the drop probability.
func (d *Dropout[B]) P() float64 { return d.p }

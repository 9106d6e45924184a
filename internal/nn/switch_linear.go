package nn

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

// SwitchLinearConfig configures a SwitchLinear layer.
type SwitchLinearConfig struct {
	NumExperts  int
	InFeatures  int
	OutFeatures int
	NoBias      bool
}

// SwitchLinear is a pool of Linear experts of identical shape where every
// example of a batch picks its own expert by index.
//
// Forward gathers the selected weights into [N, out, in] and biases into
// [N, out] and runs one batched product. The result for example i is
// exactly experts[indices[i]].Forward applied to example i alone.
//
// Noise configuration and sampling fan out to every expert, in order.
type SwitchLinear[B tensor.Backend] struct {
	mode
	experts []*Linear[B]
	backend B
}

var _ NoisyLayer[tensor.Backend] = (*SwitchLinear[tensor.Backend])(nil)

// NewSwitchLinear creates a new SwitchLinear layer with independently
// initialized experts.
func NewSwitchLinear[B tensor.Backend](cfg SwitchLinearConfig, backend B) (*SwitchLinear[B], error) {
	if cfg.NumExperts < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "switch linear: num_experts=%d", cfg.NumExperts)
	}
	s := &SwitchLinear[B]{
		experts: make([]*Linear[B], cfg.NumExperts),
		backend: backend,
	}
	for i := range s.experts {
		expert, err := NewLinear(LinearConfig{InFeatures: cfg.InFeatures, OutFeatures: cfg.OutFeatures, NoBias: cfg.NoBias}, backend)
		if err != nil {
			return nil, errors.WithMessage(err, "switch linear")
		}
		s.experts[i] = expert
	}
	return s, nil
}

// Forward computes y[i] = x[i] @ W[indices[i]].T + b[indices[i]] for x
// [N, in]. It fails with ErrInvalidConfig if len(indices) != N and with
// ErrExpertIndex for an index outside [0, NumExperts).
func (s *SwitchLinear[B]) Forward(x *tensor.Tensor[float32, B], indices []int) (*tensor.Tensor[float32, B], error) {
	in, out := s.experts[0].InFeatures(), s.experts[0].OutFeatures()
	shape := x.Shape()
	if len(shape) != 2 || shape[1] != in {
		return nil, errors.Wrapf(ErrInvalidConfig, "switch linear: expected input [N, %d], got %v", in, shape)
	}
	n := shape[0]
	if len(indices) != n {
		return nil, errors.Wrapf(ErrInvalidConfig, "switch linear: %d indices for %d examples", len(indices), n)
	}

	weights := make([]*tensor.Tensor[float32, B], n)
	var biases []*tensor.Tensor[float32, B]
	for i, idx := range indices {
		if idx < 0 || idx >= len(s.experts) {
			return nil, errors.Wrapf(ErrExpertIndex, "example %d selects expert %d of %d", i, idx, len(s.experts))
		}
		expert := s.experts[idx]
		weights[i] = expert.ResolvedWeight()
		if expert.Bias() != nil {
			biases = append(biases, expert.Bias().Tensor())
		}
	}

	// [N, 1, in] x [N, out, in]^T -> [N, 1, out]
	y := x.Reshape(n, 1, in).BatchMatMul(tensor.Stack(weights), true).Reshape(n, out)
	if biases != nil {
		y = y.Add(tensor.Stack(biases))
	}
	return y, nil
}

// SetTraining switches the layer and every expert.
func (s *SwitchLinear[B]) SetTraining(training bool) {
	s.mode.SetTraining(training)
	for _, e := range s.experts {
		e.SetTraining(training)
	}
}

// Parameters returns the parameters of every expert, prefixed with
// "experts.<i>.".
func (s *SwitchLinear[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for i, e := range s.experts {
		for _, p := range e.Parameters() {
			params = append(params, p.prefixed(fmt.Sprintf("experts.%d", i)))
		}
	}
	return params
}

// EligibleWeights returns every expert's weight, in expert order.
func (s *SwitchLinear[B]) EligibleWeights() []*Parameter[B] {
	weights := make([]*Parameter[B], len(s.experts))
	for i, e := range s.experts {
		weights[i] = e.Weight()
	}
	return weights
}

// ConfigureNoise configures noise on every expert.
func (s *SwitchLinear[B]) ConfigureNoise(std float64, opts ...NoiseOption) error {
	for i, e := range s.experts {
		if err := e.ConfigureNoise(std, opts...); err != nil {
			return errors.WithMessagef(err, "expert %d", i)
		}
	}
	return nil
}

// SampleNoise samples noise for every expert in order. On error the
// samples of all experts are dropped.
func (s *SwitchLinear[B]) SampleNoise(ctx context.Context, synchronize bool) error {
	for i, e := range s.experts {
		if err := e.SampleNoise(ctx, synchronize); err != nil {
			s.ClearNoise()
			return errors.WithMessagef(err, "expert %d", i)
		}
	}
	return nil
}

// ClearNoise drops the samples of every expert.
func (s *SwitchLinear[B]) ClearNoise() {
	for _, e := range s.experts {
		e.ClearNoise()
	}
}

// NoiseActive reports whether every expert applies noise samples. An
// expert cleared on its own makes the layer inactive.
func (s *SwitchLinear[B]) NoiseActive() bool {
	for _, e := range s.experts {
		if !e.NoiseActive() {
			return false
		}
	}
	return true
}

// Noise returns the noise state of the first expert. Configuration is
// shared, but samples are per expert: use NoiseActive or Expert(i).Noise()
// to inspect them.
func (s *SwitchLinear[B]) Noise() *NoiseState[B] {
	return s.experts[0].Noise()
}

// Expert returns expert i.
func (s *SwitchLinear[B]) Expert(i int) *Linear[B] {
	return s.experts[i]
}

// NumExperts returns the number of experts.
func (s *SwitchLinear[B]) NumExperts() int {
	return len(s.experts)
}

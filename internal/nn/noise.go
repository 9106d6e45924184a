package nn

import (
	"context"
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/synapse/internal/distributed"
	"github.com/born-ml/synapse/internal/tensor"
)

// NoiseEligible is implemented by layers that take variational weight
// noise. EligibleWeights lists the perturbed weights in sampling order;
// biases are never eligible.
type NoiseEligible[B tensor.Backend] interface {
	EligibleWeights() []*Parameter[B]
}

// NoisyLayer is a layer with the variational noise API.
type NoisyLayer[B tensor.Backend] interface {
	Layer[B]
	NoiseEligible[B]

	// ConfigureNoise sets the noise standard deviation and, optionally, the
	// collective used by synchronized sampling. It does not sample.
	ConfigureNoise(std float64, opts ...NoiseOption) error

	// SampleNoise draws one standard-normal tensor per eligible weight,
	// replacing previous samples. With synchronize set, every sample is
	// broadcast from the root rank and the call blocks until all
	// participants have it; all participants must call it in the same order.
	SampleNoise(ctx context.Context, synchronize bool) error

	// ClearNoise drops the current samples.
	ClearNoise()

	// NoiseActive reports whether forward passes in training mode perturb
	// the weights.
	NoiseActive() bool

	// Noise exposes the layer's noise state.
	Noise() *NoiseState[B]
}

// NoiseOption configures ConfigureNoise.
type NoiseOption func(*noiseOptions)

type noiseOptions struct {
	collective distributed.Collective
	root       int
}

// WithCollective sets the collective that synchronized sampling broadcasts
// through. Without it, synchronized sampling uses distributed.Local.
func WithCollective(c distributed.Collective) NoiseOption {
	return func(o *noiseOptions) {
		o.collective = c
	}
}

// WithRoot sets the rank whose samples are broadcast. Defaults to 0.
func WithRoot(rank int) NoiseOption {
	return func(o *noiseOptions) {
		o.root = rank
	}
}

// NoiseState is the variational noise state owned by one layer: the
// configured standard deviation and the current samples, one per eligible
// weight. Samples are not parameters and never appear in StateDict.
type NoiseState[B tensor.Backend] struct {
	configured bool
	std        float64
	opts       noiseOptions
	samples    []*tensor.Tensor[float32, B]
}

// Configure sets the standard deviation and options. Calling it again
// replaces both; existing samples are kept.
func (n *NoiseState[B]) Configure(std float64, opts ...NoiseOption) error {
	if math.IsNaN(std) || math.IsInf(std, 0) || std < 0 {
		return errors.Wrapf(ErrInvalidConfig, "noise std %g", std)
	}
	o := noiseOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	size := distributed.Local{}.Size()
	if o.collective != nil {
		size = o.collective.Size()
	}
	if o.root < 0 || o.root >= size {
		return errors.Wrapf(distributed.ErrInvalidRank, "noise root %d for %d participants", o.root, size)
	}
	n.configured = true
	n.std = std
	n.opts = o
	return nil
}

// Std returns the configured standard deviation and whether noise was
// configured at all.
func (n *NoiseState[B]) Std() (float64, bool) {
	return n.std, n.configured
}

// Samples returns the current samples, nil if none were drawn.
func (n *NoiseState[B]) Samples() []*tensor.Tensor[float32, B] {
	return n.samples
}

// Active reports whether forward passes in training mode perturb weights.
func (n *NoiseState[B]) Active() bool {
	return n.configured && n.samples != nil
}

// Clear drops the current samples.
func (n *NoiseState[B]) Clear() {
	n.samples = nil
}

// Sample draws one standard-normal tensor per weight, shaped like the
// weight, and stores them in order. With synchronize set, each sample is
// replaced by the root's sample through the collective. On error no
// samples are kept.
func (n *NoiseState[B]) Sample(ctx context.Context, weights []*Parameter[B], synchronize bool) error {
	if !n.configured {
		return ErrNoiseNotConfigured
	}
	collective := n.opts.collective
	if collective == nil {
		collective = distributed.Local{}
	}

	n.samples = nil
	samples := make([]*tensor.Tensor[float32, B], len(weights))
	for i, w := range weights {
		wt := w.Tensor()
		b := wt.Backend()
		eps := tensor.New[float32, B](b.RandNormal(wt.Shape(), wt.DType()), b)
		if synchronize {
			raw, err := collective.Broadcast(ctx, eps.Raw(), n.opts.root)
			if err != nil {
				return errors.WithMessagef(err, "broadcasting noise for %s", w.Name())
			}
			eps = tensor.New[float32, B](raw, b)
		}
		samples[i] = eps
	}
	n.samples = samples
	if klog.V(1).Enabled() {
		klog.Infof("sampled noise for %d weights (std=%g, synchronized=%v, rank %d/%d)",
			len(weights), n.std, synchronize, collective.Rank(), collective.Size())
	}
	return nil
}

// resolve returns the weight a forward pass uses: w + std*samples[i] when
// samples exist and the layer is training, w itself otherwise.
func (n *NoiseState[B]) resolve(i int, w *Parameter[B], training bool) *tensor.Tensor[float32, B] {
	if !training || !n.Active() {
		return w.Tensor()
	}
	if i >= len(n.samples) {
		Panicf("noise: no sample for weight %d (%s), have %d", i, w.Name(), len(n.samples))
	}
	return perturb(w.Tensor(), n.samples[i], n.std)
}

// perturb computes w + std*eps.
func perturb[B tensor.Backend](w, eps *tensor.Tensor[float32, B], std float64) *tensor.Tensor[float32, B] {
	if !w.Raw().SameLayout(eps.Raw()) {
		Panicf("noise: sample %s%v does not match weight %s%v", eps.DType(), eps.Shape(), w.DType(), w.Shape())
	}
	return w.Add(eps.MulScalar(std))
}

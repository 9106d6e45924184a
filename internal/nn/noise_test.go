package nn

import (
	"context"
	"math"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/synapse/internal/backend/cpu"
	"github.com/born-ml/synapse/internal/distributed"
	"github.com/born-ml/synapse/internal/tensor"
)

func TestNoise_Configure(t *testing.T) {
	backend := cpu.New()
	l := must.M1(NewLinear(LinearConfig{InFeatures: 3, OutFeatures: 2}, backend))

	_, ok := l.Noise().Std()
	assert.False(t, ok)
	assert.ErrorIs(t, l.SampleNoise(context.Background(), false), ErrNoiseNotConfigured)

	assert.ErrorIs(t, l.ConfigureNoise(-0.1), ErrInvalidConfig)
	assert.ErrorIs(t, l.ConfigureNoise(math.NaN()), ErrInvalidConfig)

	g := must.M1(distributed.NewGroup(2))
	m := must.M1(g.Member(0))
	assert.ErrorIs(t, l.ConfigureNoise(0.1, WithCollective(m), WithRoot(2)), distributed.ErrInvalidRank)
	assert.ErrorIs(t, l.ConfigureNoise(0.1, WithRoot(1)), distributed.ErrInvalidRank, "local run has one participant")
	assert.ErrorIs(t, l.ConfigureNoise(0.1, WithRoot(-1)), distributed.ErrInvalidRank)
	require.NoError(t, l.ConfigureNoise(0.1, WithRoot(0)))

	require.NoError(t, l.ConfigureNoise(0.1))
	require.NoError(t, l.ConfigureNoise(0.1))
	std, ok := l.Noise().Std()
	assert.True(t, ok)
	assert.Equal(t, 0.1, std)
	assert.Nil(t, l.Noise().Samples(), "configuring does not sample")
}

func TestNoise_SamplesMatchWeights(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(1))
	l := must.M1(NewLSTM(LSTMConfig{InputSize: 3, HiddenSize: 2, NumLayers: 2, Bidirectional: true}, backend))
	require.NoError(t, l.ConfigureNoise(0.5))
	require.NoError(t, l.SampleNoise(context.Background(), false))

	eligible := l.EligibleWeights()
	samples := l.Noise().Samples()
	require.Len(t, samples, len(eligible))
	for i, w := range eligible {
		assert.True(t, w.Tensor().Raw().SameLayout(samples[i].Raw()), w.Name())
	}

	first := samples[0].Clone()
	require.NoError(t, l.SampleNoise(context.Background(), false))
	assert.False(t, first.Raw().BitEqual(l.Noise().Samples()[0].Raw()), "resampling replaces samples")

	l.ClearNoise()
	assert.Nil(t, l.Noise().Samples())
	assert.False(t, l.Noise().Active())
}

func TestNoise_NotInStateDict(t *testing.T) {
	backend := cpu.New()
	l := must.M1(NewLinear(LinearConfig{InFeatures: 3, OutFeatures: 2}, backend))
	require.NoError(t, l.ConfigureNoise(1))
	require.NoError(t, l.SampleNoise(context.Background(), false))

	state := StateDict[Backend](l)
	assert.Len(t, state, 2)
	assert.Contains(t, state, "weight")
	assert.Contains(t, state, "bias")
	assert.Len(t, l.Parameters(), 2)
}

// noisyCase builds a layer and runs it on a fixed input.
type noisyCase struct {
	name    string
	build   func(backend Backend) NoisyLayer[Backend]
	forward func(l NoisyLayer[Backend]) *Tensor
}

func noisyCases(t *testing.T) []noisyCase {
	inputs := cpu.New(cpu.WithSeed(99))
	x := tensor.Randn[float32](tensor.Shape{4, 3}, inputs)
	seq := tensor.Randn[float32](tensor.Shape{2, 5, 3}, inputs)
	indices, err := tensor.FromSlice([]int32{0, 4, 2, 2, 1}, tensor.Shape{5}, inputs)
	require.NoError(t, err)

	return []noisyCase{
		{
			name: "Linear",
			build: func(b Backend) NoisyLayer[Backend] {
				return must.M1(NewLinear(LinearConfig{InFeatures: 3, OutFeatures: 5}, b))
			},
			forward: func(l NoisyLayer[Backend]) *Tensor { return l.(*Linear[Backend]).Forward(x) },
		},
		{
			name: "LSTM",
			build: func(b Backend) NoisyLayer[Backend] {
				return must.M1(NewLSTM(LSTMConfig{InputSize: 3, HiddenSize: 4, NumLayers: 2, BatchFirst: true, Bidirectional: true}, b))
			},
			forward: func(l NoisyLayer[Backend]) *Tensor { return l.(*LSTM[Backend]).Forward(seq) },
		},
		{
			name: "LSTMNoBias",
			build: func(b Backend) NoisyLayer[Backend] {
				return must.M1(NewLSTM(LSTMConfig{InputSize: 3, HiddenSize: 2, NumLayers: 3, BatchFirst: true, NoBias: true}, b))
			},
			forward: func(l NoisyLayer[Backend]) *Tensor { return l.(*LSTM[Backend]).Forward(seq) },
		},
		{
			name: "Embedding",
			build: func(b Backend) NoisyLayer[Backend] {
				return must.M1(NewEmbedding(EmbeddingConfig{NumEmbeddings: 5, EmbeddingDim: 3}, b))
			},
			forward: func(l NoisyLayer[Backend]) *Tensor { return l.(*Embedding[Backend]).Forward(indices) },
		},
		{
			name: "SwitchLinear",
			build: func(b Backend) NoisyLayer[Backend] {
				return must.M1(NewSwitchLinear(SwitchLinearConfig{NumExperts: 3, InFeatures: 3, OutFeatures: 2}, b))
			},
			forward: func(l NoisyLayer[Backend]) *Tensor {
				return must.M1(l.(*SwitchLinear[Backend]).Forward(x, []int{2, 0, 2, 1}))
			},
		},
	}
}

// TestNoise_EvalIgnoresNoise checks that evaluation output is the same
// whether or not noise was ever sampled.
func TestNoise_EvalIgnoresNoise(t *testing.T) {
	for _, tc := range noisyCases(t) {
		t.Run(tc.name, func(t *testing.T) {
			l := tc.build(cpu.New(cpu.WithSeed(1)))
			l.SetTraining(false)
			before := tc.forward(l)

			require.NoError(t, l.ConfigureNoise(0.7))
			require.NoError(t, l.SampleNoise(context.Background(), false))
			sameTensor(t, before, tc.forward(l))

			// Training without samples is not perturbed either.
			l.ClearNoise()
			l.SetTraining(true)
			sameTensor(t, before, tc.forward(l))
		})
	}
}

// TestNoise_TrainingIsWeightSubstitution checks that a training forward
// pass with noise equals a clean layer loaded with w + std*ε.
func TestNoise_TrainingIsWeightSubstitution(t *testing.T) {
	const std = 0.3
	for _, tc := range noisyCases(t) {
		t.Run(tc.name, func(t *testing.T) {
			noisy := tc.build(cpu.New(cpu.WithSeed(2)))
			plain := tc.forward(noisy)

			require.NoError(t, noisy.ConfigureNoise(std))
			require.NoError(t, noisy.SampleNoise(context.Background(), false))
			got := tc.forward(noisy)
			assert.False(t, plain.Raw().BitEqual(got.Raw()), "noise must change the training output")

			// Substitute w + std*ε for every eligible weight; biases are
			// copied unchanged.
			state := make(map[string]*tensor.RawTensor)
			for _, p := range noisy.Parameters() {
				state[p.Name()] = p.Tensor().Raw()
			}
			samples := allSamples(noisy)
			require.Len(t, samples, len(noisy.EligibleWeights()))
			for i, w := range noisy.EligibleWeights() {
				name := paramName(noisy, w)
				state[name] = w.Tensor().Add(samples[i].MulScalar(std)).Raw()
			}

			substituted := tc.build(cpu.New(cpu.WithSeed(3)))
			require.NoError(t, LoadStateDict[Backend](substituted, state))
			sameTensor(t, tc.forward(substituted), got)
		})
	}
}

// allSamples collects samples in EligibleWeights order.
func allSamples(l NoisyLayer[Backend]) []*Tensor {
	if s, ok := l.(*SwitchLinear[Backend]); ok {
		var samples []*Tensor
		for i := 0; i < s.NumExperts(); i++ {
			samples = append(samples, s.Expert(i).Noise().Samples()...)
		}
		return samples
	}
	return l.Noise().Samples()
}

// paramName finds the (possibly prefixed) name of w in l.Parameters().
func paramName(l NoisyLayer[Backend], w *Parameter[Backend]) string {
	for _, p := range l.Parameters() {
		if p.Tensor() == w.Tensor() {
			return p.Name()
		}
	}
	return ""
}

func TestLSTM_NoiseAlignment(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(4))
	l := must.M1(NewLSTM(LSTMConfig{InputSize: 2, HiddenSize: 3, NumLayers: 2, Bidirectional: true}, backend))

	names := make([]string, 0)
	for _, w := range l.EligibleWeights() {
		names = append(names, w.Name())
	}
	assert.Equal(t, []string{
		"weight_ih_l0", "weight_hh_l0", "weight_ih_l0_reverse", "weight_hh_l0_reverse",
		"weight_ih_l1", "weight_hh_l1", "weight_ih_l1_reverse", "weight_hh_l1_reverse",
	}, names)
	assert.Len(t, l.Parameters(), 16)

	require.NoError(t, l.ConfigureNoise(0.25))
	require.NoError(t, l.SampleNoise(context.Background(), false))
	samples := l.Noise().Samples()
	flat := l.FlatWeights()
	params := l.Parameters()
	require.Len(t, flat, len(params))
	for i, p := range params {
		group, pos := i/4, i%4
		if pos >= 2 {
			assert.Same(t, p.Tensor().Raw(), flat[i], "bias %s passes through in place", p.Name())
			continue
		}
		want := p.Tensor().Add(samples[2*group+pos].MulScalar(0.25))
		assert.True(t, want.Raw().BitEqual(flat[i]), p.Name())
	}

	l.SetTraining(false)
	for i, p := range l.Parameters() {
		assert.Same(t, p.Tensor().Raw(), l.FlatWeights()[i])
	}
}

// TestNoise_SynchronizedSampling runs two participants whose backends are
// seeded differently and checks that synchronized samples are identical.
func TestNoise_SynchronizedSampling(t *testing.T) {
	for _, tc := range noisyCases(t) {
		t.Run(tc.name, func(t *testing.T) {
			const size = 2
			g := must.M1(distributed.NewGroup(size))
			layers := make([]NoisyLayer[Backend], size)
			for rank := range layers {
				layers[rank] = tc.build(cpu.New(cpu.WithSeed(uint64(10 + rank))))
			}

			err := distributed.Run(context.Background(), g, func(ctx context.Context, m *distributed.Member) error {
				l := layers[m.Rank()]
				if err := l.ConfigureNoise(0.1, WithCollective(m)); err != nil {
					return err
				}
				return l.SampleNoise(ctx, true)
			})
			require.NoError(t, err)

			a, b := allSamples(layers[0]), allSamples(layers[1])
			require.Len(t, b, len(a))
			for i := range a {
				assert.True(t, a[i].Raw().BitEqual(b[i].Raw()), "sample %d differs", i)
			}

			// Without synchronization the differently seeded participants disagree.
			for _, l := range layers {
				require.NoError(t, l.SampleNoise(context.Background(), false))
			}
			assert.False(t, allSamples(layers[0])[0].Raw().BitEqual(allSamples(layers[1])[0].Raw()))
		})
	}
}

func TestNoise_SynchronizedSamplingFromRoot(t *testing.T) {
	g := must.M1(distributed.NewGroup(3))
	layers := make([]*Linear[Backend], 3)
	for rank := range layers {
		layers[rank] = must.M1(NewLinear(LinearConfig{InFeatures: 4, OutFeatures: 4}, cpu.New(cpu.WithSeed(uint64(rank)))))
	}
	// Rank 2's own draw, reproduced from an identically seeded backend.
	ref := must.M1(NewLinear(LinearConfig{InFeatures: 4, OutFeatures: 4}, cpu.New(cpu.WithSeed(2))))
	require.NoError(t, ref.ConfigureNoise(1))
	require.NoError(t, ref.SampleNoise(context.Background(), false))

	err := distributed.Run(context.Background(), g, func(ctx context.Context, m *distributed.Member) error {
		l := layers[m.Rank()]
		if err := l.ConfigureNoise(1, WithCollective(m), WithRoot(2)); err != nil {
			return err
		}
		return l.SampleNoise(ctx, true)
	})
	require.NoError(t, err)
	for rank, l := range layers {
		assert.True(t, ref.Noise().Samples()[0].Raw().BitEqual(l.Noise().Samples()[0].Raw()), "rank %d", rank)
	}
}

func TestNoise_SynchronizedSamplingMismatch(t *testing.T) {
	g := must.M1(distributed.NewGroup(2))
	layers := []*Linear[Backend]{
		must.M1(NewLinear(LinearConfig{InFeatures: 4, OutFeatures: 4}, cpu.New())),
		must.M1(NewLinear(LinearConfig{InFeatures: 4, OutFeatures: 5}, cpu.New())),
	}
	err := distributed.Run(context.Background(), g, func(ctx context.Context, m *distributed.Member) error {
		l := layers[m.Rank()]
		if err := l.ConfigureNoise(1, WithCollective(m)); err != nil {
			return err
		}
		return l.SampleNoise(ctx, true)
	})
	assert.ErrorIs(t, err, distributed.ErrDesynchronized)
	assert.Nil(t, layers[1].Noise().Samples(), "failed sampling keeps no samples")
}

func TestNoise_LocalSynchronize(t *testing.T) {
	l := must.M1(NewEmbedding(EmbeddingConfig{NumEmbeddings: 4, EmbeddingDim: 2}, cpu.New()))
	require.NoError(t, l.ConfigureNoise(0.2))
	require.NoError(t, l.SampleNoise(context.Background(), true))
	assert.Len(t, l.Noise().Samples(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.SampleNoise(ctx, true), context.Canceled)
	assert.Nil(t, l.Noise().Samples())
}

func TestPerturb_ShapeMismatchPanics(t *testing.T) {
	backend := cpu.New()
	w := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
	eps := tensor.Zeros[float32](tensor.Shape{3, 2}, backend)
	assert.Panics(t, func() { perturb(w, eps, 1) })
}

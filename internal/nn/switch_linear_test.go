package nn

import (
	"context"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/synapse/internal/backend/cpu"
	"github.com/born-ml/synapse/internal/tensor"
)

// row returns example i of x as a [1, in] tensor.
func row(x *Tensor, i int) *Tensor {
	in := x.Shape()[1]
	data := x.Data()[i*in : (i+1)*in]
	r, err := tensor.FromSlice(append([]float32(nil), data...), tensor.Shape{1, in}, x.Backend())
	if err != nil {
		panic(err)
	}
	return r
}

func TestSwitchLinear_MatchesSelectedExpert(t *testing.T) {
	for _, training := range []bool{false, true} {
		for _, noBias := range []bool{false, true} {
			backend := cpu.New(cpu.WithSeed(5))
			s := must.M1(NewSwitchLinear(SwitchLinearConfig{NumExperts: 4, InFeatures: 7, OutFeatures: 3, NoBias: noBias}, backend))
			for i := 0; i < s.NumExperts(); i++ {
				if !noBias {
					b := tensor.Randn[float32](tensor.Shape{3}, backend)
					copy(s.Expert(i).Bias().Tensor().Data(), b.Data())
				}
			}
			require.NoError(t, s.ConfigureNoise(0.5))
			require.NoError(t, s.SampleNoise(context.Background(), false))
			s.SetTraining(training)

			x := tensor.Randn[float32](tensor.Shape{6, 7}, backend)
			indices := []int{3, 0, 0, 2, 1, 3}
			y := must.M1(s.Forward(x, indices))
			require.Equal(t, tensor.Shape{6, 3}, y.Shape())

			for i, idx := range indices {
				expert := s.Expert(idx)
				assert.Equal(t, training, expert.Training())
				want := expert.Forward(row(x, i))
				sameTensor(t, want, row(y, i), "training=%v noBias=%v example %d", training, noBias, i)
			}
		}
	}
}

func TestSwitchLinear_Errors(t *testing.T) {
	backend := cpu.New()
	_, err := NewSwitchLinear(SwitchLinearConfig{NumExperts: 0, InFeatures: 2, OutFeatures: 2}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	s := must.M1(NewSwitchLinear(SwitchLinearConfig{NumExperts: 2, InFeatures: 2, OutFeatures: 2}, backend))
	x := tensor.Zeros[float32](tensor.Shape{3, 2}, backend)

	_, err = s.Forward(x, []int{0, 1, 2})
	assert.ErrorIs(t, err, ErrExpertIndex)
	_, err = s.Forward(x, []int{0, -1, 1})
	assert.ErrorIs(t, err, ErrExpertIndex)
	_, err = s.Forward(x, []int{0, 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = s.Forward(tensor.Zeros[float32](tensor.Shape{3, 5}, backend), []int{0, 1, 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSwitchLinear_Parameters(t *testing.T) {
	backend := cpu.New()
	s := must.M1(NewSwitchLinear(SwitchLinearConfig{NumExperts: 2, InFeatures: 3, OutFeatures: 2}, backend))
	names := make([]string, 0)
	for _, p := range s.Parameters() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"experts.0.weight", "experts.0.bias", "experts.1.weight", "experts.1.bias"}, names)
	assert.Equal(t, 2*(3*2+2), NumParameters[Backend](s))
	assert.Len(t, s.EligibleWeights(), 2)

	noBias := must.M1(NewSwitchLinear(SwitchLinearConfig{NumExperts: 3, InFeatures: 3, OutFeatures: 2, NoBias: true}, backend))
	assert.Len(t, noBias.Parameters(), 3)
}

func TestSwitchLinear_NoiseFansOut(t *testing.T) {
	s := must.M1(NewSwitchLinear(SwitchLinearConfig{NumExperts: 3, InFeatures: 3, OutFeatures: 2}, cpu.New()))
	assert.ErrorIs(t, s.SampleNoise(context.Background(), false), ErrNoiseNotConfigured)
	for i := 0; i < s.NumExperts(); i++ {
		assert.Nil(t, s.Expert(i).Noise().Samples())
	}

	require.NoError(t, s.ConfigureNoise(0.1))
	require.NoError(t, s.SampleNoise(context.Background(), false))
	for i := 0; i < s.NumExperts(); i++ {
		std, ok := s.Expert(i).Noise().Std()
		assert.True(t, ok)
		assert.Equal(t, 0.1, std)
		assert.Len(t, s.Expert(i).Noise().Samples(), 1)
	}

	s.ClearNoise()
	for i := 0; i < s.NumExperts(); i++ {
		assert.False(t, s.Expert(i).Noise().Active())
	}
}

func TestSwitchLinear_NoiseActiveNeedsEveryExpert(t *testing.T) {
	s := must.M1(NewSwitchLinear(SwitchLinearConfig{NumExperts: 3, InFeatures: 3, OutFeatures: 2}, cpu.New()))
	assert.False(t, s.NoiseActive())

	require.NoError(t, s.ConfigureNoise(0.1))
	require.NoError(t, s.SampleNoise(context.Background(), false))
	assert.True(t, s.NoiseActive())

	s.Expert(1).ClearNoise()
	assert.False(t, s.NoiseActive())
	assert.True(t, s.Noise().Active(), "first expert keeps its samples")
}

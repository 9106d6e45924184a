package nn

import (
	"math"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/synapse/internal/backend/cpu"
	"github.com/born-ml/synapse/internal/tensor"
)

func TestLinear(t *testing.T) {
	backend := cpu.New()
	l := must.M1(NewLinear(LinearConfig{InFeatures: 2, OutFeatures: 3}, backend))
	setParam(t, l.Weight(), 1, 2, 3, 4, 5, 6)
	setParam(t, l.Bias(), 1, 1, 1)

	y := l.Forward(fromSlice(t, backend, []float32{1, 1, 0, 1}, 2, 2))
	assert.Equal(t, tensor.Shape{2, 3}, y.Shape())
	assert.Equal(t, []float32{4, 8, 12, 3, 5, 7}, y.Data())

	y = l.Forward(tensor.Ones[float32](tensor.Shape{4, 5, 2}, backend))
	assert.Equal(t, tensor.Shape{4, 5, 3}, y.Shape())

	assert.Panics(t, func() { l.Forward(tensor.Ones[float32](tensor.Shape{2, 3}, backend)) })

	noBias := must.M1(NewLinear(LinearConfig{InFeatures: 2, OutFeatures: 3, NoBias: true}, backend))
	assert.Len(t, noBias.Parameters(), 1)
	assert.Nil(t, noBias.Bias())

	_, err := NewLinear(LinearConfig{InFeatures: 0, OutFeatures: 3}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStateDict(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(7))
	a := must.M1(NewLinear(LinearConfig{InFeatures: 3, OutFeatures: 2}, backend))
	b := must.M1(NewLinear(LinearConfig{InFeatures: 3, OutFeatures: 2}, backend))
	require.NoError(t, LoadStateDict[Backend](b, StateDict[Backend](a)))
	sameTensor(t, a.Weight().Tensor(), b.Weight().Tensor())
	assert.NotSame(t, a.Weight().Tensor().Raw(), b.Weight().Tensor().Raw())

	other := must.M1(NewLinear(LinearConfig{InFeatures: 4, OutFeatures: 2}, backend))
	assert.Error(t, LoadStateDict[Backend](b, StateDict[Backend](other)))
	assert.Error(t, LoadStateDict[Backend](b, map[string]*tensor.RawTensor{"weight": a.Weight().Tensor().Raw()}))
	assert.Equal(t, 8, NumParameters[Backend](a))
}

func TestTrainingMode(t *testing.T) {
	backend := cpu.New()
	l := must.M1(NewLinear(LinearConfig{InFeatures: 2, OutFeatures: 2}, backend))
	assert.True(t, l.Training(), "layers start in training mode")
	l.SetTraining(false)
	assert.False(t, l.Training())
}

func TestLSTM_SingleStep(t *testing.T) {
	backend := cpu.New()
	l := must.M1(NewLSTM(LSTMConfig{InputSize: 1, HiddenSize: 1}, backend))
	params := l.Parameters()
	require.Len(t, params, 4)
	setParam(t, params[0], 0, 0, 0, 0) // weight_ih_l0, gates i, f, g, o
	setParam(t, params[1], 0, 0, 0, 0) // weight_hh_l0
	setParam(t, params[2], 0, 0, 1, 0) // bias_ih_l0
	setParam(t, params[3], 0, 0, 0, 0) // bias_hh_l0

	out, state := l.ForwardState(fromSlice(t, backend, []float32{3}, 1, 1, 1), nil)
	c := 0.5 * math.Tanh(1)
	h := 0.5 * math.Tanh(c)
	assert.InDelta(t, h, out.At(0, 0, 0), 1e-6)
	assert.InDelta(t, h, state.H.At(0, 0, 0), 1e-6)
	assert.InDelta(t, c, state.C.At(0, 0, 0), 1e-6)
}

func TestLSTM_Shapes(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(3))
	l := must.M1(NewLSTM(LSTMConfig{InputSize: 3, HiddenSize: 4, NumLayers: 2, BatchFirst: true, Bidirectional: true}, backend))
	assert.Equal(t, 4, l.HiddenSize())

	x := tensor.Randn[float32](tensor.Shape{2, 5, 3}, backend)
	out, state := l.ForwardState(x, nil)
	assert.Equal(t, tensor.Shape{2, 5, 8}, out.Shape())
	assert.Equal(t, tensor.Shape{4, 2, 4}, state.H.Shape())
	assert.Equal(t, tensor.Shape{4, 2, 4}, state.C.Shape())

	// Feeding the final state back continues the sequence.
	next, _ := l.ForwardState(x, state)
	assert.Equal(t, out.Shape(), next.Shape())
	assert.False(t, out.Raw().BitEqual(next.Raw()))

	names := make([]string, 0)
	for _, p := range l.Parameters()[:4] {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"weight_ih_l0", "weight_hh_l0", "bias_ih_l0", "bias_hh_l0"}, names)
	assert.Equal(t, tensor.Shape{16, 8}, l.Parameters()[8].Tensor().Shape(), "second layer sees both directions")

	assert.Panics(t, func() { l.Forward(tensor.Randn[float32](tensor.Shape{2, 5, 4}, backend)) })

	_, err := NewLSTM(LSTMConfig{InputSize: 3}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEmbedding(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(11))
	pad := -1
	e := must.M1(NewEmbedding(EmbeddingConfig{NumEmbeddings: 4, EmbeddingDim: 3, PaddingIdx: &pad}, backend))
	assert.Equal(t, 3, e.PaddingIdx())
	assert.Equal(t, 4, e.NumEmbeddings())
	assert.Equal(t, 3, e.EmbeddingDim())

	indices := must.M1(tensor.FromSlice([]int32{1, 3, 0, 3, 3, 2}, tensor.Shape{2, 3}, backend))
	y := e.Forward(indices)
	require.Equal(t, tensor.Shape{2, 3, 3}, y.Shape())
	w := e.Weight().Tensor()
	for d := 0; d < 3; d++ {
		assert.Equal(t, float32(0), y.At(0, 1, d), "padding row starts at zero")
		assert.Equal(t, w.At(1, d), y.At(0, 0, d))
		assert.Equal(t, w.At(2, d), y.At(1, 2, d))
	}

	plain := must.M1(NewEmbedding(EmbeddingConfig{NumEmbeddings: 4, EmbeddingDim: 3}, backend))
	assert.Equal(t, -1, plain.PaddingIdx())

	bad := 4
	_, err := NewEmbedding(EmbeddingConfig{NumEmbeddings: 4, EmbeddingDim: 3, PaddingIdx: &bad}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDropout(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(13))
	d := must.M1(NewDropout(0.5, backend))
	x := tensor.Ones[float32](tensor.Shape{1000}, backend)

	y := d.Forward(x)
	zeros := 0
	for _, v := range y.Data() {
		if v == 0 {
			zeros++
		} else {
			assert.InDelta(t, 2, v, 1e-6)
		}
	}
	assert.InDelta(t, 500, zeros, 80)

	d.SetTraining(false)
	assert.Same(t, x, d.Forward(x))

	for _, p := range []float64{-0.1, 1, math.NaN()} {
		_, err := NewDropout(p, backend)
		assert.ErrorIs(t, err, ErrInvalidConfig, "p=%g", p)
	}
}

func TestShapeLayers(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(17))
	x := tensor.Randn[float32](tensor.Shape{2, 3, 4}, backend)

	assert.Equal(t, tensor.Shape{2, 12}, NewFlatten[Backend](1, -1).Forward(x).Shape())
	assert.Equal(t, tensor.Shape{24}, NewFlatten[Backend](0, 2).Forward(x).Shape())
	assert.Panics(t, func() { NewFlatten[Backend](2, 1).Forward(x) })

	tr := NewTranspose[Backend](1, -1).Forward(x)
	assert.Equal(t, tensor.Shape{2, 4, 3}, tr.Shape())
	assert.Equal(t, x.At(1, 2, 3), tr.At(1, 3, 2))

	perm := must.M1(NewPermute[Backend]([]int{2, 0, 1})).Forward(x)
	assert.Equal(t, tensor.Shape{4, 2, 3}, perm.Shape())
	assert.Equal(t, x.At(1, 2, 3), perm.At(3, 1, 2))
	_, err := NewPermute[Backend]([]int{0, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	r := must.M1(NewReshape[Backend]([]int{-1, 2}, false))
	assert.Equal(t, tensor.Shape{2, 6, 2}, r.Forward(x).Shape())
	r = must.M1(NewReshape[Backend]([]int{4, 6}, true))
	assert.Equal(t, tensor.Shape{4, 6}, r.Forward(x).Shape())
	_, err = NewReshape[Backend]([]int{-1, -1}, false)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	u := NewUnsqueeze[Backend](1)
	assert.Equal(t, tensor.Shape{2, 1, 3, 4}, u.Forward(x).Shape())
	assert.Nil(t, u.Parameters())
}

func TestGlobalAvgPool_Masked(t *testing.T) {
	backend := cpu.New()
	x := fromSlice(t, backend, []float32{
		1, 2, 3, 4, 100, 100,
		5, 6, 100, 100, 100, 100,
	}, 2, 3, 2)
	mask := fromSlice(t, backend, []float32{1, 1, 0, 1, 0, 0}, 2, 3, 1)

	pool := NewGlobalAvgPool1D[Backend](false)
	y := pool.ForwardMasked(x, mask)
	assert.Equal(t, tensor.Shape{2, 2}, y.Shape())
	assert.Equal(t, []float32{2, 3, 5, 6}, y.Data())

	kept := NewGlobalAvgPool1D[Backend](true).ForwardMasked(x, mask)
	assert.Equal(t, tensor.Shape{2, 1, 2}, kept.Shape())

	// Without a mask every position counts.
	plain := pool.ForwardMasked(x, nil)
	assert.InDelta(t, (1+3+100)/3.0, plain.At(0, 0), 1e-4)

	assert.Panics(t, func() { pool.ForwardMasked(x, fromSlice(t, backend, []float32{1, 1, 0}, 1, 3)) })
}

func TestGlobalAvgPool_MaskedMatchesUnpadded(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(19))
	x := tensor.Randn[float32](tensor.Shape{1, 2, 3, 4}, backend)
	pool := NewGlobalAvgPool2D[Backend](false)
	ones := tensor.Ones[float32](tensor.Shape{1, 1, 3, 4}, backend)
	want := pool.Forward(x)
	got := pool.ForwardMasked(x, ones)
	for c := 0; c < 2; c++ {
		assert.InDelta(t, want.At(0, c), got.At(0, c), 1e-5)
	}

	pool3 := NewGlobalAvgPool3D[Backend](true)
	assert.Equal(t, tensor.Shape{1, 2, 1, 1, 1}, pool3.Forward(x.Unsqueeze(2)).Shape())
}

func TestGlobalMaxPool2D(t *testing.T) {
	backend := cpu.New()
	x := fromSlice(t, backend, []float32{1, 9, 3, 4, -1, -2, -8, -3}, 1, 2, 2, 2)
	y := NewGlobalMaxPool2D[Backend](false).Forward(x)
	assert.Equal(t, tensor.Shape{1, 2}, y.Shape())
	assert.Equal(t, []float32{9, -1}, y.Data())
}

func TestMaxPool(t *testing.T) {
	backend := cpu.New()
	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i)
	}
	x := fromSlice(t, backend, data, 1, 1, 4, 4)

	p := must.M1(NewMaxPool2D(PoolConfig{KernelSize: []int{2}}, backend))
	y := p.Forward(x)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, y.Shape())
	assert.Equal(t, []float32{5, 7, 13, 15}, y.Data())

	p1 := must.M1(NewMaxPool1D(PoolConfig{KernelSize: []int{3}, Stride: []int{1}, Padding: []int{1}}, backend))
	assert.Equal(t, tensor.Shape{1, 4, 4}, p1.Forward(x.Reshape(1, 4, 4)).Shape())

	p3 := must.M1(NewMaxPool3D(PoolConfig{KernelSize: []int{2}}, backend))
	assert.Equal(t, tensor.Shape{1, 1, 1, 1, 2}, p3.Forward(x.Reshape(1, 1, 2, 2, 4)).Shape())
	assert.Panics(t, func() { p3.Forward(x) })

	_, err := NewMaxPool2D(PoolConfig{KernelSize: []int{2}, Padding: []int{2}}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewMaxPool2D(PoolConfig{}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestUpsample3D(t *testing.T) {
	backend := cpu.New()
	u := must.M1(NewUpsample3D([]int{1, 2, 3}, backend))
	assert.Equal(t, []int{1, 2, 3}, u.ScaleFactor())

	y := u.Forward(fromSlice(t, backend, []float32{1, 2}, 1, 1, 1, 1, 2))
	assert.Equal(t, tensor.Shape{1, 1, 1, 2, 6}, y.Shape())
	assert.Equal(t, []float32{1, 1, 1, 2, 2, 2, 1, 1, 1, 2, 2, 2}, y.Data())

	uniform := must.M1(NewUpsample3D([]int{2}, backend))
	assert.Equal(t, []int{2, 2, 2}, uniform.ScaleFactor())

	_, err := NewUpsample3D([]int{2, 2}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewUpsample3D([]int{0}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

package nn

import (
	"fmt"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/synapse/internal/backend/cpu"
	"github.com/born-ml/synapse/internal/tensor"
)

func TestParsePaddingMode(t *testing.T) {
	for _, m := range []PaddingMode{PaddingSame, PaddingValid, PaddingCausal} {
		got, err := ParsePaddingMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParsePaddingMode(" Causal ")
	require.NoError(t, err)
	assert.Equal(t, PaddingCausal, got)

	_, err = ParsePaddingMode("full")
	assert.ErrorIs(t, err, ErrInvalidPadding)
}

func TestConvPadding(t *testing.T) {
	tests := []struct {
		mode     PaddingMode
		kernel   []int
		dilation []int
		want     [][2]int
	}{
		{PaddingValid, []int{3}, []int{1}, [][2]int{{0, 0}}},
		{PaddingSame, []int{3}, []int{1}, [][2]int{{1, 1}}},
		{PaddingSame, []int{4}, []int{1}, [][2]int{{2, 1}}},
		{PaddingSame, []int{1}, []int{1}, [][2]int{{0, 0}}},
		{PaddingSame, []int{3}, []int{2}, [][2]int{{2, 2}}},
		{PaddingCausal, []int{3}, []int{1}, [][2]int{{2, 0}}},
		{PaddingCausal, []int{3}, []int{3}, [][2]int{{6, 0}}},
		{PaddingCausal, []int{3, 4, 2}, []int{1, 1, 1}, [][2]int{{2, 0}, {2, 1}, {1, 0}}},
	}
	for _, tt := range tests {
		got, err := ConvPadding(tt.mode, tt.kernel, tt.dilation)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s kernel=%v dilation=%v", tt.mode, tt.kernel, tt.dilation)
	}

	_, err := ConvPadding(PaddingMode(7), []int{3}, []int{1})
	assert.ErrorIs(t, err, ErrInvalidPadding)
	_, err = ConvPadding(PaddingSame, []int{3, 3}, []int{1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = ConvPadding(PaddingSame, []int{0}, []int{1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTransposePadding(t *testing.T) {
	got, err := TransposePadding(PaddingValid, []int{3, 2}, []int{2, 1}, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{4, 4}, {1, 1}}, got)
	assert.Equal(t, []int{4, 1}, TransposeNativePadding(PaddingValid, []int{3, 2}, []int{2, 1}, []int{1, 1}))

	// Strided valid runs unpadded.
	got, err = TransposePadding(PaddingValid, []int{3, 2}, []int{2, 1}, []int{2, 1})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 0}, {1, 1}}, got)
	assert.Equal(t, []int{0, 1}, TransposeNativePadding(PaddingValid, []int{3, 2}, []int{2, 1}, []int{2, 1}))
	assert.Equal(t, []int{4}, TransposeNativePadding(PaddingSame, []int{3}, []int{2}, []int{2}))

	_, err = TransposePadding(PaddingValid, []int{3}, []int{1}, []int{1, 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	got, err = TransposePadding(PaddingCausal, []int{3}, []int{1}, []int{2})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{2, 0}}, got)
}

// TestConv1D_CausalScenario: kernel [1, 1, 1] sums the current and two
// preceding positions.
func TestConv1D_CausalScenario(t *testing.T) {
	backend := cpu.New()
	conv := must.M1(NewConv1D(ConvConfig{
		InChannels: 1, OutChannels: 1, KernelSize: []int{3}, Padding: PaddingCausal,
	}, backend))
	setParam(t, conv.Weight(), 1, 1, 1)

	x := fromSlice(t, backend, []float32{0, 0, 1, 0, 0}, 1, 1, 5)
	y := conv.Forward(x)
	assert.Equal(t, tensor.Shape{1, 1, 5}, y.Shape())
	assert.Equal(t, []float32{0, 0, 1, 1, 1}, y.Data())
}

func TestConv_SameKeepsLength(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(1))
	const length = 12
	for k := 1; k <= 5; k++ {
		for d := 1; d <= 3; d++ {
			for _, mode := range []PaddingMode{PaddingSame, PaddingCausal} {
				conv := must.M1(NewConv1D(ConvConfig{
					InChannels: 2, OutChannels: 3, KernelSize: []int{k}, Dilation: []int{d}, Padding: mode,
				}, backend))
				x := tensor.Randn[float32](tensor.Shape{1, 2, length}, backend)
				y := conv.Forward(x)
				assert.Equal(t, tensor.Shape{1, 3, length}, y.Shape(), "%s k=%d d=%d", mode, k, d)
				assert.Equal(t, []int{length}, conv.OutputShape([]int{length}))
			}
		}
	}

	conv := must.M1(NewConv3D(ConvConfig{InChannels: 1, OutChannels: 2, KernelSize: []int{3, 2, 4}}, backend))
	y := conv.Forward(tensor.Randn[float32](tensor.Shape{2, 1, 4, 5, 6}, backend))
	assert.Equal(t, tensor.Shape{2, 2, 4, 5, 6}, y.Shape())
}

func TestConv_OutputLengthMatchesBackend(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(2))
	for _, mode := range []PaddingMode{PaddingValid, PaddingSame, PaddingCausal} {
		for _, stride := range []int{1, 2, 3} {
			for _, k := range []int{1, 2, 3, 4} {
				conv := must.M1(NewConv1D(ConvConfig{
					InChannels: 1, OutChannels: 1, KernelSize: []int{k}, Stride: []int{stride},
					Dilation: []int{2}, Padding: mode,
				}, backend))
				y := conv.Forward(tensor.Randn[float32](tensor.Shape{1, 1, 11}, backend))
				assert.Equal(t, conv.OutputShape([]int{11})[0], y.Shape()[2], "%s s=%d k=%d", mode, stride, k)
			}
		}
	}
	// Direct formula, valid: (L - d(k-1) - 1)/s + 1.
	assert.Equal(t, (11-2*3-1)/2+1, ConvOutputLength(11, 4, 2, 2, [2]int{}))
}

func TestConv_CausalIgnoresFuture(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(3))
	for _, cfg := range []ConvConfig{
		{InChannels: 2, OutChannels: 2, KernelSize: []int{3}, Padding: PaddingCausal},
		{InChannels: 2, OutChannels: 4, KernelSize: []int{4}, Dilation: []int{2}, Padding: PaddingCausal},
		{InChannels: 2, OutChannels: 2, KernelSize: []int{2}, Groups: 2, Padding: PaddingCausal},
	} {
		conv := must.M1(NewConv1D(cfg, backend))
		x := tensor.Randn[float32](tensor.Shape{1, 2, 10}, backend)
		base := conv.Forward(x)
		for step := 0; step < 10; step++ {
			changed := x.Clone()
			for c := 0; c < 2; c++ {
				for pos := step + 1; pos < 10; pos++ {
					changed.Set(changed.At(0, c, pos)+float32(pos)+1, 0, c, pos)
				}
			}
			y := conv.Forward(changed)
			for o := 0; o < base.Shape()[1]; o++ {
				for pos := 0; pos <= step; pos++ {
					require.Equal(t, base.At(0, o, pos), y.At(0, o, pos), "cfg=%+v step=%d pos=%d", cfg, step, pos)
				}
			}
		}
	}
}

func TestConv_ChannelsLast(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(4))
	cfg := ConvConfig{InChannels: 2, OutChannels: 3, KernelSize: []int{3, 2}, Stride: []int{1, 2}}
	first := must.M1(NewConv2D(cfg, backend))
	cfg.ChannelsLast = true
	last := must.M1(NewConv2D(cfg, backend))
	require.NoError(t, LoadStateDict[Backend](last, StateDict[Backend](first)))

	x := tensor.Randn[float32](tensor.Shape{2, 5, 6, 2}, backend) // [N, H, W, C]
	got := last.Forward(x)
	assert.Equal(t, tensor.Shape{2, 5, 3, 3}, got.Shape())
	want := first.Forward(x.Transpose(0, 3, 1, 2)).Transpose(0, 2, 3, 1)
	sameTensor(t, want, got)
}

func TestConv_InvalidConfig(t *testing.T) {
	backend := cpu.New()
	for name, cfg := range map[string]ConvConfig{
		"no kernel":      {InChannels: 1, OutChannels: 1},
		"bad groups":     {InChannels: 3, OutChannels: 2, KernelSize: []int{3}, Groups: 2},
		"wrong rank":     {InChannels: 1, OutChannels: 1, KernelSize: []int{3, 3, 3}},
		"zero stride":    {InChannels: 1, OutChannels: 1, KernelSize: []int{3}, Stride: []int{0}},
		"zero channels":  {OutChannels: 1, KernelSize: []int{3}},
		"negative group": {InChannels: 1, OutChannels: 1, KernelSize: []int{3}, Groups: -1},
	} {
		_, err := NewConv2D(cfg, backend)
		assert.ErrorIs(t, err, ErrInvalidConfig, name)
	}
	_, err := NewConv1D(ConvConfig{InChannels: 1, OutChannels: 1, KernelSize: []int{3}, Padding: PaddingMode(9)}, backend)
	assert.ErrorIs(t, err, ErrInvalidPadding)

	conv := must.M1(NewConv1D(ConvConfig{InChannels: 1, OutChannels: 1, KernelSize: []int{3}}, backend))
	assert.Panics(t, func() { conv.Forward(tensor.Zeros[float32](tensor.Shape{1, 5}, backend)) })
}

func TestConvTranspose_ValidLength(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(5))
	const length = 6
	for _, s := range []int{1, 2, 3} {
		for k := 1; k <= 4; k++ {
			for d := 1; d <= 3; d++ {
				conv := must.M1(NewConvTranspose1D(ConvTransposeConfig{ConvConfig: ConvConfig{
					InChannels: 2, OutChannels: 1, KernelSize: []int{k}, Dilation: []int{d}, Stride: []int{s},
					Padding: PaddingValid,
				}}, backend))
				y := conv.Forward(tensor.Randn[float32](tensor.Shape{1, 2, length}, backend))
				// Unpadded transposed convolution: (L-1)*s + d*(k-1) + 1.
				assert.Equal(t, (length-1)*s+d*(k-1)+1, y.Shape()[2], "s=%d k=%d d=%d", s, k, d)
			}
		}
	}
}

// TestConvTranspose_ValidStridedIsUnpadded checks values, not only lengths:
// every output position of a strided valid transpose receives at least one
// kernel tap, so there are no bias-only borders.
func TestConvTranspose_ValidStridedIsUnpadded(t *testing.T) {
	backend := cpu.New()
	conv := must.M1(NewConvTranspose1D(ConvTransposeConfig{ConvConfig: ConvConfig{
		InChannels: 1, OutChannels: 1, KernelSize: []int{3}, Stride: []int{2}, Padding: PaddingValid, NoBias: true,
	}}, backend))
	copy(conv.Weight().Tensor().Data(), []float32{1, 10, 100})
	x := must.M1(tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{1, 1, 3}, backend))
	// y[2i+j] += x[i]*w[j].
	want := []float32{1, 10, 102, 20, 203, 30, 300}
	assert.Equal(t, want, conv.Forward(x).Data())
}

func TestConvTranspose_SameKeepsLength(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(6))
	for k := 1; k <= 5; k++ {
		for _, mode := range []PaddingMode{PaddingSame, PaddingCausal} {
			conv := must.M1(NewConvTranspose1D(ConvTransposeConfig{ConvConfig: ConvConfig{
				InChannels: 1, OutChannels: 2, KernelSize: []int{k}, Dilation: []int{2}, Padding: mode,
			}}, backend))
			y := conv.Forward(tensor.Randn[float32](tensor.Shape{3, 1, 7}, backend))
			assert.Equal(t, tensor.Shape{3, 2, 7}, y.Shape(), "%s k=%d", mode, k)
		}
	}
}

func TestConvTranspose_OutputLengthMatchesBackend(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(7))
	for _, mode := range []PaddingMode{PaddingValid, PaddingSame, PaddingCausal} {
		for _, stride := range []int{1, 2, 3} {
			for _, k := range []int{1, 2, 3} {
				for _, op := range []int{0, 1} {
					if op >= stride {
						continue
					}
					name := fmt.Sprintf("%s s=%d k=%d op=%d", mode, stride, k, op)
					conv := must.M1(NewConvTranspose2D(ConvTransposeConfig{
						ConvConfig: ConvConfig{
							InChannels: 1, OutChannels: 1, KernelSize: []int{k, 2}, Stride: []int{stride}, Padding: mode,
						},
						OutputPadding: []int{op},
					}, backend))
					y := conv.Forward(tensor.Randn[float32](tensor.Shape{1, 1, 4, 5}, backend))
					assert.Equal(t, conv.OutputShape([]int{4, 5}), []int(y.Shape()[2:]), name)
				}
			}
		}
	}
}

func TestConvTranspose_OutputPadding(t *testing.T) {
	backend := cpu.New()
	base := ConvConfig{InChannels: 1, OutChannels: 1, KernelSize: []int{3}, Stride: []int{2}}

	_, err := NewConvTranspose1D(ConvTransposeConfig{ConvConfig: base, OutputPadding: []int{2}}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewConvTranspose1D(ConvTransposeConfig{ConvConfig: base, OutputPadding: []int{1, 1}}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	// Dilation larger than the output padding also allows it.
	dilated := base
	dilated.Stride = []int{1}
	dilated.Dilation = []int{3}
	conv := must.M1(NewConvTranspose1D(ConvTransposeConfig{ConvConfig: dilated, OutputPadding: []int{2}}, backend))
	assert.Equal(t, []int{2}, conv.OutputPadding())

	// 3D clamps to stride-1.
	conv3 := must.M1(NewConvTranspose3D(ConvTransposeConfig{
		ConvConfig:    ConvConfig{InChannels: 1, OutChannels: 1, KernelSize: []int{2}, Stride: []int{1, 2, 3}},
		OutputPadding: []int{5},
	}, backend))
	assert.Equal(t, []int{0, 1, 2}, conv3.OutputPadding())
	y := conv3.Forward(tensor.Randn[float32](tensor.Shape{1, 1, 2, 2, 2}, backend))
	assert.Equal(t, conv3.OutputShape([]int{2, 2, 2}), []int(y.Shape()[2:]))
}

func TestConvTranspose_ChannelsLastAndGroups(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(8))
	cfg := ConvTransposeConfig{ConvConfig: ConvConfig{
		InChannels: 4, OutChannels: 2, KernelSize: []int{2}, Groups: 2, Stride: []int{2}, Padding: PaddingValid,
	}}
	first := must.M1(NewConvTranspose1D(cfg, backend))
	assert.Equal(t, tensor.Shape{4, 1, 2}, first.Weight().Tensor().Shape())
	cfg.ChannelsLast = true
	last := must.M1(NewConvTranspose1D(cfg, backend))
	require.NoError(t, LoadStateDict[Backend](last, StateDict[Backend](first)))

	x := tensor.Randn[float32](tensor.Shape{1, 3, 4}, backend) // [N, L, C]
	sameTensor(t, first.Forward(x.Transpose(0, 2, 1)).Transpose(0, 2, 1), last.Forward(x))
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/synapse/backend/cpu"
	"github.com/born-ml/synapse/distributed"
	"github.com/born-ml/synapse/nn"
	"github.com/born-ml/synapse/tensor"
)

func TestCausalConvThroughRegistry(t *testing.T) {
	backend := cpu.New(cpu.WithSeed(1))
	layer, err := nn.Build("Conv1d", nn.Config{
		"in_channels": 2, "out_channels": 3, "kernel_size": 5, "dilation": 2, "padding": "causal",
	}, backend)
	require.NoError(t, err)

	conv := layer.(nn.Module[*cpu.Backend])
	y := conv.Forward(tensor.Randn[float32](tensor.Shape{4, 2, 11}, backend))
	assert.Equal(t, tensor.Shape{4, 3, 11}, y.Shape())
}

func TestSynchronizedNoise(t *testing.T) {
	const replicas = 3
	group, err := distributed.NewGroup(replicas)
	require.NoError(t, err)

	layers := make([]*nn.Linear[*cpu.Backend], replicas)
	for rank := range layers {
		layers[rank], err = nn.NewLinear(nn.LinearConfig{InFeatures: 8, OutFeatures: 4}, cpu.New(cpu.WithSeed(uint64(rank))))
		require.NoError(t, err)
	}
	err = distributed.Run(context.Background(), group, func(ctx context.Context, m *distributed.Member) error {
		layer := layers[m.Rank()]
		if err := layer.ConfigureNoise(0.075, nn.WithCollective(m)); err != nil {
			return err
		}
		return layer.SampleNoise(ctx, true)
	})
	require.NoError(t, err)

	want := layers[0].Noise().Samples()[0].Raw()
	for _, layer := range layers[1:] {
		assert.True(t, want.BitEqual(layer.Noise().Samples()[0].Raw()))
	}
}

func TestPaddingModes(t *testing.T) {
	for _, name := range []string{"valid", "same", "causal"} {
		mode, err := nn.ParsePaddingMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, mode.String())
	}
	_, err := nn.ParsePaddingMode("reflect")
	assert.ErrorIs(t, err, nn.ErrInvalidPadding)
}

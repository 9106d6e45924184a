// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/synapse/distributed"
	"github.com/born-ml/synapse/internal/nn"
	"github.com/born-ml/synapse/tensor"
)

// NoisyLayer is a layer with the variational weight noise API:
// ConfigureNoise, SampleNoise, ClearNoise and NoiseActive.
type NoisyLayer[B tensor.Backend] = nn.NoisyLayer[B]

// NoiseState is the noise standard deviation and current samples of one
// layer.
type NoiseState[B tensor.Backend] = nn.NoiseState[B]

// NoiseOption configures ConfigureNoise.
type NoiseOption = nn.NoiseOption

// WithCollective sets the collective synchronized sampling broadcasts
// through.
//
// Example:
//
//	group, _ := distributed.NewGroup(2)
//	err := distributed.Run(ctx, group, func(ctx context.Context, m *distributed.Member) error {
//	    layer := layers[m.Rank()]
//	    if err := layer.ConfigureNoise(0.075, nn.WithCollective(m)); err != nil {
//	        return err
//	    }
//	    return layer.SampleNoise(ctx, true)
//	})
func WithCollective(c distributed.Collective) NoiseOption {
	return nn.WithCollective(c)
}

// WithRoot sets the rank whose samples are broadcast. Defaults to 0.
func WithRoot(rank int) NoiseOption {
	return nn.WithRoot(rank)
}

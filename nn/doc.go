// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the synapse layers.
//
// # Overview
//
// This package contains:
//   - Convolutions: Conv1D/2D/3D and ConvTranspose1D/2D/3D with the
//     valid, same and causal padding policies
//   - Noisy layers: Linear, LSTM and Embedding with variational weight
//     noise, optionally synchronized across distributed participants
//   - SwitchLinear: a pool of Linear experts selected per example
//   - Utilities: Dropout, Flatten, Transpose, Permute, Reshape, Unsqueeze,
//     (masked) global pooling, MaxPool, Upsample3D
//   - A registry building any layer from its name and a Config
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/synapse/backend/cpu"
//	    "github.com/born-ml/synapse/nn"
//	    "github.com/born-ml/synapse/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New(cpu.WithSeed(1))
//
//	    conv, _ := nn.NewConv1D(nn.ConvConfig{
//	        InChannels:  4,
//	        OutChannels: 8,
//	        KernelSize:  []int{3},
//	        Padding:     nn.PaddingCausal,
//	    }, backend)
//	    y := conv.Forward(tensor.Randn[float32](tensor.Shape{2, 4, 16}, backend)) // [2, 8, 16]
//	}
//
// # Training and Evaluation
//
// Layers start in training mode. Noise perturbs weights only in training
// mode and only after SampleNoise; SetTraining(false) makes every forward
// pass use the clean weights.
package nn

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Matrix products through gonum BLAS
//   - Direct N-D convolution, transposed convolution and max pooling
//   - A fused multi-layer, bidirectional LSTM
//   - Float32 and Float64 support
//   - NumPy-compatible broadcasting
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
//	    x := tensor.Randn[float32](tensor.Shape{8, 16}, backend)
//	    layer, _ := nn.NewLinear(nn.LinearConfig{InFeatures: 16, OutFeatures: 4}, backend)
//	    y := layer.Forward(x)
//	}
//
// # Randomness
//
// Weight initialization, dropout and noise sampling draw from one PCG
// source per backend. WithSeed makes them reproducible; without it the
// source is seeded randomly.
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. The random source is
// guarded by a mutex; every other operation allocates its own output.
package cpu

// Package parallel splits index ranges over worker goroutines for the CPU
// kernels. Chunks are disjoint, so a kernel whose iterations write disjoint
// outputs gives bit-identical results whatever the worker count.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	NumWorkers   int // Number of worker goroutines; 1 or less runs sequentially.
	MinChunkSize int // Minimum indices per goroutine to avoid overhead.
}

// DefaultConfig returns one worker per CPU.
func DefaultConfig() Config {
	return Config{
		NumWorkers:   runtime.NumCPU(),
		MinChunkSize: 4,
	}
}

// Sequential runs everything on the calling goroutine.
func Sequential() Config {
	return Config{NumWorkers: 1}
}

// For calls body on disjoint chunks [start, end) covering [0, n) and
// returns once all chunks are done. It falls back to a single call when
// parallelism is disabled or n is too small to split.
func For(n int, cfg Config, body func(start, end int)) {
	if n <= 0 {
		return
	}
	minChunk := max(cfg.MinChunkSize, 1)
	if cfg.NumWorkers <= 1 || n < 2*minChunk {
		body(0, n)
		return
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, minChunk)
	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			body(start, end)
			return nil
		})
	}
	_ = g.Wait()
}

// ForPairs is For over the flattened (outer, inner) index space, the
// batch*channels pattern of convolution and pooling kernels.
func ForPairs(outer, inner int, cfg Config, body func(o, i int)) {
	For(outer*inner, cfg, func(start, end int) {
		for k := start; k < end; k++ {
			body(k/inner, k%inner)
		}
	})
}

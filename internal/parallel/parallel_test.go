package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), Sequential(), {NumWorkers: 3, MinChunkSize: 1}, {NumWorkers: 64}} {
		for _, n := range []int{0, 1, 7, 1000} {
			hits := make([]int32, n)
			var calls atomic.Int64
			For(n, cfg, func(start, end int) {
				calls.Add(1)
				for i := start; i < end; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			for i, h := range hits {
				assert.Equal(t, int32(1), h, "cfg=%+v n=%d index %d", cfg, n, i)
			}
			if cfg.NumWorkers <= 1 && n > 0 {
				assert.Equal(t, int64(1), calls.Load())
			}
		}
	}
}

func TestFor_ChunksRespectWorkers(t *testing.T) {
	var calls atomic.Int64
	For(100, Config{NumWorkers: 4, MinChunkSize: 1}, func(start, end int) {
		calls.Add(1)
	})
	assert.Equal(t, int64(4), calls.Load())

	calls.Store(0)
	For(10, Config{NumWorkers: 4, MinChunkSize: 8}, func(start, end int) {
		calls.Add(1)
	})
	assert.Equal(t, int64(1), calls.Load(), "too small to split")
}

func TestForPairs(t *testing.T) {
	batch, channels := 4, 8
	var results [4][8]atomic.Bool
	ForPairs(batch, channels, Config{NumWorkers: 3, MinChunkSize: 1}, func(b, c int) {
		results[b][c].Store(true)
	})
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			assert.True(t, results[b][c].Load(), "missing [%d][%d]", b, c)
		}
	}
}

func BenchmarkFor(b *testing.B) {
	n := 10000
	for _, bc := range []struct {
		name string
		cfg  Config
	}{{"parallel", DefaultConfig()}, {"sequential", Sequential()}} {
		b.Run(bc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				var sum atomic.Int64
				For(n, bc.cfg, func(start, end int) {
					for j := start; j < end; j++ {
						sum.Add(int64(j))
					}
				})
			}
		})
	}
}

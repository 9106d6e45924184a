package cpu

import (
	. "github.com/gomlx/exceptions"

	"github.com/born-ml/synapse/internal/tensor"
)

// Embedding looks up rows of weight for every index.
//
// weight: [V, E], indices: any shape [...] of Int32 or Int64.
// Output: [..., E]. Panics if any index is outside [0, V).
func (cpu *CPUBackend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	dtype := checkFloat("embedding", weight)
	wShape := weight.Shape()
	if len(wShape) != 2 {
		Panicf("embedding: weight must be 2D [V, E], got %v", wShape)
	}
	numEmbed, dim := wShape[0], wShape[1]

	outShape := append(indices.Shape().Clone(), dim)
	result := cpu.newOutput("embedding", outShape, dtype)

	rowBytes := dim * dtype.Size()
	src, dst := weight.Data(), result.Data()
	for i, idx := range indices.Indices() {
		if idx < 0 || idx >= numEmbed {
			Panicf("embedding: index %d out of range [0, %d)", idx, numEmbed)
		}
		copy(dst[i*rowBytes:(i+1)*rowBytes], src[idx*rowBytes:(idx+1)*rowBytes])
	}
	return result
}

package nn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/synapse/internal/backend/cpu"
	"github.com/born-ml/synapse/internal/tensor"
)

type Backend = *cpu.CPUBackend

type Tensor = tensor.Tensor[float32, Backend]

// fromSlice builds a float32 tensor.
func fromSlice(t *testing.T, backend Backend, data []float32, shape ...int) *Tensor {
	t.Helper()
	x, err := tensor.FromSlice(data, tensor.Shape(shape), backend)
	require.NoError(t, err)
	return x
}

// setParam overwrites a parameter's values.
func setParam(t *testing.T, p *Parameter[Backend], values ...float32) {
	t.Helper()
	require.Len(t, values, p.Tensor().NumElements())
	copy(p.Tensor().Data(), values)
}

// sameTensor asserts bit-identical tensors.
func sameTensor(t *testing.T, want, got *Tensor, msgAndArgs ...any) {
	t.Helper()
	require.Equal(t, want.Shape(), got.Shape(), msgAndArgs...)
	require.True(t, want.Raw().BitEqual(got.Raw()), msgAndArgs...)
}

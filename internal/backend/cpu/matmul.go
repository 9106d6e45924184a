package cpu

import (
	. "github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/synapse/internal/tensor"
)

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) -> (M, N).
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	dtype := checkFloat("matmul", a, b)
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		Panicf("matmul: expected 2D operands, got %v and %v", aShape, bShape)
	}
	if aShape[1] != bShape[0] {
		Panicf("matmul: inner dimensions differ: %v @ %v", aShape, bShape)
	}
	m, k, n := aShape[0], aShape[1], bShape[1]
	result := cpu.newOutput("matmul", tensor.Shape{m, n}, dtype)
	switch dtype {
	case tensor.Float32:
		gemm(false, m, n, k, view[float32](a), view[float32](b), view[float32](result))
	case tensor.Float64:
		gemm(false, m, n, k, view[float64](a), view[float64](b), view[float64](result))
	}
	return result
}

// BatchMatMul performs batched matrix multiplication.
//
// Shapes: [B, M, K] @ [B, K, N] -> [B, M, N], or [B, M, K] @ [B, N, K]^T when
// transposeB is set. Every batch entry goes through the same GEMM call that
// Linear uses for a single row, so a batch of one-row products is
// bit-identical to the corresponding Linear calls.
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor, transposeB bool) *tensor.RawTensor {
	dtype := checkFloat("batch_matmul", a, b)
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 3 || len(bShape) != 3 {
		Panicf("batch_matmul: expected 3D operands, got %v and %v", aShape, bShape)
	}
	if aShape[0] != bShape[0] {
		Panicf("batch_matmul: batch sizes differ: %v vs %v", aShape, bShape)
	}
	batch, m, k := aShape[0], aShape[1], aShape[2]
	n, bk := bShape[2], bShape[1]
	if transposeB {
		n, bk = bShape[1], bShape[2]
	}
	if k != bk {
		Panicf("batch_matmul: inner dimensions differ: %v @ %v (transposeB=%v)", aShape, bShape, transposeB)
	}

	result := cpu.newOutput("batch_matmul", tensor.Shape{batch, m, n}, dtype)
	switch dtype {
	case tensor.Float32:
		batchGemm(transposeB, batch, m, n, k, view[float32](a), view[float32](b), view[float32](result))
	case tensor.Float64:
		batchGemm(transposeB, batch, m, n, k, view[float64](a), view[float64](b), view[float64](result))
	}
	return result
}

// Linear computes x @ weight.T + bias.
//
// x: [..., in], weight: [out, in], bias: [out] or nil. Output: [..., out].
func (cpu *CPUBackend) Linear(x, weight, bias *tensor.RawTensor) *tensor.RawTensor {
	dtype := checkFloat("linear", x, weight, bias)
	xShape, wShape := x.Shape(), weight.Shape()
	if len(xShape) == 0 || len(wShape) != 2 {
		Panicf("linear: expected x [..., in] and weight [out, in], got %v and %v", xShape, wShape)
	}
	in, out := wShape[1], wShape[0]
	if xShape[len(xShape)-1] != in {
		Panicf("linear: input features %d != weight in_features %d", xShape[len(xShape)-1], in)
	}
	if bias != nil && !bias.Shape().Equal(tensor.Shape{out}) {
		Panicf("linear: bias shape %v, expected [%d]", bias.Shape(), out)
	}

	outShape := xShape.Clone()
	outShape[len(outShape)-1] = out
	rows := x.NumElements() / in
	result := cpu.newOutput("linear", outShape, dtype)
	switch dtype {
	case tensor.Float32:
		linear(rows, in, out, view[float32](x), view[float32](weight), view[float32](bias), view[float32](result))
	case tensor.Float64:
		linear(rows, in, out, view[float64](x), view[float64](weight), view[float64](bias), view[float64](result))
	}
	return result
}

func linear[T constraints.Float](rows, in, out int, x, w, bias, result []T) {
	gemm(true, rows, out, in, x, w, result)
	if bias == nil {
		return
	}
	for r := 0; r < rows; r++ {
		row := result[r*out : (r+1)*out]
		for o := range row {
			row[o] += bias[o]
		}
	}
}

func batchGemm[T constraints.Float](transposeB bool, batch, m, n, k int, a, b, c []T) {
	for i := 0; i < batch; i++ {
		gemm(transposeB, m, n, k,
			a[i*m*k:(i+1)*m*k],
			b[i*k*n:(i+1)*k*n],
			c[i*m*n:(i+1)*m*n])
	}
}

// gemm computes c = a @ b (or a @ b^T) with a [m, k] and c [m, n].
// b is [k, n], or [n, k] when transposeB is set.
func gemm[T constraints.Float](transposeB bool, m, n, k int, a, b, c []T) {
	tB := blas.NoTrans
	bRows, bCols := k, n
	if transposeB {
		tB = blas.Trans
		bRows, bCols = n, k
	}

	switch a := any(a).(type) {
	case []float32:
		blas32.Gemm(blas.NoTrans, tB, 1,
			blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
			blas32.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: any(b).([]float32)},
			0,
			blas32.General{Rows: m, Cols: n, Stride: n, Data: any(c).([]float32)})
	case []float64:
		blas64.Gemm(blas.NoTrans, tB, 1,
			blas64.General{Rows: m, Cols: k, Stride: k, Data: a},
			blas64.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: any(b).([]float64)},
			0,
			blas64.General{Rows: m, Cols: n, Stride: n, Data: any(c).([]float64)})
	}
}

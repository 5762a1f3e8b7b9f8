package exec

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gosling-ml/gosling/device"
	"github.com/gosling-ml/gosling/graph"
)

func init() {
	kernels[graph.OpTypeMatMul] = execMatMul
}

// execMatMul multiplies two rank-2 operands. The output never aliases an
// input, even a donated one: the kernel reads every input element more than
// once.
func execMatMul(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	lhs, rhs := inputs[0], inputs[1]
	output := ctx.NewBuffer(node.Shape())
	m := lhs.Shape().Dim(0)
	k := lhs.Shape().Dim(1)
	n := rhs.Shape().Dim(1)
	switch node.Shape().DType {
	case dtypes.Int32:
		execMatMulGeneric(lhs.Flat().([]int32), rhs.Flat().([]int32), output.Flat().([]int32), m, k, n)
	case dtypes.Int64:
		execMatMulGeneric(lhs.Flat().([]int64), rhs.Flat().([]int64), output.Flat().([]int64), m, k, n)
	case dtypes.Float32:
		execMatMulGeneric(lhs.Flat().([]float32), rhs.Flat().([]float32), output.Flat().([]float32), m, k, n)
	case dtypes.Float64:
		execMatMulGeneric(lhs.Flat().([]float64), rhs.Flat().([]float64), output.Flat().([]float64), m, k, n)
	case dtypes.Float16:
		execMatMulF16(lhs.Flat().([]float16.Float16), rhs.Flat().([]float16.Float16), output.Flat().([]float16.Float16), m, k, n)
	default:
		ctx.ReleaseBuffer(output)
		return nil, errors.Errorf("unsupported data type %s for %s", node.Shape().DType, node.OpType())
	}
	return output, nil
}

// execMatMulGeneric is a row-major [m,k]x[k,n] product. The loop order (i,k,j)
// walks both rhs and output sequentially, which matters more than any other
// single-threaded trick here.
func execMatMulGeneric[T numericConstraints](lhs, rhs, output []T, m, k, n int) {
	clear(output)
	for i := range m {
		lhsRow := lhs[i*k : (i+1)*k]
		outRow := output[i*n : (i+1)*n]
		for kk, a := range lhsRow {
			if a == 0 {
				continue
			}
			rhsRow := rhs[kk*n : (kk+1)*n]
			for j, b := range rhsRow {
				outRow[j] += a * b
			}
		}
	}
}

// execMatMulF16 accumulates in float32 and rounds once per output element.
func execMatMulF16(lhs, rhs, output []float16.Float16, m, k, n int) {
	acc := make([]float32, n)
	for i := range m {
		clear(acc)
		lhsRow := lhs[i*k : (i+1)*k]
		for kk, a := range lhsRow {
			a32 := a.Float32()
			if a32 == 0 {
				continue
			}
			rhsRow := rhs[kk*n : (kk+1)*n]
			for j, b := range rhsRow {
				acc[j] += a32 * b.Float32()
			}
		}
		outRow := output[i*n : (i+1)*n]
		for j, v := range acc {
			outRow[j] = float16.Fromfloat32(v)
		}
	}
}

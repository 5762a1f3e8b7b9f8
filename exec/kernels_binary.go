package exec

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	"github.com/gosling-ml/gosling/device"
	"github.com/gosling-ml/gosling/graph"
)

// Binary ops support one special case beyond plain elementwise execution:
// either operand may be of size 1 (a scalar or a single-element tensor), in
// which case it is broadcast against the other operand.

func init() {
	kernels[graph.OpTypeAdd] = execAdd
	kernels[graph.OpTypeSub] = execSub
	kernels[graph.OpTypeMul] = execMul
	kernels[graph.OpTypeDiv] = execDiv
	kernels[graph.OpTypeMax] = execMax
	kernels[graph.OpTypeMin] = execMin
	kernels[graph.OpTypePow] = execPow
}

// execBinaryGeneric applies op elementwise, broadcasting whichever operand has
// size 1.
func execBinaryGeneric[T numericConstraints](lhs, rhs, outputs []T, lhsIsUnit, rhsIsUnit bool, op func(a, b T) T) {
	switch {
	case lhsIsUnit && !rhsIsUnit:
		a := lhs[0]
		for ii, b := range rhs {
			outputs[ii] = op(a, b)
		}
	case rhsIsUnit && !lhsIsUnit:
		b := rhs[0]
		for ii, a := range lhs {
			outputs[ii] = op(a, b)
		}
	default:
		for ii, a := range lhs {
			outputs[ii] = op(a, rhs[ii])
		}
	}
}

// execBinaryF16 is execBinaryGeneric for Float16, computed through float32.
func execBinaryF16(lhs, rhs, outputs []float16.Float16, lhsIsUnit, rhsIsUnit bool, op func(a, b float32) float32) {
	switch {
	case lhsIsUnit && !rhsIsUnit:
		a := lhs[0].Float32()
		for ii, b := range rhs {
			outputs[ii] = float16.Fromfloat32(op(a, b.Float32()))
		}
	case rhsIsUnit && !lhsIsUnit:
		b := rhs[0].Float32()
		for ii, a := range lhs {
			outputs[ii] = float16.Fromfloat32(op(a.Float32(), b))
		}
	default:
		for ii, a := range lhs {
			outputs[ii] = float16.Fromfloat32(op(a.Float32(), rhs[ii].Float32()))
		}
	}
}

func execAdd(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	lhs, rhs, output, lhsIsUnit, rhsIsUnit := binaryOperandsAndOutput(ctx, node, inputs, inputsOwned)
	switch node.Shape().DType {
	case dtypes.Int32:
		execBinaryGeneric(lhs.Flat().([]int32), rhs.Flat().([]int32), output.Flat().([]int32), lhsIsUnit, rhsIsUnit,
			func(a, b int32) int32 { return a + b })
	case dtypes.Int64:
		execBinaryGeneric(lhs.Flat().([]int64), rhs.Flat().([]int64), output.Flat().([]int64), lhsIsUnit, rhsIsUnit,
			func(a, b int64) int64 { return a + b })
	case dtypes.Float32:
		execBinaryGeneric(lhs.Flat().([]float32), rhs.Flat().([]float32), output.Flat().([]float32), lhsIsUnit, rhsIsUnit,
			func(a, b float32) float32 { return a + b })
	case dtypes.Float64:
		execBinaryGeneric(lhs.Flat().([]float64), rhs.Flat().([]float64), output.Flat().([]float64), lhsIsUnit, rhsIsUnit,
			func(a, b float64) float64 { return a + b })
	case dtypes.Float16:
		execBinaryF16(lhs.Flat().([]float16.Float16), rhs.Flat().([]float16.Float16), output.Flat().([]float16.Float16),
			lhsIsUnit, rhsIsUnit, func(a, b float32) float32 { return a + b })
	default:
		return nil, errors.Errorf("unsupported data type %s for %s", node.Shape().DType, node.OpType())
	}
	return output, nil
}

func execSub(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	lhs, rhs, output, lhsIsUnit, rhsIsUnit := binaryOperandsAndOutput(ctx, node, inputs, inputsOwned)
	switch node.Shape().DType {
	case dtypes.Int32:
		execBinaryGeneric(lhs.Flat().([]int32), rhs.Flat().([]int32), output.Flat().([]int32), lhsIsUnit, rhsIsUnit,
			func(a, b int32) int32 { return a - b })
	case dtypes.Int64:
		execBinaryGeneric(lhs.Flat().([]int64), rhs.Flat().([]int64), output.Flat().([]int64), lhsIsUnit, rhsIsUnit,
			func(a, b int64) int64 { return a - b })
	case dtypes.Float32:
		execBinaryGeneric(lhs.Flat().([]float32), rhs.Flat().([]float32), output.Flat().([]float32), lhsIsUnit, rhsIsUnit,
			func(a, b float32) float32 { return a - b })
	case dtypes.Float64:
		execBinaryGeneric(lhs.Flat().([]float64), rhs.Flat().([]float64), output.Flat().([]float64), lhsIsUnit, rhsIsUnit,
			func(a, b float64) float64 { return a - b })
	case dtypes.Float16:
		execBinaryF16(lhs.Flat().([]float16.Float16), rhs.Flat().([]float16.Float16), output.Flat().([]float16.Float16),
			lhsIsUnit, rhsIsUnit, func(a, b float32) float32 { return a - b })
	default:
		return nil, errors.Errorf("unsupported data type %s for %s", node.Shape().DType, node.OpType())
	}
	return output, nil
}

func execMul(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	lhs, rhs, output, lhsIsUnit, rhsIsUnit := binaryOperandsAndOutput(ctx, node, inputs, inputsOwned)
	switch node.Shape().DType {
	case dtypes.Int32:
		execBinaryGeneric(lhs.Flat().([]int32), rhs.Flat().([]int32), output.Flat().([]int32), lhsIsUnit, rhsIsUnit,
			func(a, b int32) int32 { return a * b })
	case dtypes.Int64:
		execBinaryGeneric(lhs.Flat().([]int64), rhs.Flat().([]int64), output.Flat().([]int64), lhsIsUnit, rhsIsUnit,
			func(a, b int64) int64 { return a * b })
	case dtypes.Float32:
		execBinaryGeneric(lhs.Flat().([]float32), rhs.Flat().([]float32), output.Flat().([]float32), lhsIsUnit, rhsIsUnit,
			func(a, b float32) float32 { return a * b })
	case dtypes.Float64:
		execBinaryGeneric(lhs.Flat().([]float64), rhs.Flat().([]float64), output.Flat().([]float64), lhsIsUnit, rhsIsUnit,
			func(a, b float64) float64 { return a * b })
	case dtypes.Float16:
		execBinaryF16(lhs.Flat().([]float16.Float16), rhs.Flat().([]float16.Float16), output.Flat().([]float16.Float16),
			lhsIsUnit, rhsIsUnit, func(a, b float32) float32 { return a * b })
	default:
		return nil, errors.Errorf("unsupported data type %s for %s", node.Shape().DType, node.OpType())
	}
	return output, nil
}

// execDiv divides elementwise. An integer division by zero panics like any
// Go division; the request layer recovers it into an execution error.
func execDiv(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	lhs, rhs, output, lhsIsUnit, rhsIsUnit := binaryOperandsAndOutput(ctx, node, inputs, inputsOwned)
	switch node.Shape().DType {
	case dtypes.Int32:
		execBinaryGeneric(lhs.Flat().([]int32), rhs.Flat().([]int32), output.Flat().([]int32), lhsIsUnit, rhsIsUnit,
			func(a, b int32) int32 { return a / b })
	case dtypes.Int64:
		execBinaryGeneric(lhs.Flat().([]int64), rhs.Flat().([]int64), output.Flat().([]int64), lhsIsUnit, rhsIsUnit,
			func(a, b int64) int64 { return a / b })
	case dtypes.Float32:
		execBinaryGeneric(lhs.Flat().([]float32), rhs.Flat().([]float32), output.Flat().([]float32), lhsIsUnit, rhsIsUnit,
			func(a, b float32) float32 { return a / b })
	case dtypes.Float64:
		execBinaryGeneric(lhs.Flat().([]float64), rhs.Flat().([]float64), output.Flat().([]float64), lhsIsUnit, rhsIsUnit,
			func(a, b float64) float64 { return a / b })
	case dtypes.Float16:
		execBinaryF16(lhs.Flat().([]float16.Float16), rhs.Flat().([]float16.Float16), output.Flat().([]float16.Float16),
			lhsIsUnit, rhsIsUnit, func(a, b float32) float32 { return a / b })
	default:
		return nil, errors.Errorf("unsupported data type %s for %s", node.Shape().DType, node.OpType())
	}
	return output, nil
}

func maxOp[T constraints.Ordered](a, b T) T {
	if a < b {
		return b
	}
	return a
}

func minOp[T constraints.Ordered](a, b T) T {
	if a > b {
		return b
	}
	return a
}

func execMax(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	lhs, rhs, output, lhsIsUnit, rhsIsUnit := binaryOperandsAndOutput(ctx, node, inputs, inputsOwned)
	switch node.Shape().DType {
	case dtypes.Int32:
		execBinaryGeneric(lhs.Flat().([]int32), rhs.Flat().([]int32), output.Flat().([]int32), lhsIsUnit, rhsIsUnit, maxOp[int32])
	case dtypes.Int64:
		execBinaryGeneric(lhs.Flat().([]int64), rhs.Flat().([]int64), output.Flat().([]int64), lhsIsUnit, rhsIsUnit, maxOp[int64])
	case dtypes.Float32:
		execBinaryGeneric(lhs.Flat().([]float32), rhs.Flat().([]float32), output.Flat().([]float32), lhsIsUnit, rhsIsUnit, maxOp[float32])
	case dtypes.Float64:
		execBinaryGeneric(lhs.Flat().([]float64), rhs.Flat().([]float64), output.Flat().([]float64), lhsIsUnit, rhsIsUnit, maxOp[float64])
	case dtypes.Float16:
		execBinaryF16(lhs.Flat().([]float16.Float16), rhs.Flat().([]float16.Float16), output.Flat().([]float16.Float16),
			lhsIsUnit, rhsIsUnit, maxOp[float32])
	default:
		return nil, errors.Errorf("unsupported data type %s for %s", node.Shape().DType, node.OpType())
	}
	return output, nil
}

func execMin(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	lhs, rhs, output, lhsIsUnit, rhsIsUnit := binaryOperandsAndOutput(ctx, node, inputs, inputsOwned)
	switch node.Shape().DType {
	case dtypes.Int32:
		execBinaryGeneric(lhs.Flat().([]int32), rhs.Flat().([]int32), output.Flat().([]int32), lhsIsUnit, rhsIsUnit, minOp[int32])
	case dtypes.Int64:
		execBinaryGeneric(lhs.Flat().([]int64), rhs.Flat().([]int64), output.Flat().([]int64), lhsIsUnit, rhsIsUnit, minOp[int64])
	case dtypes.Float32:
		execBinaryGeneric(lhs.Flat().([]float32), rhs.Flat().([]float32), output.Flat().([]float32), lhsIsUnit, rhsIsUnit, minOp[float32])
	case dtypes.Float64:
		execBinaryGeneric(lhs.Flat().([]float64), rhs.Flat().([]float64), output.Flat().([]float64), lhsIsUnit, rhsIsUnit, minOp[float64])
	case dtypes.Float16:
		execBinaryF16(lhs.Flat().([]float16.Float16), rhs.Flat().([]float16.Float16), output.Flat().([]float16.Float16),
			lhsIsUnit, rhsIsUnit, minOp[float32])
	default:
		return nil, errors.Errorf("unsupported data type %s for %s", node.Shape().DType, node.OpType())
	}
	return output, nil
}

// execPowIntGeneric is an O(num of bits) Pow(base, exp) implementation for
// integers. Negative exponents truncate to zero (except for bases 1 and -1).
func execPowIntGeneric[T int32 | int64](base, exp T) T {
	if exp < 0 {
		switch base {
		case 1:
			return 1
		case -1:
			if exp%2 == 0 {
				return 1
			}
			return -1
		default:
			return 0
		}
	}
	result := T(1)
	for exp > 0 {
		if exp%2 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func execPow(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	lhs, rhs, output, lhsIsUnit, rhsIsUnit := binaryOperandsAndOutput(ctx, node, inputs, inputsOwned)
	switch node.Shape().DType {
	case dtypes.Int32:
		execBinaryGeneric(lhs.Flat().([]int32), rhs.Flat().([]int32), output.Flat().([]int32), lhsIsUnit, rhsIsUnit,
			execPowIntGeneric[int32])
	case dtypes.Int64:
		execBinaryGeneric(lhs.Flat().([]int64), rhs.Flat().([]int64), output.Flat().([]int64), lhsIsUnit, rhsIsUnit,
			execPowIntGeneric[int64])
	case dtypes.Float32:
		execBinaryGeneric(lhs.Flat().([]float32), rhs.Flat().([]float32), output.Flat().([]float32), lhsIsUnit, rhsIsUnit,
			func(a, b float32) float32 { return float32(math.Pow(float64(a), float64(b))) })
	case dtypes.Float64:
		execBinaryGeneric(lhs.Flat().([]float64), rhs.Flat().([]float64), output.Flat().([]float64), lhsIsUnit, rhsIsUnit,
			math.Pow)
	case dtypes.Float16:
		execBinaryF16(lhs.Flat().([]float16.Float16), rhs.Flat().([]float16.Float16), output.Flat().([]float16.Float16),
			lhsIsUnit, rhsIsUnit, func(a, b float32) float32 { return float32(math.Pow(float64(a), float64(b))) })
	default:
		return nil, errors.Errorf("unsupported data type %s for %s", node.Shape().DType, node.OpType())
	}
	return output, nil
}

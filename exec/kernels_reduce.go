package exec

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gosling-ml/gosling/device"
	"github.com/gosling-ml/gosling/graph"
)

func init() {
	kernels[graph.OpTypeReduceSum] = execReduceSum
	kernels[graph.OpTypeReduceMax] = execReduceMax
}

// Reductions collapse all axes: the output is a scalar of the input dtype.

func execReduceSum(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	input := inputs[0]
	output := ctx.NewBuffer(node.Shape())
	switch node.Shape().DType {
	case dtypes.Int32:
		output.Flat().([]int32)[0] = execReduceSumGeneric(input.Flat().([]int32))
	case dtypes.Int64:
		output.Flat().([]int64)[0] = execReduceSumGeneric(input.Flat().([]int64))
	case dtypes.Float32:
		output.Flat().([]float32)[0] = execReduceSumGeneric(input.Flat().([]float32))
	case dtypes.Float64:
		output.Flat().([]float64)[0] = execReduceSumGeneric(input.Flat().([]float64))
	case dtypes.Float16:
		// Accumulate in float32, round once.
		var sum float32
		for _, v := range input.Flat().([]float16.Float16) {
			sum += v.Float32()
		}
		output.Flat().([]float16.Float16)[0] = float16.Fromfloat32(sum)
	default:
		ctx.ReleaseBuffer(output)
		return nil, errors.Errorf("unsupported data type %s for %s", node.Shape().DType, node.OpType())
	}
	return output, nil
}

func execReduceSumGeneric[T numericConstraints](inputs []T) T {
	var sum T
	for _, v := range inputs {
		sum += v
	}
	return sum
}

func execReduceMax(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	input := inputs[0]
	output := ctx.NewBuffer(node.Shape())
	switch node.Shape().DType {
	case dtypes.Int32:
		output.Flat().([]int32)[0] = execReduceMaxGeneric(input.Flat().([]int32))
	case dtypes.Int64:
		output.Flat().([]int64)[0] = execReduceMaxGeneric(input.Flat().([]int64))
	case dtypes.Float32:
		output.Flat().([]float32)[0] = execReduceMaxGeneric(input.Flat().([]float32))
	case dtypes.Float64:
		output.Flat().([]float64)[0] = execReduceMaxGeneric(input.Flat().([]float64))
	case dtypes.Float16:
		flat := input.Flat().([]float16.Float16)
		best := flat[0].Float32()
		for _, v := range flat[1:] {
			best = maxOp(best, v.Float32())
		}
		output.Flat().([]float16.Float16)[0] = float16.Fromfloat32(best)
	default:
		ctx.ReleaseBuffer(output)
		return nil, errors.Errorf("unsupported data type %s for %s", node.Shape().DType, node.OpType())
	}
	return output, nil
}

func execReduceMaxGeneric[T numericConstraints](inputs []T) T {
	best := inputs[0]
	for _, v := range inputs[1:] {
		best = maxOp(best, v)
	}
	return best
}

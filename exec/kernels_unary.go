package exec

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gosling-ml/gosling/device"
	"github.com/gosling-ml/gosling/graph"
)

func init() {
	kernels[graph.OpTypeNeg] = execNeg
	kernels[graph.OpTypeAbs] = execAbs
	kernels[graph.OpTypeExp] = makeFloatUnaryKernel("Exp", math.Exp)
	kernels[graph.OpTypeLog] = makeFloatUnaryKernel("Log", math.Log)
	kernels[graph.OpTypeSqrt] = makeFloatUnaryKernel("Sqrt", math.Sqrt)
	kernels[graph.OpTypeTanh] = makeFloatUnaryKernel("Tanh", math.Tanh)
	kernels[graph.OpTypeLogistic] = makeFloatUnaryKernel("Logistic", func(x float64) float64 {
		return 1.0 / (1.0 + math.Exp(-x))
	})
}

// execNeg executes the unary op Neg.
func execNeg(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	input, output := unaryOperandAndOutput(ctx, inputs, inputsOwned)
	switch input.Shape().DType {
	case dtypes.Int32:
		execNegGeneric[int32](input.Flat().([]int32), output.Flat().([]int32))
	case dtypes.Int64:
		execNegGeneric[int64](input.Flat().([]int64), output.Flat().([]int64))
	case dtypes.Float32:
		execNegGeneric[float32](input.Flat().([]float32), output.Flat().([]float32))
	case dtypes.Float64:
		execNegGeneric[float64](input.Flat().([]float64), output.Flat().([]float64))
	case dtypes.Float16:
		execUnaryF16(input.Flat().([]float16.Float16), output.Flat().([]float16.Float16),
			func(x float32) float32 { return -x })
	default:
		return nil, errors.Errorf("unsupported data type %s for %s", input.Shape().DType, node.OpType())
	}
	return output, nil
}

func execNegGeneric[T numericConstraints](inputs, outputs []T) {
	for ii, input := range inputs {
		outputs[ii] = -input
	}
}

// execAbs executes the unary op Abs.
func execAbs(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	input, output := unaryOperandAndOutput(ctx, inputs, inputsOwned)
	switch input.Shape().DType {
	case dtypes.Int32:
		execAbsGeneric[int32](input.Flat().([]int32), output.Flat().([]int32))
	case dtypes.Int64:
		execAbsGeneric[int64](input.Flat().([]int64), output.Flat().([]int64))
	case dtypes.Float32:
		execAbsGeneric[float32](input.Flat().([]float32), output.Flat().([]float32))
	case dtypes.Float64:
		execAbsGeneric[float64](input.Flat().([]float64), output.Flat().([]float64))
	case dtypes.Float16:
		execUnaryF16(input.Flat().([]float16.Float16), output.Flat().([]float16.Float16),
			func(x float32) float32 {
				if x < 0 {
					return -x
				}
				return x
			})
	default:
		return nil, errors.Errorf("unsupported data type %s for %s", input.Shape().DType, node.OpType())
	}
	return output, nil
}

func execAbsGeneric[T numericConstraints](inputs, outputs []T) {
	for ii, input := range inputs {
		if input < 0 {
			input = -input
		}
		outputs[ii] = input
	}
}

// makeFloatUnaryKernel builds a kernel for a unary op defined on floats only,
// from its float64 math function. Float16 and float32 values are computed
// through float64, which is exact for them.
func makeFloatUnaryKernel(opName string, fn func(float64) float64) kernel {
	return func(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
		input, output := unaryOperandAndOutput(ctx, inputs, inputsOwned)
		switch input.Shape().DType {
		case dtypes.Float32:
			execUnaryFloatGeneric[float32](input.Flat().([]float32), output.Flat().([]float32), fn)
		case dtypes.Float64:
			execUnaryFloatGeneric[float64](input.Flat().([]float64), output.Flat().([]float64), fn)
		case dtypes.Float16:
			execUnaryF16(input.Flat().([]float16.Float16), output.Flat().([]float16.Float16),
				func(x float32) float32 { return float32(fn(float64(x))) })
		default:
			return nil, errors.Errorf("unsupported data type %s for %s", input.Shape().DType, opName)
		}
		return output, nil
	}
}

func execUnaryFloatGeneric[T floatConstraints](inputs, outputs []T, fn func(float64) float64) {
	for ii, input := range inputs {
		outputs[ii] = T(fn(float64(input)))
	}
}

func execUnaryF16(inputs, outputs []float16.Float16, fn func(float32) float32) {
	for ii, input := range inputs {
		outputs[ii] = float16.Fromfloat32(fn(input.Float32()))
	}
}

package exec

import (
	"github.com/gosling-ml/gosling/device"
	"github.com/gosling-ml/gosling/graph"
)

// kernel implements one op type. It receives the input buffers and whether
// each is owned by the execution: an owned input with the right shape may be
// reused as the output, in which case the kernel sets the corresponding
// inputs[i] to nil to signal it took over the buffer.
type kernel func(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error)

// kernels is populated during initialization (init functions) for the ops
// implemented, indexed by graph.OpType.
var kernels [graph.OpTypeLast]kernel

// numericConstraints are the plain Go numeric types kernels operate on
// directly. Float16 is handled by separate kernels that convert through
// float32.
type numericConstraints interface {
	int32 | int64 | float32 | float64
}

// floatConstraints are the Go float types for ops only defined on floats.
type floatConstraints interface {
	float32 | float64
}

// unaryOperandAndOutput is a convenience function to get the input and the
// output -- which may be the reuse of the input.
func unaryOperandAndOutput(ctx *device.Context, inputs []*device.Buffer, inputsOwned []bool) (input, output *device.Buffer) {
	input = inputs[0]
	if inputsOwned[0] {
		output = input
		inputs[0] = nil // This tells the executor that we took over the buffer.
		return
	}
	output = ctx.NewBuffer(input.Shape())
	return input, output
}

// binaryOperandsAndOutput is a convenience function to get the inputs and the
// output -- which may be the reuse of one of the inputs.
func binaryOperandsAndOutput(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (
	lhs, rhs, output *device.Buffer, lhsIsUnit, rhsIsUnit bool) {
	lhs, rhs = inputs[0], inputs[1]
	outputShape := node.Shape()
	lhsIsUnit, rhsIsUnit = lhs.Shape().Size() == 1, rhs.Shape().Size() == 1
	if inputsOwned[1] && rhs.Shape().Equal(outputShape) {
		output = rhs
		inputs[1] = nil
	} else if inputsOwned[0] && lhs.Shape().Equal(outputShape) {
		output = lhs
		inputs[0] = nil
	} else {
		output = ctx.NewBuffer(outputShape)
	}
	return
}

func init() {
	kernels[graph.OpTypeIdentity] = execIdentity
}

// execIdentity passes its input through, copying only when the buffer is not
// owned by the execution.
func execIdentity(ctx *device.Context, node *graph.Node, inputs []*device.Buffer, inputsOwned []bool) (*device.Buffer, error) {
	if inputsOwned[0] {
		output := inputs[0]
		inputs[0] = nil
		return output, nil
	}
	return ctx.CloneBuffer(inputs[0])
}

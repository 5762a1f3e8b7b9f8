package graph

// Shape inference: calculates the shape resulting from each op and validates
// its inputs. Ops are grouped in sets by the dtypes they accept; the generic
// UnaryOpShape/BinaryOpShape handle whole sets, the remaining ops get one
// function each.

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gosling-ml/gosling/types"
	"github.com/gosling-ml/gosling/types/shapes"
)

var (
	// NumberOperations accept any numeric dtype as input: integers or floats.
	NumberOperations = types.SetWith(
		OpTypeAdd,
		OpTypeSub,
		OpTypeMul,
		OpTypeDiv,
		OpTypeMax,
		OpTypeMin,
		OpTypeAbs,
		OpTypeNeg,
	)

	// FloatOperations only operate on float dtypes.
	FloatOperations = types.SetWith(
		OpTypeExp,
		OpTypeLog,
		OpTypeSqrt,
		OpTypeTanh,
		OpTypeLogistic,
		OpTypePow,
	)

	// StandardUnaryOperations have one operand and preserve its shape.
	StandardUnaryOperations = types.SetWith(
		OpTypeIdentity,
		OpTypeNeg,
		OpTypeAbs,
		OpTypeExp,
		OpTypeLog,
		OpTypeSqrt,
		OpTypeTanh,
		OpTypeLogistic,
	)

	// StandardBinaryOperations have two operands, lhs and rhs, of matching
	// dtypes, where one side may be a scalar (or size-1) broadcast over the other.
	StandardBinaryOperations = types.SetWith(
		OpTypeAdd,
		OpTypeSub,
		OpTypeMul,
		OpTypeDiv,
		OpTypeMax,
		OpTypeMin,
		OpTypePow,
	)

	// ReduceOperations reduce the operand over all axes to a scalar.
	ReduceOperations = types.SetWith(
		OpTypeReduceSum,
		OpTypeReduceMax,
	)
)

// checkOpDType validates the dtype against the sets the opType belongs to.
func checkOpDType(opType OpType, dtype dtypes.DType) error {
	if dtype == dtypes.InvalidDType {
		return errors.Errorf("invalid dtype for op %s", opType)
	}
	if NumberOperations.Has(opType) && !(dtype.IsInt() || dtype.IsFloat()) {
		return errors.Errorf("numeric op %s must have a number (Int32, Float32, ...) data type as input, got %s", opType, dtype)
	}
	if FloatOperations.Has(opType) && !dtype.IsFloat() {
		return errors.Errorf("float op %s must have a float (Float32, Float64, ...) data type as input, got %s", opType, dtype)
	}
	return nil
}

// UnaryOpShape returns the shape resulting from applying the unary opType to
// operand, or an error if the operand is invalid for the op.
func UnaryOpShape(opType OpType, operand shapes.Shape) (output shapes.Shape, err error) {
	if !StandardUnaryOperations.Has(opType) {
		err = errors.Errorf("op %s is not in the StandardUnaryOperations set, cannot process it with UnaryOpShape", opType)
		return
	}
	if err = checkOpDType(opType, operand.DType); err != nil {
		return
	}
	output = operand.Clone()
	return
}

// BinaryOpShape returns the shape resulting from applying the binary opType to
// lhs and rhs. Operands must have the same dtype, and either equal dimensions
// or one operand of size 1 (scalar broadcast).
func BinaryOpShape(opType OpType, lhs, rhs shapes.Shape) (output shapes.Shape, err error) {
	if !StandardBinaryOperations.Has(opType) {
		err = errors.Errorf("op %s is not in the StandardBinaryOperations set, cannot process it with BinaryOpShape", opType)
		return
	}
	if lhs.DType != rhs.DType {
		err = errors.Errorf("data types (DType) for op %s must match, got %s and %s", opType, lhs, rhs)
		return
	}
	if err = checkOpDType(opType, lhs.DType); err != nil {
		return
	}
	switch {
	case lhs.EqualDimensions(rhs):
		output = lhs.Clone()
	case lhs.Size() == 1:
		output = rhs.Clone()
	case rhs.Size() == 1:
		output = lhs.Clone()
	default:
		err = errors.Errorf("op %s operands have incompatible shapes %s and %s: "+
			"dimensions must match, or one side must have size 1", opType, lhs, rhs)
	}
	return
}

// MatMulShape returns the shape of the rank-2 matrix product lhs x rhs.
func MatMulShape(lhs, rhs shapes.Shape) (output shapes.Shape, err error) {
	if lhs.DType != rhs.DType {
		err = errors.Errorf("data types (DType) for %s must match, got %s and %s", OpTypeMatMul, lhs, rhs)
		return
	}
	if !(lhs.DType.IsFloat() || lhs.DType.IsInt()) {
		err = errors.Errorf("%s requires a numeric data type, got %s", OpTypeMatMul, lhs)
		return
	}
	if lhs.Rank() != 2 || rhs.Rank() != 2 {
		err = errors.Errorf("%s requires rank-2 operands, got %s and %s", OpTypeMatMul, lhs, rhs)
		return
	}
	if lhs.Dimensions[1] != rhs.Dimensions[0] {
		err = errors.Errorf("%s contracting dimensions don't match: %s x %s", OpTypeMatMul, lhs, rhs)
		return
	}
	output = shapes.Make(lhs.DType, lhs.Dimensions[0], rhs.Dimensions[1])
	return
}

// ReduceOpShape returns the scalar shape of the full reduction of operand.
func ReduceOpShape(opType OpType, operand shapes.Shape) (output shapes.Shape, err error) {
	if !ReduceOperations.Has(opType) {
		err = errors.Errorf("op %s is not in the ReduceOperations set, cannot process it with ReduceOpShape", opType)
		return
	}
	if !(operand.DType.IsInt() || operand.DType.IsFloat()) {
		err = errors.Errorf("reduce op %s requires a numeric data type, got %s", opType, operand)
		return
	}
	output = shapes.Scalar(operand.DType)
	return
}

// Package shapes defines Shape and associated tools.
//
// Shape represents the shape (rank, dimensions and DType) of either a Tensor or
// the expected value of a node in a computation graph. DType, the type of the
// unit element, comes from github.com/gomlx/gopjrt/dtypes.
//
// Glossary:
//
//   - Rank: number of axes (dimensions) of a Tensor.
//   - Axis: the index of a dimension on a multidimensional Tensor.
//   - Dimension: the size of a Tensor in one of its axes.
//   - DType: the data type of the unit element in a tensor.
//   - Scalar: a shape with no axes, only a single value of the associated DType.
//
// Example: `[][]int32{{0, 1, 2}, {3, 4, 5}}` converted to a Tensor has shape
// `(int32)[2 3]`: rank 2, axis 0 has dimension 2 and axis 1 has dimension 3.
// This shape is created with `shapes.Make(dtypes.Int32, 2, 3)`.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gopjrt/dtypes"
)

// Shape represents the shape of either a Tensor or the expected value of a
// computation-graph node.
//
// Use Make to create a new shape.
type Shape struct {
	DType      DType
	Dimensions []int
}

// Make returns a Shape structure filled with the values given.
func Make(dtype DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	for _, dim := range dimensions {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension <= 0", s)
		}
	}
	return s
}

// Scalar returns a scalar Shape for the given dtype.
func Scalar(dtype DType) Shape {
	return Shape{DType: dtype}
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: InvalidDType}
}

// Ok returns whether this is a valid Shape.
func (s Shape) Ok() bool { return s.DType != InvalidDType }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape is a scalar, that is, it has rank 0 and one single value.
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts from the end -- -1 means the last axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("shape %s doesn't have axis %d", s, axis)
	}
	return s.Dimensions[adjustedAxis]
}

// Shape returns a copy of itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// String implements stringer.
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	b := strings.Builder{}
	fmt.Fprintf(&b, "(%s)[", s.DType)
	for ii, dim := range s.Dimensions {
		if ii > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", dim)
	}
	b.WriteByte(']')
	return b.String()
}

// Size returns the number of elements of the DType stored in a tensor with this shape.
// A scalar has size 1.
func (s Shape) Size() (size int) {
	size = 1
	for _, dim := range s.Dimensions {
		size *= dim
	}
	return
}

// Memory returns the number of bytes needed to store this shape.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares two shapes for equality: dtype and dimensions are compared.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType {
		return false
	}
	return s.EqualDimensions(s2)
}

// EqualDimensions compares two shapes for equality of dimensions only.
func (s Shape) EqualDimensions(s2 Shape) bool {
	if s.Rank() != s2.Rank() {
		return false
	}
	for ii, dim := range s.Dimensions {
		if dim != s2.Dimensions[ii] {
			return false
		}
	}
	return true
}

// Clone makes a deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	return
}

// HasShape is an interface for objects that have an associated Shape: tensors,
// graph nodes and Shape itself.
type HasShape interface {
	Shape() Shape
}

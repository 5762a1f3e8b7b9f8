// Package tensors implements a host-side Tensor: a shape (see types/shapes)
// and the corresponding flat data, stored as a slice of the shape's DType.
//
// Tensors are the values bound to inference-request ports and the storage of
// graph constants. They are plain host memory: transferring them to a device
// execution context is the job of package device.
package tensors

import (
	"bytes"
	"fmt"
	"reflect"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gosling-ml/gosling/types/shapes"
)

// Tensor holds a shape and its flat values.
//
// The flat slice is owned by the Tensor; callers that need an independent copy
// should use Clone.
type Tensor struct {
	shape shapes.Shape

	// flat is always a slice of the Go type corresponding to shape.DType.
	flat any
}

// FromFlatDataAndDimensions creates a Tensor from the flat data and the given dimensions.
// The length of data must match the size deduced from the dimensions.
//
// It panics (exceptions style) on invalid inputs.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	return FromAnyFlatAndDimensions(data, dimensions...)
}

// FromAnyFlatAndDimensions is the non-generic version of FromFlatDataAndDimensions:
// flat must be a slice of one of the supported data types.
func FromAnyFlatAndDimensions(flat any, dimensions ...int) *Tensor {
	flatType := reflect.TypeOf(flat)
	if flatType.Kind() != reflect.Slice {
		exceptions.Panicf("tensors.FromAnyFlatAndDimensions: flat should be a slice, got %T", flat)
	}
	dtype := dtypes.FromGoType(flatType.Elem())
	if dtype == dtypes.InvalidDType {
		exceptions.Panicf("tensors.FromAnyFlatAndDimensions: %T is not a slice of a supported data type", flat)
	}
	shape := shapes.Make(dtype, dimensions...)
	flatLen := reflect.ValueOf(flat).Len()
	if flatLen != shape.Size() {
		exceptions.Panicf("tensors.FromAnyFlatAndDimensions: shape %s takes %d values, got %d", shape, shape.Size(), flatLen)
	}
	return &Tensor{shape: shape, flat: flat}
}

// FromScalar creates a scalar (rank-0) Tensor with the given value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	return &Tensor{shape: shapes.Scalar(dtype), flat: []T{value}}
}

// FromShape creates a zero-initialized Tensor with the given shape.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape: invalid shape %s", shape)
	}
	flat := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size()).Interface()
	return &Tensor{shape: shape.Clone(), flat: flat}
}

// Shape of the Tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the Tensor's elements. Shortcut to t.Shape().DType.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Size returns the number of elements stored. Shortcut to t.Shape().Size.
func (t *Tensor) Size() int { return t.shape.Size() }

// Flat returns the flat data slice.
//
// The slice is aliased with the Tensor storage: treat it as read-only unless
// the Tensor is exclusively owned by the caller.
func (t *Tensor) Flat() any { return t.flat }

// String prints the shape and a summary of the values.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%s", t.shape)
}

// Clone returns a deep copy of the Tensor.
func (t *Tensor) Clone() *Tensor {
	t2 := FromShape(t.shape)
	reflect.Copy(reflect.ValueOf(t2.flat), reflect.ValueOf(t.flat))
	return t2
}

// Equal checks whether t and t2 have the same shape and identical flat values.
func (t *Tensor) Equal(t2 *Tensor) bool {
	if t == nil || t2 == nil {
		return t == t2
	}
	if !t.shape.Equal(t2.shape) {
		return false
	}
	return bytes.Equal(t.RawBytes(), t2.RawBytes())
}

// RawBytes returns the bytes backing the flat data, in host memory order.
//
// The returned slice aliases the Tensor storage.
func (t *Tensor) RawBytes() []byte {
	v := reflect.ValueOf(t.flat)
	if v.Len() == 0 {
		return nil
	}
	base := (*byte)(v.Index(0).Addr().UnsafePointer())
	return unsafe.Slice(base, uintptr(v.Len())*t.shape.DType.Memory())
}

// CopyFlatData returns a copy of the flat data of the Tensor.
// The generic type T must match the Tensor's DType.
func CopyFlatData[T dtypes.Supported](t *Tensor) []T {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		exceptions.Panicf("tensors.CopyFlatData[%T]: Tensor has DType %s", v, t.shape.DType)
	}
	flat := t.flat.([]T)
	return append([]T(nil), flat...)
}

// ToScalar returns the single value of a scalar (or size-1) Tensor.
func ToScalar[T dtypes.Supported](t *Tensor) T {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		exceptions.Panicf("tensors.ToScalar[%T]: Tensor has DType %s", v, t.shape.DType)
	}
	if t.Size() != 1 {
		exceptions.Panicf("tensors.ToScalar: Tensor %s has %d values", t.shape, t.Size())
	}
	return t.flat.([]T)[0]
}

package device

import (
	"reflect"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gosling-ml/gosling/tensors"
	"github.com/gosling-ml/gosling/types/shapes"
)

// Buffer holds a shape and a reference to the flat data used during graph
// execution.
//
// Buffers are recycled through the Context pools: after FinalizeBuffer (or
// after being donated to an execution) a buffer must not be used again.
type Buffer struct {
	shape shapes.Shape
	valid bool

	// flat is always a slice of the underlying data type (shape.DType).
	flat any
}

// Shape of the buffer.
func (b *Buffer) Shape() shapes.Shape { return b.shape }

// Valid returns whether the buffer is live: not yet finalized or donated.
func (b *Buffer) Valid() bool { return b != nil && b.valid }

// Flat returns the flat data slice backing the buffer.
// The slice becomes invalid once the buffer is finalized.
func (b *Buffer) Flat() any { return b.flat }

// getBufferPool for the given dtype/length.
func (ctx *Context) getBufferPool(dtype dtypes.DType, length int) *sync.Pool {
	key := bufferPoolKey{dtype: dtype, length: length}
	pool, ok := ctx.bufferPools.Load(key)
	if !ok {
		pool, _ = ctx.bufferPools.LoadOrStore(key, &sync.Pool{
			New: func() any {
				return &Buffer{
					flat:  reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface(),
					shape: shapes.Make(dtype, length),
				}
			},
		})
	}
	return pool
}

// getBuffer from the context pool of buffers.
func (ctx *Context) getBuffer(dtype dtypes.DType, length int) *Buffer {
	pool := ctx.getBufferPool(dtype, length)
	buf := pool.Get().(*Buffer)
	buf.valid = true
	return buf
}

// putBuffer back into the context pool of buffers.
// After this any references to buffer should be dropped.
func (ctx *Context) putBuffer(buffer *Buffer) {
	if buffer == nil || !buffer.shape.Ok() {
		return
	}
	buffer.valid = false
	pool := ctx.getBufferPool(buffer.shape.DType, buffer.shape.Size())
	pool.Put(buffer)
}

// NewBuffer creates a zero-length-checked buffer with the given shape, taking
// storage from the pools.
func (ctx *Context) NewBuffer(shape shapes.Shape) *Buffer {
	buffer := ctx.getBuffer(shape.DType, shape.Size())
	buffer.shape = shape.Clone()
	return buffer
}

// CloneBuffer returns a copy of buffer, with storage taken from the pools.
func (ctx *Context) CloneBuffer(buffer *Buffer) (*Buffer, error) {
	if !buffer.Valid() || buffer.flat == nil {
		return nil, errors.Errorf("CloneBuffer(%p): buffer was already finalized!?", buffer)
	}
	newBuffer := ctx.getBuffer(buffer.shape.DType, buffer.shape.Size())
	newBuffer.shape = buffer.shape.Clone()
	copyFlat(newBuffer.flat, buffer.flat)
	return newBuffer, nil
}

// FinalizeBuffer informs the context that the buffer is no longer needed, so
// its storage can be recycled immediately. A finalized buffer must never be
// used again; preferably the caller also sets its references to it to nil.
func (ctx *Context) FinalizeBuffer(buffer *Buffer) error {
	if buffer == nil || buffer.flat == nil || !buffer.shape.Ok() || !buffer.valid {
		return errors.Errorf("FinalizeBuffer(%p): buffer was already finalized!?", buffer)
	}
	ctx.putBuffer(buffer)
	return nil
}

// ReleaseBuffer is the internal, no-error variant of FinalizeBuffer used by the
// executor for temporaries it owns.
func (ctx *Context) ReleaseBuffer(buffer *Buffer) {
	ctx.putBuffer(buffer)
}

// BufferFromTensor transfers a host tensor to a new execution buffer.
func (ctx *Context) BufferFromTensor(t *tensors.Tensor) *Buffer {
	buffer := ctx.NewBuffer(t.Shape())
	copyFlat(buffer.flat, t.Flat())
	return buffer
}

// BufferFromFlatData transfers data given as a flat slice (of the Go type
// corresponding to shape.DType) to a new execution buffer.
func (ctx *Context) BufferFromFlatData(flat any, shape shapes.Shape) (*Buffer, error) {
	flatType := reflect.TypeOf(flat)
	if flatType.Kind() != reflect.Slice {
		return nil, errors.Errorf("flat data should be a slice, got %T", flat)
	}
	if dtypes.FromGoType(flatType.Elem()) != shape.DType {
		return nil, errors.Errorf("flat data type (%s) does not match shape DType (%s)",
			flatType.Elem(), shape.DType)
	}
	if reflect.ValueOf(flat).Len() != shape.Size() {
		return nil, errors.Errorf("flat data has %d values, shape %s takes %d",
			reflect.ValueOf(flat).Len(), shape, shape.Size())
	}
	buffer := ctx.NewBuffer(shape)
	copyFlat(buffer.flat, flat)
	return buffer, nil
}

// TensorFromBuffer transfers an execution buffer back to a newly allocated
// host tensor.
func (ctx *Context) TensorFromBuffer(buffer *Buffer) (*tensors.Tensor, error) {
	if !buffer.Valid() {
		return nil, errors.Errorf("TensorFromBuffer(%p): buffer was already finalized!?", buffer)
	}
	t := tensors.FromShape(buffer.shape)
	copyFlat(t.Flat(), buffer.flat)
	return t, nil
}

// copyFlat assumes both flat slices are of the same underlying type.
func copyFlat(flatDst, flatSrc any) {
	reflect.Copy(reflect.ValueOf(flatDst), reflect.ValueOf(flatSrc))
}

package device

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosling-ml/gosling/tensors"
	"github.com/gosling-ml/gosling/types/shapes"
)

func TestNewBufferAndRelease(t *testing.T) {
	ctx := NewContext(0)
	shape := shapes.Make(dtypes.Float32, 2, 3)

	buf := ctx.NewBuffer(shape)
	require.True(t, buf.Valid())
	assert.True(t, buf.Shape().Equal(shape))
	flat := buf.Flat().([]float32)
	assert.Len(t, flat, 6)

	ctx.ReleaseBuffer(buf)
	assert.False(t, buf.Valid())
}

func TestBufferPoolReuse(t *testing.T) {
	ctx := NewContext(0)
	shape := shapes.Make(dtypes.Int64, 4)

	first := ctx.NewBuffer(shape)
	firstFlat := first.Flat().([]int64)
	firstFlat[0] = 42
	ctx.ReleaseBuffer(first)

	// Same dtype and size comes out of the same pool; contents are garbage
	// until written.
	second := ctx.NewBuffer(shape)
	assert.Len(t, second.Flat().([]int64), 4)
	ctx.ReleaseBuffer(second)
}

func TestBufferFromTensorRoundTrip(t *testing.T) {
	ctx := NewContext(0)
	want := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)

	buf := ctx.BufferFromTensor(want)
	require.True(t, buf.Valid())

	// The buffer holds a copy: mutating it leaves the tensor alone.
	buf.Flat().([]float32)[0] = 99
	assert.Equal(t, float32(1), want.Flat().([]float32)[0])

	got, err := ctx.TensorFromBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, []float32{99, 2, 3, 4}, got.Flat().([]float32))
	ctx.ReleaseBuffer(buf)
}

func TestBufferFromFlatData(t *testing.T) {
	ctx := NewContext(0)
	shape := shapes.Make(dtypes.Float64, 3)

	buf, err := ctx.BufferFromFlatData([]float64{1, 2, 3}, shape)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, buf.Flat().([]float64))
	ctx.ReleaseBuffer(buf)

	// Wrong element type.
	_, err = ctx.BufferFromFlatData([]float32{1, 2, 3}, shape)
	require.Error(t, err)

	// Wrong length.
	_, err = ctx.BufferFromFlatData([]float64{1, 2}, shape)
	require.Error(t, err)
}

func TestCloneBuffer(t *testing.T) {
	ctx := NewContext(0)
	buf, err := ctx.BufferFromFlatData([]float32{5, 6}, shapes.Make(dtypes.Float32, 2))
	require.NoError(t, err)

	clone, err := ctx.CloneBuffer(buf)
	require.NoError(t, err)
	clone.Flat().([]float32)[0] = -5
	assert.Equal(t, float32(5), buf.Flat().([]float32)[0])

	ctx.ReleaseBuffer(buf)
	ctx.ReleaseBuffer(clone)

	_, err = ctx.CloneBuffer(buf)
	require.Error(t, err)
}

func TestFinalizeBuffer(t *testing.T) {
	ctx := NewContext(0)
	buf := ctx.NewBuffer(shapes.Make(dtypes.Float32, 2))
	require.NoError(t, ctx.FinalizeBuffer(buf))
	require.Error(t, ctx.FinalizeBuffer(buf))
}

func TestContextString(t *testing.T) {
	assert.Equal(t, "cpu.0", NewContext(0).String())
	assert.Equal(t, "cpu.3", NewContext(3).String())
}

// ContextFor hands out one shared context per device instance, so buffer
// pools are shared by everything on that instance. NewContext stays private.
func TestContextForIsShared(t *testing.T) {
	assert.Same(t, ContextFor(0), ContextFor(0))
	assert.NotSame(t, ContextFor(0), ContextFor(1))
	assert.NotSame(t, NewContext(0), NewContext(0))
	assert.Equal(t, Num(1), ContextFor(1).Num())
}

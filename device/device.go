// Package device implements the host-CPU execution context shared by compiled
// models: the buffer pools and the transfer of tensors to and from execution
// buffers.
//
// A Context is a shared handle: every compiled model on the same logical
// device reuses the same pools. The engine never allocates threads here, only
// memory.
package device

import (
	"fmt"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gosling-ml/gosling/types/xsync"
)

// Name of the device this context drives. There is a single device kind for
// now, the host CPU.
const Name = "cpu"

// Num identifies a device instance. It should be between 0 and the number of
// available devices; the CPU context only has instance 0.
type Num int

// Context holds the per-device state shared by compiled models: pools of
// reusable execution buffers, keyed by (dtype, size).
//
// It is safe for concurrent use.
type Context struct {
	num Num

	// bufferPools maps bufferPoolKey to *sync.Pool of *Buffer.
	bufferPools xsync.SyncMap[bufferPoolKey, *sync.Pool]
}

// NewContext returns a fresh, private Context for the given device instance.
// Most callers want ContextFor instead, which shares one context (and its
// buffer pools) per instance.
func NewContext(num Num) *Context {
	return &Context{num: num}
}

// contexts holds the shared Context per device instance.
var contexts xsync.SyncMap[Num, *Context]

// ContextFor returns the shared Context of the given device instance, creating
// it on first use. Every compiled model on the same instance draws from the
// same buffer pools.
func ContextFor(num Num) *Context {
	if ctx, ok := contexts.Load(num); ok {
		return ctx
	}
	ctx, _ := contexts.LoadOrStore(num, NewContext(num))
	return ctx
}

// Num returns the device instance this context drives.
func (ctx *Context) Num() Num { return ctx.num }

// String implements fmt.Stringer, with the usual "<device>.<instance>" form.
func (ctx *Context) String() string {
	return fmt.Sprintf("%s.%d", Name, ctx.num)
}

type bufferPoolKey struct {
	dtype  dtypes.DType
	length int
}

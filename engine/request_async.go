package engine

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gosling-ml/gosling/tensors"
	"github.com/gosling-ml/gosling/types/xsync"
)

// Status of an asynchronous request. Completed, Cancelled and Failed are
// terminal: they never transition further, only a new Start resets them.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusCancelled
	StatusFailed
)

//go:generate go tool enumer -type=Status -trimprefix=Status -output=gen_status_enumer.go request_async.go

// IsTerminal reports whether the status is one of the three final states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// AsyncRequest wraps a SyncRequest with a non-blocking three-stage pipeline:
// the inference itself on the model's compute executor, waiter resolution on
// the wait executor and the user callback on the callback executor.
//
// Only Wait and WaitFor block the calling goroutine; every other method
// returns immediately. The request itself never spawns goroutines, it only
// submits to the model's executors.
type AsyncRequest struct {
	inner *SyncRequest

	mu     sync.Mutex
	status Status

	// done carries the terminal error (nil when Completed) to waiters. It is
	// recreated by each Start and nil while Idle.
	done *xsync.LatchWithValue[error]

	cancelRequested bool
	callback        func(Status, error)
	closed          bool
}

// NewAsyncRequest creates an asynchronous inference request bound to this
// model, running on the executors the model was compiled with.
func (m *Model) NewAsyncRequest() *AsyncRequest {
	return &AsyncRequest{inner: m.NewSyncRequest(), status: StatusIdle}
}

// BindInput binds a tensor to the named input port. It must not be called
// while the request is Running.
func (r *AsyncRequest) BindInput(port string, t *tensors.Tensor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusRunning {
		return errors.Wrapf(ErrInvalidState, "cannot bind input %q while the request is running", port)
	}
	return r.inner.BindInput(port, t)
}

// GetOutput returns a result tensor. Only valid in the Completed state.
func (r *AsyncRequest) GetOutput(port string) (*tensors.Tensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusCompleted {
		return nil, errors.Wrapf(ErrNotFound, "no results for output port %q in state %s", port, r.status)
	}
	return r.inner.GetOutput(port)
}

// Status returns the current state of the request's pipeline.
func (r *AsyncRequest) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SetCallback registers the completion callback, replacing any prior
// registration. The callback runs on the model's callback executor, after the
// terminal status is set, with that status and, on failure, the error.
func (r *AsyncRequest) SetCallback(fn func(status Status, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = fn
}

// Start enqueues the inference pipeline. It fails with ErrInvalidState if the
// request is already Running; from Idle or any terminal state it resets the
// request and transitions to Running.
func (r *AsyncRequest) Start() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.Wrap(ErrInvalidState, "request is closed")
	}
	if r.status == StatusRunning {
		r.mu.Unlock()
		return errors.Wrap(ErrInvalidState, "request is already running")
	}
	r.status = StatusRunning
	r.cancelRequested = false
	r.done = xsync.NewLatchWithValue[error]()
	r.mu.Unlock()

	execs := r.inner.model.execs
	execs.Compute.Submit(func() {
		// Stage 1: the inference itself. A cancellation that arrived before
		// this point removes the work from the queue; one that arrives later
		// lets the pass finish and discards the result.
		r.mu.Lock()
		skip := r.cancelRequested
		r.mu.Unlock()
		var inferErr error
		if !skip {
			inferErr = r.inner.Infer()
		}

		// Stage 2: resolve waiters on the dedicated wait executor, so slow
		// waiter wakeups never occupy a compute worker.
		execs.Wait.Submit(func() {
			r.mu.Lock()
			var terminalErr error
			switch {
			case r.cancelRequested:
				r.status = StatusCancelled
				terminalErr = ErrCancelled
			case inferErr != nil:
				r.status = StatusFailed
				terminalErr = inferErr
			default:
				r.status = StatusCompleted
			}
			status := r.status
			callback := r.callback
			done := r.done
			r.mu.Unlock()

			// The terminal status is visible before any waiter wakes and
			// before the callback runs.
			done.Trigger(terminalErr)

			// Stage 3: the user callback, isolated on its own executor.
			if callback != nil {
				execs.Callback.Submit(func() {
					callback(status, terminalErr)
				})
			}
		})
	})
	return nil
}

// Wait blocks until the pipeline reaches a terminal state. It returns nil on
// Completed, the stored execution error on Failed and ErrCancelled on
// Cancelled. Waiting on an Idle request fails with ErrInvalidState.
func (r *AsyncRequest) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return errors.Wrap(ErrInvalidState, "request was never started")
	}
	return done.Wait()
}

// WaitFor is Wait with a deadline. On timeout it returns ErrTimedOut and the
// request keeps running: a timeout does not cancel.
func (r *AsyncRequest) WaitFor(timeout time.Duration) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return errors.Wrap(ErrInvalidState, "request was never started")
	}
	select {
	case <-done.WaitChan():
		return done.Wait()
	case <-time.After(timeout):
		return ErrTimedOut
	}
}

// Cancel requests cooperative cancellation of a Running pipeline: an in-flight
// compute stage is not interrupted, its result is discarded when it finishes.
// Cancelling from Idle or a terminal state fails with ErrInvalidState.
func (r *AsyncRequest) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning {
		return errors.Wrapf(ErrInvalidState, "cancel in state %s", r.status)
	}
	r.cancelRequested = true
	return nil
}

// Close waits for a Running pipeline to finish, then releases the underlying
// request and its model reference. The request must not be used afterwards.
func (r *AsyncRequest) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	done := r.done
	running := r.status == StatusRunning
	r.mu.Unlock()
	if running && done != nil {
		done.Wait()
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.inner.Close()
}

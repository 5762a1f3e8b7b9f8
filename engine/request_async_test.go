package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosling-ml/gosling/executors"
	"github.com/gosling-ml/gosling/tensors"
)

// compileAsyncAddMul compiles the add-mul model on pooled executors.
func compileAsyncAddMul(t *testing.T, k float32) (*Model, func()) {
	compute := executors.NewPool(4)
	wait := executors.NewPool(1)
	callback := executors.NewPool(1)
	model, err := Compile(buildAddMulGraph(t, k), DefaultConfig(), Executors{
		Compute:  compute,
		Wait:     wait,
		Callback: callback,
	})
	require.NoError(t, err)
	return model, func() {
		require.NoError(t, model.Close())
		compute.Close()
		wait.Close()
		callback.Close()
	}
}

func bindScalars(t *testing.T, request *AsyncRequest, x0, x1 float32) {
	require.NoError(t, request.BindInput("x0", tensors.FromScalar(x0)))
	require.NoError(t, request.BindInput("x1", tensors.FromScalar(x1)))
}

func TestAsyncStartWaitGetOutput(t *testing.T) {
	model, teardown := compileAsyncAddMul(t, 4)
	defer teardown()

	request := model.NewAsyncRequest()
	defer func() { require.NoError(t, request.Close()) }()
	assert.Equal(t, StatusIdle, request.Status())

	bindScalars(t, request, 2, 3)
	require.NoError(t, request.Start())
	require.NoError(t, request.Wait())
	assert.Equal(t, StatusCompleted, request.Status())

	output, err := request.GetOutput("y")
	require.NoError(t, err)
	assert.Equal(t, float32(20), tensors.ToScalar[float32](output))
}

func TestAsyncStateMachine(t *testing.T) {
	model, teardown := compileAsyncAddMul(t, 1)
	defer teardown()

	request := model.NewAsyncRequest()
	defer func() { require.NoError(t, request.Close()) }()

	// Idle: wait and cancel are invalid.
	require.ErrorIs(t, request.Wait(), ErrInvalidState)
	require.ErrorIs(t, request.Cancel(), ErrInvalidState)

	bindScalars(t, request, 1, 1)
	require.NoError(t, request.Start())
	require.NoError(t, request.Wait())
	require.Equal(t, StatusCompleted, request.Status())

	// Cancel after a terminal state always fails with InvalidState.
	require.ErrorIs(t, request.Cancel(), ErrInvalidState)

	// A new Start from a terminal state resets and runs again.
	require.NoError(t, request.Start())
	require.NoError(t, request.Wait())
	assert.Equal(t, StatusCompleted, request.Status())

	// The observed status is always a defined enum value.
	assert.True(t, request.Status().IsAStatus())
}

func TestAsyncStartWhileRunning(t *testing.T) {
	// A gated compute executor keeps the request in Running deterministically.
	gate := make(chan struct{})
	compute := gatedExecutor{gate: gate}
	model, err := Compile(buildAddMulGraph(t, 1), DefaultConfig(), Executors{Compute: compute})
	require.NoError(t, err)
	defer func() { require.NoError(t, model.Close()) }()

	request := model.NewAsyncRequest()
	bindScalars(t, request, 1, 1)
	require.NoError(t, request.Start())
	assert.Equal(t, StatusRunning, request.Status())

	require.ErrorIs(t, request.Start(), ErrInvalidState)
	require.ErrorIs(t, request.BindInput("x0", tensors.FromScalar(float32(9))), ErrInvalidState)

	// Bounded wait times out without cancelling.
	require.ErrorIs(t, request.WaitFor(10*time.Millisecond), ErrTimedOut)
	assert.Equal(t, StatusRunning, request.Status())

	close(gate)
	require.NoError(t, request.Wait())
	require.NoError(t, request.Close())
}

// gatedExecutor runs each task on its own goroutine once the gate is closed.
type gatedExecutor struct{ gate chan struct{} }

func (e gatedExecutor) Submit(task func()) {
	go func() {
		<-e.gate
		task()
	}()
}

func TestAsyncCancelBeforeExecution(t *testing.T) {
	gate := make(chan struct{})
	model, err := Compile(buildAddMulGraph(t, 1), DefaultConfig(), Executors{Compute: gatedExecutor{gate: gate}})
	require.NoError(t, err)
	defer func() { require.NoError(t, model.Close()) }()

	request := model.NewAsyncRequest()
	bindScalars(t, request, 1, 1)
	require.NoError(t, request.Start())
	require.NoError(t, request.Cancel())
	close(gate)

	require.ErrorIs(t, request.Wait(), ErrCancelled)
	assert.Equal(t, StatusCancelled, request.Status())

	// No results in a cancelled state.
	_, err = request.GetOutput("y")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, request.Close())
}

func TestAsyncFailurePropagatesOnWait(t *testing.T) {
	model, teardown := compileAsyncAddMul(t, 1)
	defer teardown()

	// x1 left unbound: Infer fails, and the failure surfaces on Wait.
	request := model.NewAsyncRequest()
	defer func() { require.NoError(t, request.Close()) }()
	require.NoError(t, request.BindInput("x0", tensors.FromScalar(float32(1))))
	require.NoError(t, request.Start())

	err := request.Wait()
	require.ErrorIs(t, err, ErrExecution)
	assert.Equal(t, StatusFailed, request.Status())
}

// A kernel fault inside the compute stage must surface on Wait as a Failed
// terminal state. It must not kill the executor worker and strand the
// waiters.
func TestAsyncDivideByZeroFailsOnWait(t *testing.T) {
	compute := executors.NewPool(1)
	defer compute.Close()
	model, err := Compile(buildDivGraph(t), DefaultConfig(), Executors{Compute: compute})
	require.NoError(t, err)
	defer func() { require.NoError(t, model.Close()) }()

	request := model.NewAsyncRequest()
	defer func() { require.NoError(t, request.Close()) }()
	require.NoError(t, request.BindInput("num", tensors.FromScalar(int32(1))))
	require.NoError(t, request.BindInput("den", tensors.FromScalar(int32(0))))
	require.NoError(t, request.Start())

	require.ErrorIs(t, request.Wait(), ErrExecution)
	assert.Equal(t, StatusFailed, request.Status())
	_, err = request.GetOutput("quot")
	require.ErrorIs(t, err, ErrNotFound)

	// The pool's single worker survived the failed pass: rebind and rerun.
	require.NoError(t, request.BindInput("den", tensors.FromScalar(int32(1))))
	require.NoError(t, request.Start())
	require.NoError(t, request.Wait())
	output, err := request.GetOutput("quot")
	require.NoError(t, err)
	assert.Equal(t, int32(1), tensors.ToScalar[int32](output))
}

func TestAsyncCallback(t *testing.T) {
	model, teardown := compileAsyncAddMul(t, 2)
	defer teardown()

	request := model.NewAsyncRequest()
	defer func() { require.NoError(t, request.Close()) }()
	bindScalars(t, request, 3, 4)

	type result struct {
		status Status
		err    error
	}
	resultChan := make(chan result, 1)
	request.SetCallback(func(status Status, err error) {
		resultChan <- result{status, err}
	})
	require.NoError(t, request.Start())

	got := <-resultChan
	assert.Equal(t, StatusCompleted, got.status)
	assert.NoError(t, got.err)
	// The callback never observes a non-terminal status.
	assert.True(t, got.status.IsTerminal())

	// The callback fires on failure too, carrying the error.
	request2 := model.NewAsyncRequest()
	defer func() { require.NoError(t, request2.Close()) }()
	request2.SetCallback(func(status Status, err error) {
		resultChan <- result{status, err}
	})
	require.NoError(t, request2.Start()) // no inputs bound
	got = <-resultChan
	assert.Equal(t, StatusFailed, got.status)
	assert.ErrorIs(t, got.err, ErrExecution)
}

func TestAsyncConcurrentRequests(t *testing.T) {
	model, teardown := compileAsyncAddMul(t, 3)
	defer teardown()

	const numRequests = 100
	requests := make([]*AsyncRequest, numRequests)
	var wg sync.WaitGroup
	wg.Add(numRequests)
	for ii := range requests {
		go func() {
			defer wg.Done()
			request := model.NewAsyncRequest()
			requests[ii] = request
			assert.NoError(t, request.BindInput("x0", tensors.FromScalar(float32(ii))))
			assert.NoError(t, request.BindInput("x1", tensors.FromScalar(float32(ii+1))))
			assert.NoError(t, request.Start())
		}()
	}
	wg.Wait()

	// All complete, each with its own result -- no cross-contamination.
	for ii, request := range requests {
		require.NoError(t, request.Wait())
		assert.Equal(t, StatusCompleted, request.Status())
		output, err := request.GetOutput("y")
		require.NoError(t, err)
		want := float32((ii + ii + 1) * 3)
		assert.Equal(t, want, tensors.ToScalar[float32](output))
		require.NoError(t, request.Close())
	}
}

func TestAsyncCloseWaitsForRunning(t *testing.T) {
	gate := make(chan struct{})
	model, err := Compile(buildAddMulGraph(t, 1), DefaultConfig(), Executors{Compute: gatedExecutor{gate: gate}})
	require.NoError(t, err)
	defer func() { require.NoError(t, model.Close()) }()

	request := model.NewAsyncRequest()
	bindScalars(t, request, 1, 1)
	require.NoError(t, request.Start())

	closed := make(chan struct{})
	go func() {
		assert.NoError(t, request.Close())
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while the request was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(gate)
	<-closed
	assert.True(t, request.Status().IsTerminal())
	require.ErrorIs(t, request.Start(), ErrInvalidState)
}

package engine

import (
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gosling-ml/gosling/device"
	"github.com/gosling-ml/gosling/exec"
	"github.com/gosling-ml/gosling/tensors"
)

// SyncRequest executes one inference pass at a time against its model.
//
// A request is private to one caller: it may be reused for any number of
// passes, rebinding inputs in between, but must not be used from multiple
// goroutines at once. Concurrency comes from creating multiple requests
// against the same model.
type SyncRequest struct {
	model *Model
	id    uuid.UUID

	// inputs are the bound input tensors, indexed like the graph parameters.
	inputs []*tensors.Tensor

	// outputs are the results of the last successful Infer, indexed like the
	// graph output ports. nil before the first Infer.
	outputs []*tensors.Tensor

	// profiles of the last Infer, when profiling is enabled.
	profiles []exec.NodeProfile

	closed bool
}

// NewSyncRequest creates an inference request bound to this model. The
// request holds a reference that keeps the model alive until Close.
func (m *Model) NewSyncRequest() *SyncRequest {
	m.acquire()
	return &SyncRequest{
		model:  m,
		id:     uuid.New(),
		inputs: make([]*tensors.Tensor, len(m.graph.Inputs())),
	}
}

// Model returns the model this request executes against.
func (r *SyncRequest) Model() *Model { return r.model }

// BindInput binds a tensor to the named input port, validating it against the
// port's declared shape and dtype. Binding errors are recoverable: rebind a
// conforming tensor and retry.
func (r *SyncRequest) BindInput(port string, t *tensors.Tensor) error {
	idx := -1
	for ii, param := range r.model.graph.Inputs() {
		if param.ParameterName() == port {
			idx = ii
			break
		}
	}
	if idx == -1 {
		return errors.Wrapf(ErrNotFound, "model %q has no input port %q", r.model.Name(), port)
	}
	want := r.model.graph.Inputs()[idx].Shape()
	if t == nil {
		return errors.Wrapf(ErrTypeMismatch, "input port %q: nil tensor", port)
	}
	if t.DType() != want.DType {
		return errors.Wrapf(ErrTypeMismatch, "input port %q: expected %s, got %s", port, want.DType, t.DType())
	}
	if !t.Shape().Equal(want) {
		return errors.Wrapf(ErrShapeMismatch, "input port %q: expected %s, got %s", port, want, t.Shape())
	}
	r.inputs[idx] = t
	return nil
}

// Infer runs the graph over the bound inputs and stores the resulting output
// tensors. It is safe to call repeatedly on the same request with different
// bindings: results are reset each call, never accumulated.
//
// Every failure surfaces as ErrExecution -- including panics out of the
// kernels (a zero divisor in integer data, say). Infer never unwinds into the
// caller, which on the asynchronous path would kill an executor worker and
// strand the waiters.
func (r *SyncRequest) Infer() error {
	if r.closed {
		return errors.Wrapf(ErrExecution, "request %s is closed", r.id)
	}
	// Drop the previous results first, so a failed pass leaves no stale ones.
	r.outputs = nil
	r.profiles = nil

	for ii, t := range r.inputs {
		if t == nil {
			return errors.Wrapf(ErrExecution, "input port %q is not bound",
				r.model.graph.Inputs()[ii].ParameterName())
		}
	}

	var inferErr error
	exception := exceptions.Try(func() {
		inferErr = r.infer()
	})
	if exception != nil {
		cause, ok := exception.(error)
		if !ok {
			cause = errors.Errorf("%v", exception)
		}
		return errors.Wrapf(ErrExecution, "inferring model %q: %v", r.model.Name(), cause)
	}
	return inferErr
}

// infer is the execution pass proper, with inputs validated and results
// already reset.
func (r *SyncRequest) infer() error {
	m := r.model

	// Concurrent passes over the same model are bounded by Config.NumStreams.
	m.slots.Acquire()
	defer m.slots.Release()

	// Each input is copied into a device buffer private to this pass, so the
	// executor is free to scribble over them (all are donated).
	inputBuffers := make([]*device.Buffer, len(r.inputs))
	donate := make([]bool, len(r.inputs))
	for ii, t := range r.inputs {
		inputBuffers[ii] = m.ctx.BufferFromTensor(t)
		donate[ii] = true
	}

	var outputBuffers []*device.Buffer
	var err error
	if m.config.EnableProfiling {
		outputBuffers, r.profiles, err = m.exe.RunProfiled(inputBuffers, donate)
	} else {
		outputBuffers, err = m.exe.Run(inputBuffers, donate)
	}
	if err != nil {
		return errors.Wrapf(ErrExecution, "inferring model %q: %v", m.Name(), err)
	}

	outputs := make([]*tensors.Tensor, len(outputBuffers))
	for ii, buf := range outputBuffers {
		outputs[ii], err = m.ctx.TensorFromBuffer(buf)
		m.ctx.ReleaseBuffer(buf)
		if err != nil {
			return errors.Wrapf(ErrExecution, "reading output #%d of model %q: %v", ii, m.Name(), err)
		}
	}
	r.outputs = outputs
	if klog.V(2).Enabled() {
		klog.Infof("request %s: inferred model %q", r.id, m.Name())
	}
	return nil
}

// GetOutput returns the result tensor of the named output port. It fails with
// ErrNotFound before the first successful Infer and for unknown port names.
func (r *SyncRequest) GetOutput(port string) (*tensors.Tensor, error) {
	if r.outputs == nil {
		return nil, errors.Wrapf(ErrNotFound, "no results for output port %q: call Infer first", port)
	}
	for ii, name := range r.model.graph.OutputNames() {
		if name == port {
			return r.outputs[ii], nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "model %q has no output port %q", r.model.Name(), port)
}

// Profile returns the per-node execution times of the last Infer. It is
// non-nil only if the model was compiled with EnableProfiling.
func (r *SyncRequest) Profile() []exec.NodeProfile { return r.profiles }

// Close releases the request's reference to the model. The request must not
// be used afterwards.
func (r *SyncRequest) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.model.release()
	return nil
}

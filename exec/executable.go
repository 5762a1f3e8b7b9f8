// Package exec turns a frozen computation graph into an executable form and
// runs inference passes over it.
//
// An Executable assumes the graph it holds is valid: shapes and dtypes were
// checked while the graph was built, so execution can be written without
// duplicate checks. Buffers for intermediate results are recycled through the
// device context pools, and the caller may donate input buffers for in-place
// reuse.
//
// Ops within one execution run sequentially: the node slice is already a
// topological order of the graph. Concurrency comes from running many
// inference requests over the same Executable, which is safe -- the graph is
// immutable and every execution keeps its results in a private executionBuffers.
package exec

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gosling-ml/gosling/device"
	"github.com/gosling-ml/gosling/graph"
)

// Executable holds a frozen graph in a form ready to run.
type Executable struct {
	ctx *device.Context
	g   *graph.Graph

	// numNodesToProcess is max(outputs)+1; nodes above it cannot contribute
	// to any output.
	numNodesToProcess int

	// numUses is the number of times each node's result is consumed during one
	// execution. It has length numNodesToProcess.
	numUses []int

	// maxInputs of all nodes used in the graph.
	maxInputs int

	// executionBuffersPool allows reuse of executionBuffers across runs.
	executionBuffersPool sync.Pool
}

// executionBuffers holds the intermediate results during the execution of the
// graph. One is used per execution (taken from the pool).
type executionBuffers struct {
	// results hold the calculated value of each node.
	results []*device.Buffer

	// numUsed counts how many times each node's result was consumed so far.
	// Once it matches Executable.numUses the buffer can be released or reused.
	numUsed []int

	// owned indicates whether the corresponding buffer in results belongs to
	// this execution (temporary or donated), in which case it can be reused or
	// released once no longer needed.
	owned []bool

	// reused for each op.
	opInputBuffers []*device.Buffer
	opInputsOwned  []bool
}

// NodeProfile records the execution wall time of one node; produced when an
// execution is profiled.
type NodeProfile struct {
	NodeIdx int
	OpType  graph.OpType
	Elapsed time.Duration
}

// NewExecutable prepares the frozen graph for execution on the given device
// context. The graph must have been validated and frozen by the caller.
func NewExecutable(ctx *device.Context, g *graph.Graph) *Executable {
	var numNodesToProcess int
	for _, output := range g.Outputs() {
		numNodesToProcess = max(numNodesToProcess, output.Idx()+1)
	}

	e := &Executable{
		ctx:               ctx,
		g:                 g,
		numNodesToProcess: numNodesToProcess,
		numUses:           make([]int, numNodesToProcess),
	}
	for nodeIdx := range numNodesToProcess {
		e.maxInputs = max(e.maxInputs, len(g.Node(nodeIdx).Inputs()))
	}

	// Count uses for each node starting from the outputs.
	for _, output := range g.Outputs() {
		e.countNodeUses(output)
	}

	e.executionBuffersPool = sync.Pool{
		New: func() any {
			return &executionBuffers{
				results:        make([]*device.Buffer, numNodesToProcess),
				numUsed:        make([]int, numNodesToProcess),
				owned:          make([]bool, numNodesToProcess),
				opInputBuffers: make([]*device.Buffer, e.maxInputs),
				opInputsOwned:  make([]bool, e.maxInputs),
			}
		},
	}
	return e
}

// countNodeUses recursively counts how many times a node's result is consumed.
func (e *Executable) countNodeUses(node *graph.Node) {
	nodeIdx := node.Idx()
	e.numUses[nodeIdx]++
	if e.numUses[nodeIdx] == 1 {
		for _, input := range node.Inputs() {
			e.countNodeUses(input)
		}
	}
}

// Graph returns the frozen graph this executable runs.
func (e *Executable) Graph() *graph.Graph { return e.g }

// Context returns the device context executions allocate buffers from.
func (e *Executable) Context() *device.Context { return e.ctx }

// Run executes the graph over the input buffers, given in the graph's
// parameter order, and returns the output buffers in the graph's output-port
// order.
//
// Inputs marked in donate become invalid after the call: their storage may be
// reused for intermediate or output buffers. If donate is nil no buffer is
// donated.
func (e *Executable) Run(inputs []*device.Buffer, donate []bool) ([]*device.Buffer, error) {
	outputs, _, err := e.run(inputs, donate, false)
	return outputs, err
}

// RunProfiled is Run with per-node wall-time recording.
func (e *Executable) RunProfiled(inputs []*device.Buffer, donate []bool) ([]*device.Buffer, []NodeProfile, error) {
	return e.run(inputs, donate, true)
}

func (e *Executable) run(inputs []*device.Buffer, donate []bool, profile bool) ([]*device.Buffer, []NodeProfile, error) {
	graphInputs := e.g.Inputs()
	if len(inputs) != len(graphInputs) {
		return nil, nil, errors.Errorf("Run: expected %d inputs, got %d", len(graphInputs), len(inputs))
	}
	if len(donate) == 0 {
		donate = make([]bool, len(inputs))
	}
	for ii, input := range inputs {
		if !input.Valid() {
			return nil, nil, errors.Errorf("Run: input buffer #%d is nil or was already finalized", ii)
		}
		nodeInput := graphInputs[ii]
		if !input.Shape().Equal(nodeInput.Shape()) {
			return nil, nil, errors.Errorf("Run: parameter %q (input #%d) for %q: expected shape %s, got %s",
				nodeInput.ParameterName(), ii, e.g.Name(), nodeInput.Shape(), input.Shape())
		}
	}

	// Get execution buffers from the pool and reset them.
	execBuf := e.executionBuffersPool.Get().(*executionBuffers)
	for ii := range e.numNodesToProcess {
		execBuf.numUsed[ii] = 0
		execBuf.owned[ii] = false
		execBuf.results[ii] = nil
	}

	// Initialize parameter results with the input buffers.
	for ii, input := range inputs {
		inputNodeIdx := graphInputs[ii].Idx()
		if inputNodeIdx >= e.numNodesToProcess {
			// Parameter not used by any output: release it right away if donated.
			if donate[ii] {
				e.ctx.ReleaseBuffer(input)
			}
			continue
		}
		execBuf.results[inputNodeIdx] = input
		execBuf.owned[inputNodeIdx] = donate[ii]
	}

	var profiles []NodeProfile
	if profile {
		profiles = make([]NodeProfile, 0, e.numNodesToProcess)
	}

	// Loop over nodes sequentially: they are already sorted by their
	// dependencies, so nodes are always ready to execute.
	for nodeIdx := range e.numNodesToProcess {
		node := e.g.Node(nodeIdx)
		if execBuf.results[nodeIdx] != nil {
			// Parameters have their results pre-filled.
			continue
		}
		if e.numUses[nodeIdx] == 0 {
			// Not used by any of the outputs of this executable.
			continue
		}
		var start time.Time
		if profile {
			start = time.Now()
		}
		err := e.executeNode(node, execBuf)
		if err != nil {
			e.releaseAll(execBuf)
			return nil, nil, err
		}
		if profile {
			profiles = append(profiles, NodeProfile{NodeIdx: nodeIdx, OpType: node.OpType(), Elapsed: time.Since(start)})
		}
	}

	// Collect outputs, copying those not owned by this execution.
	graphOutputs := e.g.Outputs()
	outputs := make([]*device.Buffer, len(graphOutputs))
	for ii, outputNode := range graphOutputs {
		outNodeIdx := outputNode.Idx()
		outBuf := execBuf.results[outNodeIdx]
		execBuf.results[outNodeIdx] = nil // Make sure we don't return the same buffer twice.
		if outBuf == nil {
			// An output node repeated on several ports: its buffer was taken
			// by an earlier port, clone from that one.
			for jj := range ii {
				if graphOutputs[jj].Idx() == outNodeIdx {
					var err error
					outBuf, err = e.ctx.CloneBuffer(outputs[jj])
					if err != nil {
						return nil, nil, err
					}
					break
				}
			}
			if outBuf == nil {
				return nil, nil, errors.Errorf("Run: output #%d (%s, nodeIdx=%d) was not calculated (!?) -- "+
					"this is a bug, it should never have happened", ii, outputNode.OpType(), outNodeIdx)
			}
			outputs[ii] = outBuf
			continue
		}
		if !execBuf.owned[outNodeIdx] {
			// Make a copy of the buffer since we don't own it.
			var err error
			outBuf, err = e.ctx.CloneBuffer(outBuf)
			if err != nil {
				return nil, nil, err
			}
		}
		outputs[ii] = outBuf
	}

	e.releaseAll(execBuf)
	return outputs, profiles, nil
}

// releaseAll returns leftover owned intermediate buffers to the pools and the
// executionBuffers itself to its pool.
func (e *Executable) releaseAll(execBuf *executionBuffers) {
	for nodeIdx, buf := range execBuf.results {
		if buf == nil || !execBuf.owned[nodeIdx] {
			continue
		}
		e.ctx.ReleaseBuffer(buf)
		execBuf.results[nodeIdx] = nil
	}
	e.executionBuffersPool.Put(execBuf)
}

// executeNode runs the kernel for the given node, reading pre-calculated
// results of its inputs from execBuf and storing its result there.
func (e *Executable) executeNode(node *graph.Node, execBuf *executionBuffers) error {
	nodeIdx := node.Idx()

	// Constants materialize to a fresh buffer copied from the graph-owned
	// tensor, so downstream kernels are free to reuse it in place.
	if node.OpType() == graph.OpTypeConstant {
		execBuf.results[nodeIdx] = e.ctx.BufferFromTensor(node.ConstValue())
		execBuf.owned[nodeIdx] = true
		return nil
	}

	numInputs := len(node.Inputs())
	inputBuffers := execBuf.opInputBuffers[:numInputs]
	inputsOwned := execBuf.opInputsOwned[:numInputs]
	for ii, input := range node.Inputs() {
		inputNodeIdx := input.Idx()
		inputBuffers[ii] = execBuf.results[inputNodeIdx]
		if !inputBuffers[ii].Valid() {
			return errors.Errorf("Run: input #%d of node %s is not calculated yet (!?) -- "+
				"this is a bug, it should never have happened", ii, node)
		}
		// Only "own" the input if this is the last use of it.
		inputsOwned[ii] = execBuf.owned[inputNodeIdx] && e.numUses[inputNodeIdx]-execBuf.numUsed[inputNodeIdx] == 1
	}

	nodeKernel := kernels[node.OpType()]
	if nodeKernel == nil {
		return errors.Errorf("Run: kernel for op type %s not implemented", node.OpType())
	}
	output, err := nodeKernel(e.ctx, node, inputBuffers, inputsOwned)
	if err != nil {
		return errors.WithMessagef(err, "while executing %s", node)
	}
	execBuf.results[nodeIdx] = output
	execBuf.owned[nodeIdx] = true

	// Mark inputs used; release those exhausted (unless the kernel took them).
	for ii, inputNode := range node.Inputs() {
		inputNodeIdx := inputNode.Idx()
		execBuf.numUsed[inputNodeIdx]++
		if inputBuffers[ii] == nil {
			// Kernel reused the buffer for its output.
			execBuf.results[inputNodeIdx] = nil
			execBuf.owned[inputNodeIdx] = false
			continue
		}
		if execBuf.numUsed[inputNodeIdx] == e.numUses[inputNodeIdx] && execBuf.owned[inputNodeIdx] {
			e.ctx.ReleaseBuffer(inputBuffers[ii])
			execBuf.results[inputNodeIdx] = nil
			execBuf.owned[inputNodeIdx] = false
		}
	}
	return nil
}

// EvalNode executes a single node over explicit input buffers, outside of a
// full graph execution. It is used by the constant-folding transformation.
// The inputs are not donated.
func EvalNode(ctx *device.Context, node *graph.Node, inputs []*device.Buffer) (*device.Buffer, error) {
	if node.OpType() == graph.OpTypeConstant {
		return ctx.BufferFromTensor(node.ConstValue()), nil
	}
	nodeKernel := kernels[node.OpType()]
	if nodeKernel == nil {
		return nil, errors.Errorf("EvalNode: kernel for op type %s not implemented", node.OpType())
	}
	inputsOwned := make([]bool, len(inputs))
	output, err := nodeKernel(ctx, node, inputs, inputsOwned)
	if err != nil {
		return nil, errors.WithMessagef(err, "while evaluating %s", node)
	}
	return output, nil
}

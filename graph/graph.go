// Package graph implements the declarative computation graph compiled and
// executed by the engine.
//
// A Graph is built incrementally: Parameter and Constant create leaf nodes,
// the op methods (Add, Mul, MatMul, ...) create interior nodes, and Output
// names the result ports. Nodes are only created when their inputs already
// exist, so the node slice is a natural DAG ordering -- the executor relies
// on this invariance. Shapes and dtypes are inferred and validated at node
// creation time.
//
// To simplify error handling during building, all Graph-building functions
// panic with a stack trace in case of errors. See package
// github.com/gomlx/exceptions. The engine package catches anything thrown
// here and normalizes it at its compile boundary.
package graph

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"

	"github.com/gosling-ml/gosling/tensors"
	"github.com/gosling-ml/gosling/types/shapes"
)

// Graph keeps track of a computation being defined or transformed.
//
// Once given to the engine for compilation it is frozen: any attempt to add or
// rewrite nodes panics.
type Graph struct {
	name   string
	frozen bool

	// nodes are only created when their inputs have already been created,
	// so nodes are stored in a valid execution order.
	nodes []*Node

	// inputs are the Parameter nodes, in creation order. Parameter names are
	// the graph's input port names.
	inputs []*Node

	// outputs are the nodes named by Output calls; outputNames are the
	// corresponding output port names.
	outputs     []*Node
	outputNames []string
}

// New creates an empty Graph with the given name.
func New(name string) *Graph {
	return &Graph{name: name}
}

// Name of the computation held by the graph.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the number of nodes created so far.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Node returns the node with the given index. Node indices are stable until
// the graph is compacted.
func (g *Graph) Node(idx int) *Node { return g.nodes[idx] }

// Inputs returns the Parameter nodes in creation order.
// The returned slice is owned by the Graph, don't modify it.
func (g *Graph) Inputs() []*Node { return g.inputs }

// Outputs returns the output nodes in the order they were named with Output.
// The returned slice is owned by the Graph, don't modify it.
func (g *Graph) Outputs() []*Node { return g.outputs }

// OutputNames returns the output port names, aligned with Outputs.
func (g *Graph) OutputNames() []string { return g.outputNames }

// InputNames returns the input port names, aligned with Inputs.
func (g *Graph) InputNames() []string {
	names := make([]string, len(g.inputs))
	for ii, node := range g.inputs {
		names[ii] = node.name
	}
	return names
}

// Freeze marks the graph as immutable. Any op creation or rewrite afterwards
// panics. Freezing is irreversible.
func (g *Graph) Freeze() { g.frozen = true }

// IsFrozen returns whether Freeze has been called.
func (g *Graph) IsFrozen() bool { return g.frozen }

// Node in the computation graph.
type Node struct {
	graph *Graph

	// idx in Graph.nodes.
	idx    int
	opType OpType
	inputs []*Node

	// shape of the node's value, inferred at creation.
	shape shapes.Shape

	// name of the input port, set for OpTypeParameter only.
	name string

	// value of the node, set for OpTypeConstant only.
	value *tensors.Tensor
}

// OpType of the node.
func (n *Node) OpType() OpType { return n.opType }

// Shape of the node's value.
func (n *Node) Shape() shapes.Shape { return n.shape }

// Idx returns the node's index in the graph. Stable until the graph is compacted.
func (n *Node) Idx() int { return n.idx }

// Inputs of the node. The returned slice is owned by the Node, don't modify it.
func (n *Node) Inputs() []*Node { return n.inputs }

// ParameterName returns the input port name for Parameter nodes, "" otherwise.
func (n *Node) ParameterName() string { return n.name }

// ConstValue returns the value of Constant nodes, nil otherwise.
func (n *Node) ConstValue() *tensors.Tensor { return n.value }

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n.opType == OpTypeParameter {
		return fmt.Sprintf("#%d %s(%q)%s", n.idx, n.opType, n.name, n.shape)
	}
	return fmt.Sprintf("#%d %s%s", n.idx, n.opType, n.shape)
}

// newNode adds a new node of the given opType and shape to the graph.
// It's used by the op methods when creating new nodes.
func (g *Graph) newNode(opType OpType, shape shapes.Shape, inputs ...*Node) *Node {
	n := &Node{
		graph:  g,
		opType: opType,
		idx:    len(g.nodes),
		shape:  shape,
		inputs: slices.Clone(inputs),
	}
	g.nodes = append(g.nodes, n)
	return n
}

// checkOps validates that the op inputs are non-nil and belong to this graph,
// and that the graph is still mutable.
func (g *Graph) checkOps(opName string, ops ...*Node) {
	if g == nil {
		exceptions.Panicf("%s: Graph is nil (!?), cannot build a computation", opName)
	}
	if g.frozen {
		exceptions.Panicf("cannot add new op (%s) to graph %q, it has been frozen (compiled)", opName, g.name)
	}
	for idx, op := range ops {
		if op == nil {
			exceptions.Panicf("%s: input op #%d is nil!?", opName, idx)
		}
		if op.graph != g {
			exceptions.Panicf("%s: input op #%d was created on a different graph (%q), cannot use it with graph %q",
				opName, idx, op.graph.name, g.name)
		}
	}
}

// Parameter creates an input port for the computation. The name must be unique
// among the graph's parameters. During execution of a compiled graph the
// corresponding value is fed in the order the parameters were created.
func (g *Graph) Parameter(name string, shape shapes.Shape) *Node {
	g.checkOps("Parameter")
	if name == "" {
		exceptions.Panicf("graph %q: Parameter requires a non-empty port name", g.name)
	}
	if !shape.Ok() {
		exceptions.Panicf("graph %q: Parameter %q given invalid shape", g.name, name)
	}
	for _, input := range g.inputs {
		if input.name == name {
			exceptions.Panicf("graph %q already has a parameter named %q", g.name, name)
		}
	}
	n := g.newNode(OpTypeParameter, shape.Clone())
	n.name = name
	g.inputs = append(g.inputs, n)
	return n
}

// Constant creates a node holding the given value. The value is aliased by the
// graph; it must not be mutated afterwards.
func (g *Graph) Constant(value *tensors.Tensor) *Node {
	g.checkOps("Constant")
	if value == nil {
		exceptions.Panicf("graph %q: Constant requires a non-nil value", g.name)
	}
	n := g.newNode(OpTypeConstant, value.Shape().Clone())
	n.value = value
	return n
}

// ConstantOf creates a Constant node from the flat values and dimensions --
// a shortcut to Constant(tensors.FromFlatDataAndDimensions(...)).
func (g *Graph) ConstantOf(flat any, dimensions ...int) *Node {
	g.checkOps("ConstantOf")
	return g.Constant(tensors.FromAnyFlatAndDimensions(flat, dimensions...))
}

// Output names an output port of the computation resolving to the given node.
// Output port names must be unique; the same node may feed several ports.
func (g *Graph) Output(name string, op *Node) {
	g.checkOps("Output", op)
	if name == "" {
		exceptions.Panicf("graph %q: Output requires a non-empty port name", g.name)
	}
	if slices.Contains(g.outputNames, name) {
		exceptions.Panicf("graph %q already has an output named %q", g.name, name)
	}
	g.outputs = append(g.outputs, op)
	g.outputNames = append(g.outputNames, name)
}

// Identity returns a node that is a no-op view of x. Transformation passes
// elide these before execution.
func (g *Graph) Identity(x *Node) *Node {
	g.checkOps("Identity", x)
	return g.newNode(OpTypeIdentity, x.shape.Clone(), x)
}

// addUnaryOp adds a generic unary op, inferring and validating the shape.
func (g *Graph) addUnaryOp(opType OpType, x *Node) *Node {
	g.checkOps(opType.String(), x)
	shape, err := UnaryOpShape(opType, x.shape)
	if err != nil {
		panic(err)
	}
	return g.newNode(opType, shape, x)
}

// addBinaryOp adds a generic binary op, inferring and validating the shape.
func (g *Graph) addBinaryOp(opType OpType, lhs, rhs *Node) *Node {
	g.checkOps(opType.String(), lhs, rhs)
	shape, err := BinaryOpShape(opType, lhs.shape, rhs.shape)
	if err != nil {
		panic(err)
	}
	return g.newNode(opType, shape, lhs, rhs)
}

// Neg returns the element-wise negation of x.
func (g *Graph) Neg(x *Node) *Node { return g.addUnaryOp(OpTypeNeg, x) }

// Abs returns the element-wise absolute value of x.
func (g *Graph) Abs(x *Node) *Node { return g.addUnaryOp(OpTypeAbs, x) }

// Exp returns the element-wise e^x.
func (g *Graph) Exp(x *Node) *Node { return g.addUnaryOp(OpTypeExp, x) }

// Log returns the element-wise natural logarithm of x.
func (g *Graph) Log(x *Node) *Node { return g.addUnaryOp(OpTypeLog, x) }

// Sqrt returns the element-wise square root of x.
func (g *Graph) Sqrt(x *Node) *Node { return g.addUnaryOp(OpTypeSqrt, x) }

// Tanh returns the element-wise hyperbolic tangent of x.
func (g *Graph) Tanh(x *Node) *Node { return g.addUnaryOp(OpTypeTanh, x) }

// Logistic returns the element-wise sigmoid 1/(1+e^-x).
func (g *Graph) Logistic(x *Node) *Node { return g.addUnaryOp(OpTypeLogistic, x) }

// Add returns lhs+rhs element-wise. One of the operands may be a scalar (or
// size-1), in which case it is broadcast to the other's shape.
func (g *Graph) Add(lhs, rhs *Node) *Node { return g.addBinaryOp(OpTypeAdd, lhs, rhs) }

// Sub returns lhs-rhs element-wise, with the same broadcasting rule as Add.
func (g *Graph) Sub(lhs, rhs *Node) *Node { return g.addBinaryOp(OpTypeSub, lhs, rhs) }

// Mul returns lhs*rhs element-wise, with the same broadcasting rule as Add.
func (g *Graph) Mul(lhs, rhs *Node) *Node { return g.addBinaryOp(OpTypeMul, lhs, rhs) }

// Div returns lhs/rhs element-wise, with the same broadcasting rule as Add.
func (g *Graph) Div(lhs, rhs *Node) *Node { return g.addBinaryOp(OpTypeDiv, lhs, rhs) }

// Max returns the element-wise maximum, with the same broadcasting rule as Add.
func (g *Graph) Max(lhs, rhs *Node) *Node { return g.addBinaryOp(OpTypeMax, lhs, rhs) }

// Min returns the element-wise minimum, with the same broadcasting rule as Add.
func (g *Graph) Min(lhs, rhs *Node) *Node { return g.addBinaryOp(OpTypeMin, lhs, rhs) }

// Pow returns lhs^rhs element-wise, with the same broadcasting rule as Add.
func (g *Graph) Pow(lhs, rhs *Node) *Node { return g.addBinaryOp(OpTypePow, lhs, rhs) }

// MatMul returns the rank-2 matrix product of lhs and rhs.
func (g *Graph) MatMul(lhs, rhs *Node) *Node {
	g.checkOps(OpTypeMatMul.String(), lhs, rhs)
	shape, err := MatMulShape(lhs.shape, rhs.shape)
	if err != nil {
		panic(err)
	}
	return g.newNode(OpTypeMatMul, shape, lhs, rhs)
}

// ReduceSum sums all elements of x into a scalar.
func (g *Graph) ReduceSum(x *Node) *Node {
	g.checkOps(OpTypeReduceSum.String(), x)
	shape, err := ReduceOpShape(OpTypeReduceSum, x.shape)
	if err != nil {
		panic(err)
	}
	return g.newNode(OpTypeReduceSum, shape, x)
}

// ReduceMax takes the maximum over all elements of x into a scalar.
func (g *Graph) ReduceMax(x *Node) *Node {
	g.checkOps(OpTypeReduceMax.String(), x)
	shape, err := ReduceOpShape(OpTypeReduceMax, x.shape)
	if err != nil {
		panic(err)
	}
	return g.newNode(OpTypeReduceMax, shape, x)
}

// Validate checks the structural invariants of the graph: at least one output,
// every node's inputs created before the node (which also implies acyclicity)
// and every node's shape valid.
func (g *Graph) Validate() error {
	return g.validate()
}

package transform

import (
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gosling-ml/gosling/device"
	"github.com/gosling-ml/gosling/exec"
	"github.com/gosling-ml/gosling/graph"
	"github.com/gosling-ml/gosling/tensors"
)

// identityElision redirects every use of an Identity node to its input.
type identityElision struct{}

func (identityElision) Name() string { return "identity-elision" }

func (identityElision) Transform(g *graph.Graph) error {
	numNodes := g.NumNodes()
	changed := false
	for idx := range numNodes {
		node := g.Node(idx)
		if node.OpType() != graph.OpTypeIdentity {
			continue
		}
		g.ReplaceNode(node, node.Inputs()[0])
		changed = true
	}
	if changed {
		g.Compact()
	}
	return nil
}

// algebraicSimplification removes operations with a neutral constant operand:
// x+0, x-0, x*1, x/1 and their commuted forms for Add and Mul.
type algebraicSimplification struct{}

func (algebraicSimplification) Name() string { return "algebraic-simplification" }

func (algebraicSimplification) Transform(g *graph.Graph) error {
	numNodes := g.NumNodes()
	changed := false
	for idx := range numNodes {
		node := g.Node(idx)
		var neutral float64
		var commutative bool
		switch node.OpType() {
		case graph.OpTypeAdd:
			neutral, commutative = 0, true
		case graph.OpTypeSub:
			neutral, commutative = 0, false
		case graph.OpTypeMul:
			neutral, commutative = 1, true
		case graph.OpTypeDiv:
			neutral, commutative = 1, false
		default:
			continue
		}
		lhs, rhs := node.Inputs()[0], node.Inputs()[1]
		if isConstantFill(rhs, neutral) && lhs.Shape().Equal(node.Shape()) {
			g.ReplaceNode(node, lhs)
			changed = true
		} else if commutative && isConstantFill(lhs, neutral) && rhs.Shape().Equal(node.Shape()) {
			g.ReplaceNode(node, rhs)
			changed = true
		}
	}
	if changed {
		g.Compact()
	}
	return nil
}

// isConstantFill reports whether node is a Constant with every element equal
// to want.
func isConstantFill(node *graph.Node, want float64) bool {
	if node.OpType() != graph.OpTypeConstant {
		return false
	}
	switch flat := node.ConstValue().Flat().(type) {
	case []int32:
		for _, v := range flat {
			if float64(v) != want {
				return false
			}
		}
	case []int64:
		for _, v := range flat {
			if float64(v) != want {
				return false
			}
		}
	case []float32:
		for _, v := range flat {
			if float64(v) != want {
				return false
			}
		}
	case []float64:
		for _, v := range flat {
			if v != want {
				return false
			}
		}
	case []float16.Float16:
		for _, v := range flat {
			if float64(v.Float32()) != want {
				return false
			}
		}
	default:
		return false
	}
	return true
}

// constantFolding evaluates nodes whose inputs are all constants and replaces
// them with the result. A single forward pass folds whole constant
// subexpressions, since replacements are visible to the nodes that follow.
type constantFolding struct{}

func (constantFolding) Name() string { return "constant-folding" }

func (constantFolding) Transform(g *graph.Graph) error {
	ctx := device.NewContext(0)
	numNodes := g.NumNodes()
	changed := false
	for idx := range numNodes {
		node := g.Node(idx)
		switch node.OpType() {
		case graph.OpTypeParameter, graph.OpTypeConstant:
			continue
		}
		if len(node.Inputs()) == 0 {
			continue
		}
		allConstant := true
		for _, input := range node.Inputs() {
			if input.OpType() != graph.OpTypeConstant {
				allConstant = false
				break
			}
		}
		if !allConstant {
			continue
		}
		value, err := evalConstantNode(ctx, node)
		if err != nil {
			return errors.WithMessagef(err, "folding %s", node)
		}
		g.ReplaceWithConstant(node, value)
		changed = true
	}
	if changed {
		g.Compact()
	}
	return nil
}

func evalConstantNode(ctx *device.Context, node *graph.Node) (*tensors.Tensor, error) {
	inputs := make([]*device.Buffer, len(node.Inputs()))
	for ii, input := range node.Inputs() {
		inputs[ii] = ctx.BufferFromTensor(input.ConstValue())
	}
	output, err := exec.EvalNode(ctx, node, inputs)
	for _, buf := range inputs {
		if buf.Valid() {
			ctx.ReleaseBuffer(buf)
		}
	}
	if err != nil {
		return nil, err
	}
	value, err := ctx.TensorFromBuffer(output)
	ctx.ReleaseBuffer(output)
	return value, err
}

// deadNodeElimination drops nodes not reachable from any output port.
// Parameters always stay, they are part of the model signature.
type deadNodeElimination struct{}

func (deadNodeElimination) Name() string { return "dead-node-elimination" }

func (deadNodeElimination) Transform(g *graph.Graph) error {
	g.Compact()
	return nil
}

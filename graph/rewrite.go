package graph

// Rewriting support used by the transformation passes (package transform).
// All rewrites keep the graph invariant that every node's inputs precede it
// in the node slice; Compact restores it after a batch of replacements.

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/gosling-ml/gosling/tensors"
)

// ReplaceNode rewrites every use of old -- node inputs and output ports -- to
// point at replacement instead. Parameter nodes cannot be replaced, they are
// the graph's input ports.
//
// Call Compact afterwards to drop the now-unused node and restore the
// execution ordering of the node slice.
func (g *Graph) ReplaceNode(old, replacement *Node) {
	g.checkOps("ReplaceNode", old, replacement)
	if old.opType == OpTypeParameter {
		exceptions.Panicf("graph %q: cannot replace parameter %q, it is an input port", g.name, old.name)
	}
	if old == replacement {
		return
	}
	for _, node := range g.nodes {
		for ii, input := range node.inputs {
			if input == old {
				node.inputs[ii] = replacement
			}
		}
	}
	for ii, output := range g.outputs {
		if output == old {
			g.outputs[ii] = replacement
		}
	}
}

// ReplaceWithConstant creates a Constant node holding value and redirects all
// uses of node to it. It returns the new Constant node.
func (g *Graph) ReplaceWithConstant(node *Node, value *tensors.Tensor) *Node {
	g.checkOps("ReplaceWithConstant", node)
	if value == nil {
		exceptions.Panicf("graph %q: ReplaceWithConstant requires a non-nil value", g.name)
	}
	if !value.Shape().Equal(node.shape) {
		exceptions.Panicf("graph %q: ReplaceWithConstant value shape %s does not match node shape %s",
			g.name, value.Shape(), node.shape)
	}
	constant := g.Constant(value)
	g.ReplaceNode(node, constant)
	return constant
}

// Compact rebuilds the node slice in topological order, keeping only the
// parameters and the nodes reachable from the output ports. Node indices are
// renumbered.
func (g *Graph) Compact() {
	g.checkOps("Compact")
	kept := make([]*Node, 0, len(g.nodes))
	visited := make(map[*Node]bool, len(g.nodes))
	var visit func(node *Node)
	visit = func(node *Node) {
		if visited[node] {
			return
		}
		visited[node] = true
		for _, input := range node.inputs {
			visit(input)
		}
		kept = append(kept, node)
	}
	// Parameters are input ports: they survive even if no output consumes them.
	for _, input := range g.inputs {
		visit(input)
	}
	for _, output := range g.outputs {
		visit(output)
	}
	for ii, node := range kept {
		node.idx = ii
	}
	g.nodes = kept
}

// validate checks the structural invariants. See Graph.Validate.
func (g *Graph) validate() error {
	if len(g.outputs) == 0 {
		return errors.Errorf("graph %q has no output ports", g.name)
	}
	for idx, node := range g.nodes {
		if node.idx != idx {
			return errors.Errorf("graph %q: node %s stored at position %d", g.name, node, idx)
		}
		if !node.shape.Ok() {
			return errors.Errorf("graph %q: node %s has an invalid shape", g.name, node)
		}
		for _, input := range node.inputs {
			if input.graph != g {
				return errors.Errorf("graph %q: node %s has an input from a different graph", g.name, node)
			}
			if input.idx >= node.idx {
				return errors.Errorf("graph %q: node %s depends on node %s created after it", g.name, node, input)
			}
		}
		switch node.opType {
		case OpTypeConstant:
			if node.value == nil {
				return errors.Errorf("graph %q: constant node %s has no value", g.name, node)
			}
			if !node.value.Shape().Equal(node.shape) {
				return errors.Errorf("graph %q: constant node %s value shape %s mismatch", g.name, node, node.value.Shape())
			}
		case OpTypeParameter:
			if node.name == "" {
				return errors.Errorf("graph %q: parameter node %s has no port name", g.name, node)
			}
		case OpTypeInvalid:
			return errors.Errorf("graph %q: node #%d has an invalid op type", g.name, node.idx)
		}
	}
	for _, output := range g.outputs {
		if output.graph != g {
			return errors.Errorf("graph %q: output node from a different graph", g.name)
		}
	}
	return nil
}

package graph

// Serialization of a Graph into two payloads: a structural description (gob)
// and a constants blob (the raw flat data of every Constant node,
// concatenated). Keeping the constants out of the structural payload lets a
// cached artifact be framed the same way weights files usually are: small
// topology header, large opaque data section.

import (
	"bytes"
	"encoding/gob"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gosling-ml/gosling/tensors"
	"github.com/gosling-ml/gosling/types/shapes"
)

// serializedNode is the gob image of a Node. Constants record where their flat
// data lives in the constants blob.
type serializedNode struct {
	OpType OpType
	Inputs []int
	DType  dtypes.DType
	Dims   []int

	// Name is the input port name, for Parameter nodes.
	Name string

	// BlobOffset/BlobLen locate a Constant node's flat data in the constants
	// blob. BlobOffset is -1 for non-constant nodes.
	BlobOffset int64
	BlobLen    int64
}

// serializedGraph is the gob image of a Graph.
type serializedGraph struct {
	Name        string
	Nodes       []serializedNode
	Outputs     []int
	OutputNames []string
}

// Serialize returns the two payloads describing the graph: the structural
// description and the constants blob. Constant data is stored in host memory
// order.
func (g *Graph) Serialize() (structural, constants []byte, err error) {
	var blob bytes.Buffer
	serialized := serializedGraph{
		Name:        g.name,
		Nodes:       make([]serializedNode, len(g.nodes)),
		Outputs:     make([]int, len(g.outputs)),
		OutputNames: g.outputNames,
	}
	for ii, node := range g.nodes {
		sNode := serializedNode{
			OpType:     node.opType,
			Inputs:     make([]int, len(node.inputs)),
			DType:      node.shape.DType,
			Dims:       node.shape.Dimensions,
			Name:       node.name,
			BlobOffset: -1,
		}
		for jj, input := range node.inputs {
			sNode.Inputs[jj] = input.idx
		}
		if node.opType == OpTypeConstant {
			data := node.value.RawBytes()
			sNode.BlobOffset = int64(blob.Len())
			sNode.BlobLen = int64(len(data))
			blob.Write(data)
		}
		serialized.Nodes[ii] = sNode
	}
	for ii, output := range g.outputs {
		serialized.Outputs[ii] = output.idx
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err = enc.Encode(&serialized); err != nil {
		err = errors.Wrapf(err, "failed to serialize graph %q structure", g.name)
		return
	}
	return buf.Bytes(), blob.Bytes(), nil
}

// Deserialize reconstructs a Graph from the two payloads produced by
// Serialize. Every structural reference is bounds-checked, so a corrupt or
// truncated payload returns an error rather than panicking.
func Deserialize(structural, constants []byte) (*Graph, error) {
	var serialized serializedGraph
	dec := gob.NewDecoder(bytes.NewReader(structural))
	if err := dec.Decode(&serialized); err != nil {
		return nil, errors.Wrapf(err, "failed to decode graph structure")
	}

	g := New(serialized.Name)
	g.nodes = make([]*Node, 0, len(serialized.Nodes))
	for idx, sNode := range serialized.Nodes {
		node := &Node{
			graph:  g,
			idx:    idx,
			opType: sNode.OpType,
			name:   sNode.Name,
			inputs: make([]*Node, len(sNode.Inputs)),
		}
		if len(sNode.Dims) > 0 {
			node.shape = shapes.Make(sNode.DType, sNode.Dims...)
		} else {
			node.shape = shapes.Scalar(sNode.DType)
		}
		for jj, inputIdx := range sNode.Inputs {
			if inputIdx < 0 || inputIdx >= idx {
				return nil, errors.Errorf("graph %q: node #%d references input #%d, out of range",
					serialized.Name, idx, inputIdx)
			}
			node.inputs[jj] = g.nodes[inputIdx]
		}
		switch node.opType {
		case OpTypeParameter:
			g.inputs = append(g.inputs, node)
		case OpTypeConstant:
			value, err := constantFromBlob(node.shape, constants, sNode.BlobOffset, sNode.BlobLen)
			if err != nil {
				return nil, errors.WithMessagef(err, "graph %q: node #%d", serialized.Name, idx)
			}
			node.value = value
		}
		g.nodes = append(g.nodes, node)
	}

	if len(serialized.Outputs) != len(serialized.OutputNames) {
		return nil, errors.Errorf("graph %q: %d outputs but %d output names",
			serialized.Name, len(serialized.Outputs), len(serialized.OutputNames))
	}
	for ii, outputIdx := range serialized.Outputs {
		if outputIdx < 0 || outputIdx >= len(g.nodes) {
			return nil, errors.Errorf("graph %q: output #%d references node #%d, out of range",
				serialized.Name, ii, outputIdx)
		}
		g.outputs = append(g.outputs, g.nodes[outputIdx])
		g.outputNames = append(g.outputNames, serialized.OutputNames[ii])
	}
	if err := g.validate(); err != nil {
		return nil, errors.WithMessagef(err, "deserialized graph is inconsistent")
	}
	return g, nil
}

// constantFromBlob rebuilds a constant tensor from its slice of the blob.
func constantFromBlob(shape shapes.Shape, blob []byte, offset, length int64) (*tensors.Tensor, error) {
	// The two bounds are checked separately: offset+length could overflow.
	if offset < 0 || length < 0 || offset > int64(len(blob)) || length > int64(len(blob))-offset {
		return nil, errors.Errorf("constant data at offset %d, %d bytes, out of bounds of %d bytes blob",
			offset, length, len(blob))
	}
	if uintptr(length) != shape.Memory() {
		return nil, errors.Errorf("constant data has %d bytes, shape %s takes %d", length, shape, shape.Memory())
	}
	t := tensors.FromShape(shape)
	copy(t.RawBytes(), blob[offset:offset+length])
	return t, nil
}

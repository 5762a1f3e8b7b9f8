package graph

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosling-ml/gosling/tensors"
	"github.com/gosling-ml/gosling/types/shapes"
)

func buildSerializableGraph(t *testing.T) *Graph {
	g := New("roundtrip")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 2, 2))
	w := g.Constant(tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2))
	bias := g.Constant(tensors.FromScalar(float32(0.5)))
	g.Output("y", g.Add(g.MatMul(x, w), bias))
	g.Output("sum", g.ReduceSum(x))
	require.NoError(t, g.Validate())
	return g
}

func TestSerializeRoundTrip(t *testing.T) {
	g := buildSerializableGraph(t)
	structural, constants, err := g.Serialize()
	require.NoError(t, err)
	require.NotEmpty(t, structural)
	require.NotEmpty(t, constants)

	got, err := Deserialize(structural, constants)
	require.NoError(t, err)
	require.NoError(t, got.Validate())

	assert.Equal(t, g.Name(), got.Name())
	assert.Equal(t, g.NumNodes(), got.NumNodes())
	assert.Equal(t, g.InputNames(), got.InputNames())
	assert.Equal(t, g.OutputNames(), got.OutputNames())
	for idx := range g.NumNodes() {
		want, have := g.Node(idx), got.Node(idx)
		assert.Equal(t, want.OpType(), have.OpType())
		assert.True(t, want.Shape().Equal(have.Shape()))
		if want.OpType() == OpTypeConstant {
			assert.True(t, want.ConstValue().Equal(have.ConstValue()))
		}
	}
}

func TestDeserializeRejectsCorruptStructural(t *testing.T) {
	g := buildSerializableGraph(t)
	structural, constants, err := g.Serialize()
	require.NoError(t, err)

	_, err = Deserialize(structural[:len(structural)/2], constants)
	require.Error(t, err)

	_, err = Deserialize([]byte("not a graph"), constants)
	require.Error(t, err)
}

func TestDeserializeRejectsCorruptConstants(t *testing.T) {
	g := buildSerializableGraph(t)
	structural, constants, err := g.Serialize()
	require.NoError(t, err)

	// Truncated constants blob: offsets point past the end.
	_, err = Deserialize(structural, constants[:1])
	require.Error(t, err)

	// Missing blob entirely.
	_, err = Deserialize(structural, nil)
	require.Error(t, err)
}

// A blob offset near MaxInt64 together with a plausible length makes
// offset+length wrap around: it must be rejected like any other out-of-bounds
// reference, not sliced.
func TestDeserializeRejectsOverflowingBlobOffset(t *testing.T) {
	g := buildSerializableGraph(t)
	structural, constants, err := g.Serialize()
	require.NoError(t, err)

	var serialized serializedGraph
	require.NoError(t, gob.NewDecoder(bytes.NewReader(structural)).Decode(&serialized))
	corrupted := false
	for ii := range serialized.Nodes {
		if serialized.Nodes[ii].OpType == OpTypeConstant {
			serialized.Nodes[ii].BlobOffset = math.MaxInt64 - serialized.Nodes[ii].BlobLen + 1
			corrupted = true
		}
	}
	require.True(t, corrupted)
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(&serialized))

	require.NotPanics(t, func() {
		_, err = Deserialize(buf.Bytes(), constants)
		assert.ErrorContains(t, err, "out of bounds")
	})
}

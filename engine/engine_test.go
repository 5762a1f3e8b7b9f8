package engine

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosling-ml/gosling/graph"
	"github.com/gosling-ml/gosling/tensors"
	"github.com/gosling-ml/gosling/types/shapes"
)

// buildAddMulGraph builds y = (x0 + x1) * k for scalar inputs.
func buildAddMulGraph(t *testing.T, k float32) *graph.Graph {
	g := graph.New("add-mul")
	x0 := g.Parameter("x0", shapes.Scalar(dtypes.Float32))
	x1 := g.Parameter("x1", shapes.Scalar(dtypes.Float32))
	g.Output("y", g.Mul(g.Add(x0, x1), g.Constant(tensors.FromScalar(k))))
	require.NoError(t, g.Validate())
	return g
}

func compileAddMul(t *testing.T, k float32) *Model {
	model, err := Compile(buildAddMulGraph(t, k), DefaultConfig(), Executors{})
	require.NoError(t, err)
	return model
}

func TestCompileAndSyncInfer(t *testing.T) {
	model := compileAddMul(t, 4)
	defer func() { require.NoError(t, model.Close()) }()

	request := model.NewSyncRequest()
	defer func() { require.NoError(t, request.Close()) }()

	require.NoError(t, request.BindInput("x0", tensors.FromScalar(float32(2))))
	require.NoError(t, request.BindInput("x1", tensors.FromScalar(float32(3))))
	require.NoError(t, request.Infer())

	output, err := request.GetOutput("y")
	require.NoError(t, err)
	assert.Equal(t, float32((2+3)*4), tensors.ToScalar[float32](output))
}

func TestCompileNormalizesFailures(t *testing.T) {
	// Invalid graph: no outputs.
	g := graph.New("broken")
	g.Parameter("x", shapes.Make(dtypes.Float32, 2))
	_, err := Compile(g, DefaultConfig(), Executors{})
	require.ErrorIs(t, err, ErrCompilation)

	// A transformer failure surfaces as the same error kind.
	g2 := buildAddMulGraph(t, 1)
	_, err = CompileWithTransformer(g2, DefaultConfig(), failingTransformer{}, Executors{})
	require.ErrorIs(t, err, ErrCompilation)
	assert.ErrorContains(t, err, "transformer exploded")

	// Even a non-error panic from the transformer is normalized.
	g3 := buildAddMulGraph(t, 1)
	_, err = CompileWithTransformer(g3, DefaultConfig(), panickyTransformer{}, Executors{})
	require.ErrorIs(t, err, ErrCompilation)

	_, err = Compile(nil, DefaultConfig(), Executors{})
	require.ErrorIs(t, err, ErrCompilation)
}

type failingTransformer struct{}

func (failingTransformer) Run(*graph.Graph) error { return errors.New("transformer exploded") }

type panickyTransformer struct{}

func (panickyTransformer) Run(*graph.Graph) error { panic("not even an error") }

func TestDisableTransformations(t *testing.T) {
	g := graph.New("verbatim")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 2))
	g.Output("y", g.Identity(x))
	numNodes := g.NumNodes()

	config := DefaultConfig()
	config.DisableTransformations = true
	model, err := Compile(g, config, Executors{})
	require.NoError(t, err)
	defer func() { require.NoError(t, model.Close()) }()

	// The Identity node survives: the graph was used verbatim.
	assert.Equal(t, numNodes, model.RuntimeGraph().NumNodes())
}

func TestGetProperty(t *testing.T) {
	config := DefaultConfig()
	config.NumStreams = 4
	model, err := Compile(buildAddMulGraph(t, 1), config, Executors{})
	require.NoError(t, err)
	defer func() { require.NoError(t, model.Close()) }()

	name, err := model.GetProperty(PropModelName)
	require.NoError(t, err)
	assert.Equal(t, "add-mul", name)

	optimal, err := model.GetProperty(PropOptimalNumberRequests)
	require.NoError(t, err)
	assert.Equal(t, 4, optimal)

	cached, err := model.GetProperty(PropLoadedFromCache)
	require.NoError(t, err)
	assert.Equal(t, false, cached)

	devices, err := model.GetProperty(PropExecutionDevices)
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.0"}, devices)

	supported, err := model.GetProperty(PropSupportedProperties)
	require.NoError(t, err)
	assert.Contains(t, supported, PropModelName)

	// Unknown names fall through the configuration and fail with NotFound.
	streams, err := model.GetProperty(KeyNumStreams)
	require.NoError(t, err)
	assert.Equal(t, 4, streams)
	_, err = model.GetProperty("nonexistent_key_xyz")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetPropertyIsFrozen(t *testing.T) {
	model := compileAddMul(t, 1)
	defer func() { require.NoError(t, model.Close()) }()

	require.ErrorIs(t, model.SetProperty(KeyNumStreams, 8), ErrNotImplemented)
	require.ErrorIs(t, model.SetProperty("anything_at_all", true), ErrNotImplemented)
}

func TestBindInputValidation(t *testing.T) {
	model := compileAddMul(t, 1)
	defer func() { require.NoError(t, model.Close()) }()
	request := model.NewSyncRequest()
	defer func() { require.NoError(t, request.Close()) }()

	require.ErrorIs(t, request.BindInput("nope", tensors.FromScalar(float32(1))), ErrNotFound)
	require.ErrorIs(t, request.BindInput("x0", tensors.FromScalar(float64(1))), ErrTypeMismatch)
	require.ErrorIs(t, request.BindInput("x0", tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)), ErrShapeMismatch)

	// A binding error is recoverable: rebind correctly and infer.
	require.NoError(t, request.BindInput("x0", tensors.FromScalar(float32(1))))
	require.NoError(t, request.BindInput("x1", tensors.FromScalar(float32(2))))
	require.NoError(t, request.Infer())
}

func TestInferRequiresAllInputs(t *testing.T) {
	model := compileAddMul(t, 1)
	defer func() { require.NoError(t, model.Close()) }()
	request := model.NewSyncRequest()
	defer func() { require.NoError(t, request.Close()) }()

	require.NoError(t, request.BindInput("x0", tensors.FromScalar(float32(1))))
	require.ErrorIs(t, request.Infer(), ErrExecution)

	// Outputs are only available after a successful Infer.
	_, err := request.GetOutput("y")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInferIdempotence(t *testing.T) {
	model := compileAddMul(t, 3)
	defer func() { require.NoError(t, model.Close()) }()
	request := model.NewSyncRequest()
	defer func() { require.NoError(t, request.Close()) }()

	require.NoError(t, request.BindInput("x0", tensors.FromScalar(float32(2))))
	require.NoError(t, request.BindInput("x1", tensors.FromScalar(float32(5))))

	require.NoError(t, request.Infer())
	first, err := request.GetOutput("y")
	require.NoError(t, err)
	require.NoError(t, request.Infer())
	second, err := request.GetOutput("y")
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.Equal(t, float32(21), tensors.ToScalar[float32](second))

	// Rebinding changes the result, no state is accumulated.
	require.NoError(t, request.BindInput("x1", tensors.FromScalar(float32(0))))
	require.NoError(t, request.Infer())
	third, err := request.GetOutput("y")
	require.NoError(t, err)
	assert.Equal(t, float32(6), tensors.ToScalar[float32](third))
}

func TestProfilingEnabled(t *testing.T) {
	config := DefaultConfig()
	config.EnableProfiling = true
	model, err := Compile(buildAddMulGraph(t, 2), config, Executors{})
	require.NoError(t, err)
	defer func() { require.NoError(t, model.Close()) }()

	request := model.NewSyncRequest()
	defer func() { require.NoError(t, request.Close()) }()
	require.NoError(t, request.BindInput("x0", tensors.FromScalar(float32(1))))
	require.NoError(t, request.BindInput("x1", tensors.FromScalar(float32(2))))
	require.NoError(t, request.Infer())
	assert.NotEmpty(t, request.Profile())
}

func TestExportImportRoundTrip(t *testing.T) {
	model := compileAddMul(t, 7)
	defer func() { require.NoError(t, model.Close()) }()

	var artifact bytes.Buffer
	require.NoError(t, model.Export(&artifact))

	imported, err := Import(bytes.NewReader(artifact.Bytes()), DefaultConfig(), Executors{})
	require.NoError(t, err)
	defer func() { require.NoError(t, imported.Close()) }()

	assert.True(t, imported.LoadedFromCache())
	cached, err := imported.GetProperty(PropLoadedFromCache)
	require.NoError(t, err)
	assert.Equal(t, true, cached)

	// Identical outputs for identical inputs.
	for _, m := range []*Model{model, imported} {
		request := m.NewSyncRequest()
		require.NoError(t, request.BindInput("x0", tensors.FromScalar(float32(2))))
		require.NoError(t, request.BindInput("x1", tensors.FromScalar(float32(3))))
		require.NoError(t, request.Infer())
		output, err := request.GetOutput("y")
		require.NoError(t, err)
		assert.Equal(t, float32(35), tensors.ToScalar[float32](output))
		require.NoError(t, request.Close())
	}
}

func TestExportFraming(t *testing.T) {
	model := compileAddMul(t, 1)
	defer func() { require.NoError(t, model.Close()) }()

	var artifact bytes.Buffer
	require.NoError(t, model.Export(&artifact))
	raw := artifact.Bytes()

	// [u64 len_struct][struct bytes][u64 len_blob][blob bytes], little-endian.
	require.Greater(t, len(raw), 16)
	structLen := binary.LittleEndian.Uint64(raw[:8])
	require.Less(t, int(structLen), len(raw)-16)
	blobLen := binary.LittleEndian.Uint64(raw[8+structLen : 16+structLen])
	assert.Equal(t, len(raw), 16+int(structLen)+int(blobLen))
}

func TestImportRejectsCorruptLength(t *testing.T) {
	model := compileAddMul(t, 1)
	defer func() { require.NoError(t, model.Close()) }()

	var artifact bytes.Buffer
	require.NoError(t, model.Export(&artifact))
	raw := artifact.Bytes()
	structLen := binary.LittleEndian.Uint64(raw[:8])

	// Corrupt the second length field to exceed the remaining stream.
	corrupt := bytes.Clone(raw)
	binary.LittleEndian.PutUint64(corrupt[8+structLen:], uint64(len(raw))*100)
	_, err := Import(bytes.NewReader(corrupt), DefaultConfig(), Executors{})
	require.ErrorIs(t, err, ErrDeserialization)

	// An absurd length must fail before any allocation, not OOM or hang.
	binary.LittleEndian.PutUint64(corrupt[8+structLen:], 1<<62)
	_, err = Import(bytes.NewReader(corrupt), DefaultConfig(), Executors{})
	require.ErrorIs(t, err, ErrDeserialization)

	// Truncated stream.
	_, err = Import(bytes.NewReader(raw[:len(raw)-4]), DefaultConfig(), Executors{})
	require.ErrorIs(t, err, ErrDeserialization)

	// Empty stream.
	_, err = Import(bytes.NewReader(nil), DefaultConfig(), Executors{})
	require.ErrorIs(t, err, ErrDeserialization)
}

func TestModelReferenceCounting(t *testing.T) {
	model := compileAddMul(t, 1)
	request := model.NewSyncRequest()

	// Closing the external handle first: the request keeps the model alive.
	require.NoError(t, model.Close())
	require.NoError(t, request.BindInput("x0", tensors.FromScalar(float32(1))))
	require.NoError(t, request.BindInput("x1", tensors.FromScalar(float32(1))))
	require.NoError(t, request.Infer())
	require.NoError(t, request.Close())

	// Creating a request after the last reference dropped is a programming
	// error and panics.
	require.Panics(t, func() { model.NewSyncRequest() })
}

// buildDivGraph builds quot = num / den for scalar int32 inputs.
func buildDivGraph(t *testing.T) *graph.Graph {
	g := graph.New("div")
	num := g.Parameter("num", shapes.Scalar(dtypes.Int32))
	den := g.Parameter("den", shapes.Scalar(dtypes.Int32))
	g.Output("quot", g.Div(num, den))
	require.NoError(t, g.Validate())
	return g
}

// A data-dependent kernel fault (integer division by zero) must come back as
// ErrExecution, never unwind out of Infer.
func TestInferDivideByZeroFails(t *testing.T) {
	model, err := Compile(buildDivGraph(t), DefaultConfig(), Executors{})
	require.NoError(t, err)
	defer func() { require.NoError(t, model.Close()) }()

	request := model.NewSyncRequest()
	defer func() { require.NoError(t, request.Close()) }()
	require.NoError(t, request.BindInput("num", tensors.FromScalar(int32(6))))
	require.NoError(t, request.BindInput("den", tensors.FromScalar(int32(0))))

	require.NotPanics(t, func() { err = request.Infer() })
	require.ErrorIs(t, err, ErrExecution)
	_, err = request.GetOutput("quot")
	require.ErrorIs(t, err, ErrNotFound)

	// The request recovers: rebind a sane divisor and retry.
	require.NoError(t, request.BindInput("den", tensors.FromScalar(int32(3))))
	require.NoError(t, request.Infer())
	output, err := request.GetOutput("quot")
	require.NoError(t, err)
	assert.Equal(t, int32(2), tensors.ToScalar[int32](output))
}

func TestSyncConcurrentInfers(t *testing.T) {
	config := DefaultConfig()
	config.NumStreams = 2
	model, err := Compile(buildAddMulGraph(t, 3), config, Executors{})
	require.NoError(t, err)
	defer func() { require.NoError(t, model.Close()) }()

	const numGoroutines = 32
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for ii := range numGoroutines {
		go func() {
			defer wg.Done()
			request := model.NewSyncRequest()
			defer func() { assert.NoError(t, request.Close()) }()
			assert.NoError(t, request.BindInput("x0", tensors.FromScalar(float32(ii))))
			assert.NoError(t, request.BindInput("x1", tensors.FromScalar(float32(ii+1))))
			assert.NoError(t, request.Infer())
			output, err := request.GetOutput("y")
			if assert.NoError(t, err) {
				assert.Equal(t, float32((2*ii+1)*3), tensors.ToScalar[float32](output))
			}
		}()
	}
	wg.Wait()
}

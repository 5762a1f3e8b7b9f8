// Package engine implements the compiled-model execution engine: it compiles
// a computation graph under a configuration into a Model, and serves
// synchronous and asynchronous inference requests against it.
//
// A Model is shared: every request holds a reference keeping it alive, and
// the model is torn down only when the last request and the last external
// holder release it. The graph held by a Model is frozen and read-only, so
// any number of requests may execute concurrently.
package engine

import (
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gosling-ml/gosling/device"
	"github.com/gosling-ml/gosling/exec"
	"github.com/gosling-ml/gosling/graph"
	"github.com/gosling-ml/gosling/transform"
	"github.com/gosling-ml/gosling/types/xsync"
)

// Read-only model property names served by Model.GetProperty.
const (
	PropModelName             = "model_name"
	PropSupportedProperties   = "supported_properties"
	PropExecutionDevices      = "execution_devices"
	PropLoadedFromCache       = "loaded_from_cache"
	PropOptimalNumberRequests = "optimal_number_of_infer_requests"
)

// Executor schedules a task for execution. The engine never creates threads
// on its own: all asynchronous work is submitted to executors supplied at
// Compile time. Submit must not block on the task itself.
type Executor interface {
	Submit(task func())
}

// Executors are the three schedulers an asynchronous request pipeline runs
// on. Compute runs the inference itself; Wait resolves blocking waiters
// without consuming compute workers; Callback isolates user callbacks so they
// cannot stall inference throughput.
//
// Any nil executor defaults to running tasks inline on the submitting
// goroutine.
type Executors struct {
	Compute  Executor
	Wait     Executor
	Callback Executor
}

// GraphTransformer rewrites a graph in place before it is frozen, preserving
// its observable semantics. transform.Pipeline implements it.
type GraphTransformer interface {
	Run(g *graph.Graph) error
}

// Model is a compiled, immutable, concurrently-invokable unit of execution.
type Model struct {
	id     uuid.UUID
	graph  *graph.Graph
	config Config
	ctx    *device.Context
	exe    *exec.Executable
	execs  Executors

	// slots bounds concurrent execution passes to Config.NumStreams.
	slots *xsync.Semaphore

	loadedFromCache bool

	// refs counts the external handle plus one per live request. The model is
	// torn down when it drops to zero.
	refs atomic.Int64
}

type inlineExecutor struct{}

func (inlineExecutor) Submit(task func()) { task() }

func (e Executors) normalized() Executors {
	if e.Compute == nil {
		e.Compute = inlineExecutor{}
	}
	if e.Wait == nil {
		e.Wait = inlineExecutor{}
	}
	if e.Callback == nil {
		e.Callback = inlineExecutor{}
	}
	return e
}

// Compile transforms g with the default transformation pipeline and prepares
// it for execution. See CompileWithTransformer.
func Compile(g *graph.Graph, config Config, execs Executors) (*Model, error) {
	return CompileWithTransformer(g, config, transform.Default(), execs)
}

// CompileWithTransformer compiles g under config, applying the given
// transformer unless config.DisableTransformations is set.
//
// Compile takes ownership of g: the caller must not mutate it afterwards.
// Every failure -- an invalid graph, a transformer error, a panic from called
// libraries -- surfaces as ErrCompilation with the underlying cause attached.
// On failure no model is returned.
func CompileWithTransformer(g *graph.Graph, config Config, transformer GraphTransformer, execs Executors) (m *Model, err error) {
	if g == nil {
		return nil, newCompilationError(nil, "nil graph")
	}
	config = config.normalized()

	// Arbitrary panics from the transformer or from graph validation are
	// normalized here: callers only ever see ErrCompilation from this
	// boundary, whatever the underlying failure was.
	exception := exceptions.Try(func() {
		if err := g.Validate(); err != nil {
			panic(err)
		}
		if !config.DisableTransformations && transformer != nil && !g.IsFrozen() {
			if err := transformer.Run(g); err != nil {
				panic(err)
			}
		}
		g.Freeze()
	})
	if exception != nil {
		cause, ok := exception.(error)
		if !ok {
			cause = errors.Errorf("%v", exception)
		}
		return nil, newCompilationError(cause, "compiling graph %q", g.Name())
	}

	m = &Model{
		id:     uuid.New(),
		graph:  g,
		config: config,
		ctx:    device.ContextFor(config.DeviceID),
		execs:  execs.normalized(),
		slots:  xsync.NewSemaphore(config.NumStreams),
	}
	m.exe = exec.NewExecutable(m.ctx, g)
	m.refs.Store(1)
	klog.V(1).Infof("compiled model %s (%q): %d nodes on %s", m.id, g.Name(), g.NumNodes(), m.ctx)
	return m, nil
}

// Name returns the name of the compiled graph.
func (m *Model) Name() string { return m.graph.Name() }

// Config returns the frozen configuration snapshot.
func (m *Model) Config() Config { return m.config }

// LoadedFromCache reports whether this model came from Import rather than
// Compile.
func (m *Model) LoadedFromCache() bool { return m.loadedFromCache }

// RuntimeGraph returns the transformed graph actually executed. It is frozen;
// callers may only inspect it.
func (m *Model) RuntimeGraph() *graph.Graph { return m.graph }

// GetProperty serves the fixed set of read-only model properties and falls
// back to the configuration options for other names. Unknown names fail with
// ErrNotFound.
func (m *Model) GetProperty(name string) (any, error) {
	switch name {
	case PropModelName:
		return m.graph.Name(), nil
	case PropSupportedProperties:
		return []string{
			PropModelName, PropSupportedProperties, PropExecutionDevices,
			PropLoadedFromCache, PropOptimalNumberRequests,
			KeyDeviceID, KeyNumStreams, KeyEnableProfiling, KeyDisableTransformations, KeyPerfMode,
		}, nil
	case PropExecutionDevices:
		return []string{m.ctx.String()}, nil
	case PropLoadedFromCache:
		return m.loadedFromCache, nil
	case PropOptimalNumberRequests:
		// A hint: callers may create more requests than this.
		return m.config.NumStreams, nil
	}
	return m.config.Get(name)
}

// SetProperty always fails with ErrNotImplemented: a compiled model's
// configuration is frozen, mutating it would invalidate assumptions baked
// into already-issued requests.
func (m *Model) SetProperty(name string, value any) error {
	return errors.Wrapf(ErrNotImplemented, "model configuration is frozen, cannot set %q", name)
}

// acquire registers one more holder of the model.
func (m *Model) acquire() {
	if m.refs.Add(1) <= 1 {
		exceptions.Panicf("model %s used after it was released", m.id)
	}
}

// release drops one holder and tears the model down on the last one.
func (m *Model) release() {
	refs := m.refs.Add(-1)
	if refs < 0 {
		exceptions.Panicf("model %s released more times than acquired", m.id)
	}
	if refs == 0 {
		klog.V(1).Infof("model %s (%q) released", m.id, m.graph.Name())
	}
}

// Close releases the external reference. Outstanding requests keep the model
// alive until they are closed too.
func (m *Model) Close() error {
	m.release()
	return nil
}

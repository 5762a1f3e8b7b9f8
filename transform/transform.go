// Package transform implements graph-to-graph transformations applied between
// loading a model and handing it to the execution engine.
//
// Transformations work on a mutable, not yet frozen graph and must preserve
// its observable semantics: same parameters, same output ports, same values
// computed, only cheaper.
package transform

import (
	"k8s.io/klog/v2"

	"github.com/pkg/errors"

	"github.com/gosling-ml/gosling/graph"
)

// Transformer rewrites a graph in place.
type Transformer interface {
	// Name identifies the transformation in logs and errors.
	Name() string

	// Transform applies the rewrite. The graph must not be frozen.
	Transform(g *graph.Graph) error
}

// Pipeline applies a sequence of transformers in order.
type Pipeline []Transformer

// Default returns the standard transformation pipeline: elide Identity nodes,
// simplify algebraic no-ops, fold constant subexpressions and drop whatever
// became unreachable.
func Default() Pipeline {
	return Pipeline{
		identityElision{},
		algebraicSimplification{},
		constantFolding{},
		deadNodeElimination{},
	}
}

// Run applies all transformers to g. It stops at the first failing
// transformer.
func (p Pipeline) Run(g *graph.Graph) error {
	if g.IsFrozen() {
		return errors.Errorf("transform: graph %q is frozen", g.Name())
	}
	for _, t := range p {
		before := g.NumNodes()
		if err := t.Transform(g); err != nil {
			return errors.WithMessagef(err, "transformation %q on graph %q", t.Name(), g.Name())
		}
		if after := g.NumNodes(); after != before && klog.V(1).Enabled() {
			klog.Infof("transformation %q: graph %q went from %d to %d nodes", t.Name(), g.Name(), before, after)
		}
	}
	if err := g.Validate(); err != nil {
		return errors.WithMessagef(err, "graph %q invalid after transformations", g.Name())
	}
	return nil
}

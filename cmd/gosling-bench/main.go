// gosling-bench compiles a small demo model and hammers it with concurrent
// asynchronous inference requests, reporting throughput and latency.
//
// It doubles as an end-to-end smoke test of the engine: every request's
// output is checked against a sequential reference run.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/gosling-ml/gosling/engine"
	"github.com/gosling-ml/gosling/executors"
	"github.com/gosling-ml/gosling/graph"
	"github.com/gosling-ml/gosling/tensors"
	"github.com/gosling-ml/gosling/types/shapes"

	"github.com/gomlx/gopjrt/dtypes"
)

var (
	flagRequests = flag.Int("requests", 1000, "Number of asynchronous inference requests to issue.")
	flagWorkers  = flag.Int("workers", runtime.NumCPU(), "Workers in the compute executor pool.")
	flagBatch    = flag.Int("batch", 32, "Batch dimension of the demo model input.")
	flagFeatures = flag.Int("features", 128, "Feature dimension of the demo model input.")
	flagProfile  = flag.Bool("profile", false, "Record and report per-node execution times.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if err := run(); err != nil {
		klog.Errorf("gosling-bench: %+v", err)
		os.Exit(1)
	}
}

// buildDemoModel is a two-layer perceptron with random frozen weights:
// y = tanh(x @ w0 + b0) @ w1.
func buildDemoModel(batch, features int) *graph.Graph {
	hidden := features / 2
	rng := rand.New(rand.NewPCG(42, 17))
	randomTensor := func(dims ...int) *tensors.Tensor {
		t := tensors.FromShape(shapes.Make(dtypes.Float32, dims...))
		flat := t.Flat().([]float32)
		for ii := range flat {
			flat[ii] = float32(rng.NormFloat64()) * 0.1
		}
		return t
	}

	g := graph.New("bench-mlp")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, batch, features))
	w0 := g.Constant(randomTensor(features, hidden))
	b0 := g.Constant(randomTensor(1, 1))
	w1 := g.Constant(randomTensor(hidden, 1))
	h := g.Tanh(g.Add(g.MatMul(x, w0), b0))
	g.Output("y", g.MatMul(h, w1))
	return g
}

func run() error {
	g := buildDemoModel(*flagBatch, *flagFeatures)

	computePool := executors.NewPool(*flagWorkers)
	defer computePool.Close()
	waitPool := executors.NewPool(1)
	defer waitPool.Close()
	callbackPool := executors.NewPool(1)
	defer callbackPool.Close()

	config := engine.DefaultConfig()
	config.NumStreams = *flagWorkers
	config.EnableProfiling = *flagProfile

	compileStart := time.Now()
	model, err := engine.Compile(g, config, engine.Executors{
		Compute:  computePool,
		Wait:     waitPool,
		Callback: callbackPool,
	})
	if err != nil {
		return err
	}
	defer model.Close()
	compileTime := time.Since(compileStart)

	var exported bytes.Buffer
	if err := model.Export(&exported); err != nil {
		return err
	}

	// Distinct input per request, and a sequential reference output for each.
	numRequests := *flagRequests
	rng := rand.New(rand.NewPCG(7, 13))
	inputs := make([]*tensors.Tensor, numRequests)
	for ii := range inputs {
		t := tensors.FromShape(shapes.Make(dtypes.Float32, *flagBatch, *flagFeatures))
		flat := t.Flat().([]float32)
		for jj := range flat {
			flat[jj] = float32(rng.NormFloat64())
		}
		inputs[ii] = t
	}
	references := make([]*tensors.Tensor, numRequests)
	refRequest := model.NewSyncRequest()
	for ii, input := range inputs {
		if err := refRequest.BindInput("x", input); err != nil {
			return err
		}
		if err := refRequest.Infer(); err != nil {
			return err
		}
		output, err := refRequest.GetOutput("y")
		if err != nil {
			return err
		}
		references[ii] = output
	}
	if err := refRequest.Close(); err != nil {
		return err
	}

	// The async run proper.
	bar := progressbar.Default(int64(numRequests), "inferring")
	requests := make([]*engine.AsyncRequest, numRequests)
	start := time.Now()
	for ii := range requests {
		requests[ii] = model.NewAsyncRequest()
		if err := requests[ii].BindInput("x", inputs[ii]); err != nil {
			return err
		}
		if err := requests[ii].Start(); err != nil {
			return err
		}
	}
	mismatches := 0
	for ii, request := range requests {
		if err := request.Wait(); err != nil {
			return err
		}
		output, err := request.GetOutput("y")
		if err != nil {
			return err
		}
		if !output.Equal(references[ii]) {
			mismatches++
		}
		_ = bar.Add(1)
	}
	elapsed := time.Since(start)
	_ = bar.Finish()

	if *flagProfile {
		reportProfile(model, inputs[0])
	}

	for _, request := range requests {
		if err := request.Close(); err != nil {
			return err
		}
	}

	perRequest := elapsed / time.Duration(numRequests)
	throughput := float64(numRequests) / elapsed.Seconds()
	table := newSummaryTable()
	table.Row("model", model.Name())
	table.Row("nodes", fmt.Sprintf("%d", model.RuntimeGraph().NumNodes()))
	table.Row("artifact size", humanize.Bytes(uint64(exported.Len())))
	table.Row("compile time", compileTime.String())
	table.Row("requests", humanize.Comma(int64(numRequests)))
	table.Row("workers", fmt.Sprintf("%d", *flagWorkers))
	table.Row("total time", elapsed.String())
	table.Row("per request", perRequest.String())
	table.Row("throughput", fmt.Sprintf("%.1f req/s", throughput))
	table.Row("mismatches", fmt.Sprintf("%d", mismatches))
	fmt.Println(table.Render())

	if mismatches > 0 {
		return fmt.Errorf("%d of %d requests diverged from the sequential reference", mismatches, numRequests)
	}
	return nil
}

// reportProfile runs one profiled pass and prints the per-node times.
func reportProfile(model *engine.Model, input *tensors.Tensor) {
	request := model.NewSyncRequest()
	defer func() { _ = request.Close() }()
	if err := request.BindInput("x", input); err != nil {
		klog.Warningf("profiling pass: %v", err)
		return
	}
	if err := request.Infer(); err != nil {
		klog.Warningf("profiling pass: %v", err)
		return
	}
	table := newSummaryTable()
	table.Row("node", "op", "time")
	for _, p := range request.Profile() {
		table.Row(fmt.Sprintf("#%d", p.NodeIdx), p.OpType.String(), p.Elapsed.String())
	}
	fmt.Println(table.Render())
}

var tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))

func newSummaryTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
		})
}

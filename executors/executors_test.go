package executors

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInline(t *testing.T) {
	ran := false
	Inline{}.Submit(func() { ran = true })
	// Inline runs synchronously: the task finished before Submit returned.
	assert.True(t, ran)
}

func TestPoolRunsAllTasks(t *testing.T) {
	pool := NewPool(4)
	var counter atomic.Int64
	var wg sync.WaitGroup
	const numTasks = 1000
	wg.Add(numTasks)
	for range numTasks {
		pool.Submit(func() {
			counter.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	pool.Close()
	assert.Equal(t, int64(numTasks), counter.Load())
}

func TestPoolCloseWaitsForQueued(t *testing.T) {
	pool := NewPool(1)
	var counter atomic.Int64
	for range 10 {
		pool.Submit(func() { counter.Add(1) })
	}
	pool.Close()
	assert.Equal(t, int64(10), counter.Load())

	// Closing again is a no-op.
	require.NotPanics(t, pool.Close)
}

// Submit must return immediately even when every worker is busy: a stage
// submitting its successor to the same pool must never deadlock on queue
// capacity.
func TestPoolSubmitNeverBlocks(t *testing.T) {
	pool := NewPool(1)
	gate := make(chan struct{})
	pool.Submit(func() { <-gate })

	var counter atomic.Int64
	// With the single worker parked on the gate, all of these only enqueue.
	for range 100 {
		pool.Submit(func() { counter.Add(1) })
	}
	assert.Equal(t, int64(0), counter.Load())

	close(gate)
	pool.Close()
	assert.Equal(t, int64(100), counter.Load())
}

func TestPoolSubmitAfterClosePanics(t *testing.T) {
	pool := NewPool(1)
	pool.Close()
	require.Panics(t, func() { pool.Submit(func() {}) })
}

func TestPoolDefaultsWorkers(t *testing.T) {
	pool := NewPool(0)
	done := make(chan struct{})
	pool.Submit(func() { close(done) })
	<-done
	pool.Close()
}

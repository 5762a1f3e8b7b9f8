// Package executors provides task executors used to run the stages of
// asynchronous inference requests: an inline executor for tests and
// single-threaded use, and a fixed worker pool.
//
// The engine accepts anything with a Submit(func()) method, so programs can
// plug in their own scheduling instead.
package executors

import (
	"runtime"
	"sync"
)

// Inline runs every submitted task synchronously on the caller's goroutine.
//
// It makes asynchronous requests behave deterministically, which is what one
// wants in tests. It is a valid choice for the wait stage of a pipeline, and a
// poor one for the compute stage.
type Inline struct{}

// Submit implements the executor contract.
func (Inline) Submit(task func()) { task() }

// Pool is a fixed-size worker pool executor over an unbounded queue. Tasks
// are run in submission order by whichever worker is free.
//
// The queue is unbounded so Submit never blocks: a pipeline stage submitting
// its next stage to the same pool cannot deadlock on a full queue.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond // signals queued work and closing
	queue  []func()
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts a pool with numWorkers goroutines. If numWorkers <= 0 it
// defaults to runtime.NumCPU().
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(numWorkers)
	for range numWorkers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	p.mu.Lock()
	for {
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// Closed and drained.
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()
		task()
		p.mu.Lock()
	}
}

// Submit enqueues the task and returns immediately. Submitting to a closed
// pool panics.
func (p *Pool) Submit(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		panic("executors: Submit on a closed Pool")
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

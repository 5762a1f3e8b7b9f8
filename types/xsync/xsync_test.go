package xsync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatch(t *testing.T) {
	l := NewLatch()
	assert.False(t, l.Test())

	var wg sync.WaitGroup
	wg.Add(3)
	for range 3 {
		go func() {
			defer wg.Done()
			l.Wait()
		}()
	}
	l.Trigger()
	wg.Wait()
	assert.True(t, l.Test())

	// Triggering again and waiting after the fact are no-ops.
	require.NotPanics(t, l.Trigger)
	l.Wait()

	select {
	case <-l.WaitChan():
	case <-time.After(time.Second):
		t.Fatal("WaitChan did not resolve on a triggered latch")
	}
}

func TestLatchWithValue(t *testing.T) {
	l := NewLatchWithValue[string]()
	go l.Trigger("done")
	assert.Equal(t, "done", l.Wait())
	assert.True(t, l.Test())
}

func TestSemaphore(t *testing.T) {
	s := NewSemaphore(2)
	s.Acquire()
	s.Acquire()

	acquired := make(chan struct{})
	go func() {
		s.Acquire()
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("third Acquire should have blocked")
	case <-time.After(20 * time.Millisecond):
	}
	s.Release()
	<-acquired
	s.Release()
	s.Release()
}

func TestSyncMap(t *testing.T) {
	var m SyncMap[string, int]
	_, ok := m.Load("a")
	assert.False(t, ok)

	m.Store("a", 1)
	v, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	actual, loaded := m.LoadOrStore("a", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, actual)
	actual, loaded = m.LoadOrStore("b", 2)
	assert.False(t, loaded)
	assert.Equal(t, 2, actual)

	seen := map[string]int{}
	m.Range(func(key string, value int) bool {
		seen[key] = value
		return true
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, seen)
}

package satori

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// taskSet tracks fire-and-forget goroutines so shutdown can wait for them.
type taskSet struct {
	log *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	running map[uuid.UUID]string
}

func newTaskSet(log *slog.Logger) *taskSet {
	return &taskSet{log: log, running: make(map[uuid.UUID]string)}
}

// Go runs fn in a tracked goroutine and reports whether it was started.
// A closed set starts nothing. A panic in fn is logged, not propagated.
func (t *taskSet) Go(name string, fn func()) bool {
	id := uuid.New()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.running[id] = name
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.log.Error("task panicked", "task", name, "panic", r)
			}
			t.mu.Lock()
			delete(t.running, id)
			t.mu.Unlock()
			t.wg.Done()
		}()
		fn()
	}()
	return true
}

// Close stops the set from accepting tasks. Running tasks are unaffected.
func (t *taskSet) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Open lets a closed set accept tasks again.
func (t *taskSet) Open() {
	t.mu.Lock()
	t.closed = false
	t.mu.Unlock()
}

// Len returns the number of running tasks.
func (t *taskSet) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}

// Wait blocks until every task has returned or timeout elapses, and
// returns the names of the tasks still running. Close the set first so no
// task is added while waiting.
func (t *taskSet) Wait(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	pending := make([]string, 0, len(t.running))
	for _, name := range t.running {
		pending = append(pending, name)
	}
	sort.Strings(pending)
	return pending
}

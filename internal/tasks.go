package internal

import (
	"context"
	"sync"
)

// taskSet tracks cancellable in-flight operations keyed by the entity they
// target. At most one task per key exists at a time.
type taskSet struct {
	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	cancel context.CancelFunc
}

func newTaskSet() *taskSet {
	return &taskSet{tasks: make(map[string]*task)}
}

// start registers a task for key and returns its context and a release func.
// release only removes the registration if it still belongs to this task.
func (ts *taskSet) start(parent context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	t := &task{cancel: cancel}

	ts.mu.Lock()
	if prev, ok := ts.tasks[key]; ok {
		prev.cancel()
	}
	ts.tasks[key] = t
	ts.mu.Unlock()

	return ctx, func() {
		ts.mu.Lock()
		if ts.tasks[key] == t {
			delete(ts.tasks, key)
		}
		ts.mu.Unlock()
		cancel()
	}
}

// cancel aborts the task registered for key, if any
func (ts *taskSet) cancel(key string) bool {
	ts.mu.Lock()
	t, ok := ts.tasks[key]
	if ok {
		delete(ts.tasks, key)
	}
	ts.mu.Unlock()

	if ok {
		t.cancel()
	}
	return ok
}

// cancelAll aborts every registered task
func (ts *taskSet) cancelAll() {
	ts.mu.Lock()
	tasks := ts.tasks
	ts.tasks = make(map[string]*task)
	ts.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
}

func (ts *taskSet) len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tasks)
}

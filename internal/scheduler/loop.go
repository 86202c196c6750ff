// Package scheduler provides a cooperative, single-threaded task loop with
// conflatable posting. Tasks run only when the owner flushes the loop.
package scheduler

import "sync"

// Loop queues deferred tasks until Flush is called.
//
// A task posted with PostConflatable is dropped when another task with the
// same key is still waiting in the queue. Tasks posted while a cycle is
// running are deferred to the next cycle.
type Loop struct {
	mu      sync.Mutex
	queue   []postedTask
	pending map[any]struct{}
}

type postedTask struct {
	key         any
	conflatable bool
	run         func()
}

// NewLoop constructs an empty loop.
func NewLoop() *Loop {
	return &Loop{pending: make(map[any]struct{})}
}

// Post appends a task to the queue.
func (l *Loop) Post(task func()) {
	if task == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, postedTask{run: task})
	l.mu.Unlock()
}

// PostConflatable appends a task unless a task with the same key is already queued.
func (l *Loop) PostConflatable(key any, task func()) {
	if task == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, queued := l.pending[key]; queued {
		return
	}
	l.pending[key] = struct{}{}
	l.queue = append(l.queue, postedTask{key: key, conflatable: true, run: task})
}

// Pending reports the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Flush runs one cycle: every task queued when the call starts, in order.
// It returns the number of tasks that ran.
func (l *Loop) Flush() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, task := range batch {
		if task.conflatable {
			l.mu.Lock()
			delete(l.pending, task.key)
			l.mu.Unlock()
		}
		task.run()
	}
	return len(batch)
}

// Drain flushes cycles until the queue is empty or maxCycles cycles ran.
// A non-positive maxCycles means a single cycle.
func (l *Loop) Drain(maxCycles int) int {
	if maxCycles <= 0 {
		maxCycles = 1
	}
	total := 0
	for cycle := 0; cycle < maxCycles; cycle++ {
		if l.Pending() == 0 {
			break
		}
		total += l.Flush()
	}
	return total
}

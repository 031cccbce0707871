package workflow

import (
	"context"
	"sync"
	"time"
)

// Queue is an ordered in-memory task queue safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	tasks []Task
	ready chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Enqueue appends tasks to the tail.
func (q *Queue) Enqueue(tasks ...Task) {
	if len(tasks) == 0 {
		return
	}
	q.mu.Lock()
	for _, task := range tasks {
		if task != nil {
			q.tasks = append(q.tasks, task)
		}
	}
	q.mu.Unlock()
	q.signal()
}

// Dequeue removes the head task, waiting up to timeout for one to arrive.
// It returns false on timeout or when ctx is done.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Task, bool) {
	if task, ok := q.pop(); ok {
		return task, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-timer.C:
			return q.pop()
		case <-q.ready:
			if task, ok := q.pop(); ok {
				return task, true
			}
		}
	}
}

// Defer reinserts task behind the next offset queued tasks, or at the tail
// when fewer than offset are queued. It returns the zero-based position used.
func (q *Queue) Defer(task Task, offset int) int {
	if task == nil {
		return -1
	}
	q.mu.Lock()
	if offset < 0 {
		offset = 0
	}
	if offset > len(q.tasks) {
		offset = len(q.tasks)
	}
	q.tasks = append(q.tasks, nil)
	copy(q.tasks[offset+1:], q.tasks[offset:])
	q.tasks[offset] = task
	q.mu.Unlock()
	q.signal()
	return offset
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Counts returns queued tasks per kind.
func (q *Queue) Counts() map[Kind]int {
	counts := make(map[Kind]int, len(Kinds()))
	for _, kind := range Kinds() {
		counts[kind] = 0
	}
	q.mu.Lock()
	for _, task := range q.tasks {
		counts[task.Kind()]++
	}
	q.mu.Unlock()
	return counts
}

// Snapshot returns a copy of the queued tasks in order.
func (q *Queue) Snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.tasks...)
}

func (q *Queue) pop() (Task, bool) {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	remaining := len(q.tasks)
	q.mu.Unlock()
	if remaining > 0 {
		q.signal()
	}
	return task, true
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

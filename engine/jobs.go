package engine

import "sync"

// Job is a continuation that must run on the engine's owning goroutine.
type Job func(c *Context) error

// jobQueue is an unbounded FIFO. push is safe from any goroutine.
type jobQueue struct {
	wake chan struct{}
	jobs []Job
	mu   sync.Mutex
}

func newJobQueue() *jobQueue {
	return &jobQueue{wake: make(chan struct{}, 1)}
}

func (q *jobQueue) push(j Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *jobQueue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, false
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	return j, true
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *jobQueue) clear() {
	q.mu.Lock()
	q.jobs = nil
	q.mu.Unlock()
}

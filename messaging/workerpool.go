package messaging

import (
	"sync"
)

// WorkerPool bounds in-process message handling concurrency. The task queue
// is bounded too: when it is full, Submit runs the task on the calling
// goroutine, so backpressure reaches the broker through slower
// acknowledgment instead of message loss.
type WorkerPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewWorkerPool starts a pool with the given worker count and queue size
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	pool := &WorkerPool{
		tasks: make(chan func(), queueSize),
	}

	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer pool.wg.Done()
			for task := range pool.tasks {
				task()
			}
		}()
	}

	return pool
}

// Submit queues a task, or runs it inline when the queue is full or the
// pool has stopped
func (p *WorkerPool) Submit(task func()) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		task()
		return
	}

	select {
	case p.tasks <- task:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		task()
	}
}

// Stop closes the queue and waits for in-flight tasks to finish
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
